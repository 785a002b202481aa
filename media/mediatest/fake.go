// Package mediatest provides in-memory Prober and Editor fakes that write
// placeholder files instead of running ffmpeg.
package mediatest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"shorts-pipeline/media"
)

// Call is one recorded Editor invocation.
type Call struct {
	Op       string
	Inputs   []string
	Out      string
	Start    float64
	Duration float64
}

// Editor records calls and writes a small file at every output path. Set
// Fail[op] to make that operation return an error.
type Editor struct {
	mu    sync.Mutex
	Calls []Call
	Fail  map[string]error
	// Prober, when set, learns the duration of every file the editor writes.
	Prober *Prober
}

func (e *Editor) record(c Call) error {
	e.mu.Lock()
	e.Calls = append(e.Calls, c)
	err := e.Fail[c.Op]
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.Out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, []byte(c.Op), 0o644); err != nil {
		return err
	}
	if e.Prober != nil && c.Duration > 0 {
		e.Prober.Set(c.Out, c.Duration)
	}
	return nil
}

// Ops returns the recorded operation names in order.
func (e *Editor) Ops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ops := make([]string, len(e.Calls))
	for i, c := range e.Calls {
		ops[i] = c.Op
	}
	return ops
}

// CallsFor returns the recorded calls of one operation.
func (e *Editor) CallsFor(op string) []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Call
	for _, c := range e.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (e *Editor) Concat(_ context.Context, inputs []string, out string) error {
	var total float64
	if e.Prober != nil {
		for _, in := range inputs {
			total += e.Prober.Get(in)
		}
	}
	return e.record(Call{Op: "concat", Inputs: append([]string(nil), inputs...), Out: out, Duration: total})
}

func (e *Editor) TrimNormalize(_ context.Context, in string, start, dur float64, _ media.Geometry, out string) error {
	return e.record(Call{Op: "trim", Inputs: []string{in}, Out: out, Start: start, Duration: dur})
}

func (e *Editor) SolidColor(_ context.Context, _ string, dur float64, _ media.Geometry, out string) error {
	return e.record(Call{Op: "color", Out: out, Duration: dur})
}

func (e *Editor) Silence(_ context.Context, dur float64, out string) error {
	return e.record(Call{Op: "silence", Out: out, Duration: dur})
}

func (e *Editor) PrepareAudioBed(_ context.Context, in string, dur float64, _ media.Bed, out string) error {
	return e.record(Call{Op: "bed", Inputs: []string{in}, Out: out, Duration: dur})
}

func (e *Editor) ConvertSubtitles(_ context.Context, srt, out string) error {
	return e.record(Call{Op: "subtitles", Inputs: []string{srt}, Out: out})
}

// Prober returns configured durations. Unknown paths get Default, or an
// error when Default is zero.
type Prober struct {
	mu        sync.Mutex
	Durations map[string]float64
	Default   float64
}

// NewProber creates a Prober with a default duration.
func NewProber(def float64) *Prober {
	return &Prober{Durations: make(map[string]float64), Default: def}
}

// Set records the duration of path.
func (p *Prober) Set(path string, d float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Durations == nil {
		p.Durations = make(map[string]float64)
	}
	p.Durations[path] = d
}

// Get returns the configured duration or Default.
func (p *Prober) Get(path string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.Durations[path]; ok {
		return d
	}
	return p.Default
}

func (p *Prober) Duration(_ context.Context, path string) (float64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	d := p.Get(path)
	if d <= 0 {
		return 0, fmt.Errorf("no duration for %s", path)
	}
	return d, nil
}

var (
	_ media.Editor = (*Editor)(nil)
	_ media.Prober = (*Prober)(nil)
)
