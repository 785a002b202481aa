package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"shorts-pipeline/config"
	"shorts-pipeline/media"
)

// Synthesizer turns one chunk of text into an audio file. A call either
// writes outPath or returns an error; retries and voice rotation belong to
// the Narrator.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, outPath string) error
}

// EdgeTTS drives the edge-tts CLI (pip install edge-tts).
type EdgeTTS struct {
	Command string
	Rate    string
	Pitch   string
	Runner  media.Runner
}

// Synthesize implements Synthesizer.
func (e *EdgeTTS) Synthesize(ctx context.Context, text, voice, outPath string) error {
	args := []string{"--voice", voice}
	// edge-tts parses "-5%" as a flag unless it is attached with "=".
	if e.Rate != "" {
		args = append(args, "--rate="+e.Rate)
	}
	if e.Pitch != "" {
		args = append(args, "--pitch="+e.Pitch)
	}
	args = append(args, "--text", text, "--write-media", outPath)

	if _, err := e.Runner.Run(ctx, e.Command, args...); err != nil {
		return fmt.Errorf("edge-tts %s: %w", voice, err)
	}
	return nil
}

// CommandTTS runs a user supplied TTS program that accepts
// --text "..." --output path [--voice name]. Python scripts are run with
// python3.
type CommandTTS struct {
	Command string
	Runner  media.Runner
}

// Synthesize implements Synthesizer.
func (c *CommandTTS) Synthesize(ctx context.Context, text, voice, outPath string) error {
	name := c.Command
	var args []string
	if strings.HasSuffix(name, ".py") {
		name, args = "python3", []string{c.Command}
	}
	args = append(args, "--text", text, "--output", outPath)
	if voice != "" {
		args = append(args, "--voice", voice)
	}

	if _, err := c.Runner.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("tts command %s: %w", c.Command, err)
	}
	return nil
}

// NewSynthesizer picks the TTS engine: audio.tts_command (or TTS_COMMAND)
// when set, edge-tts otherwise.
func NewSynthesizer(cfg *config.Config, runner media.Runner) (Synthesizer, error) {
	if runner == nil {
		runner = media.ExecRunner{}
	}

	cmd := strings.TrimSpace(cfg.Audio.TTSCommand)
	if cmd != "" {
		return &CommandTTS{Command: cmd, Runner: runner}, nil
	}

	if _, err := exec.LookPath("edge-tts"); err != nil {
		return nil, fmt.Errorf("no TTS engine found: set audio.tts_command or install edge-tts (pip install edge-tts)")
	}
	return &EdgeTTS{Command: "edge-tts", Rate: cfg.Audio.Rate, Pitch: cfg.Audio.Pitch, Runner: runner}, nil
}
