// Package media wraps the ffmpeg and ffprobe binaries behind the two narrow
// interfaces the pipeline needs: a Prober for durations and an Editor for the
// handful of cut, concat and synth operations the stages perform.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Prober reads the duration of an audio or video file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Editor performs the ffmpeg operations the pipeline relies on.
type Editor interface {
	// Concat joins inputs with the concat demuxer and -c copy. Inputs must
	// share codec parameters.
	Concat(ctx context.Context, inputs []string, out string) error
	// TrimNormalize cuts [start, start+dur) from in and re-encodes it to g.
	TrimNormalize(ctx context.Context, in string, start, dur float64, g Geometry, out string) error
	// SolidColor renders a still color clip of exactly dur seconds.
	SolidColor(ctx context.Context, color string, dur float64, g Geometry, out string) error
	// Silence renders dur seconds of silent stereo audio.
	Silence(ctx context.Context, dur float64, out string) error
	// PrepareAudioBed trims or loops in to dur and applies volume and fades.
	PrepareAudioBed(ctx context.Context, in string, dur float64, bed Bed, out string) error
	// ConvertSubtitles converts an SRT file to ASS.
	ConvertSubtitles(ctx context.Context, srt, out string) error
}

// Geometry is the output frame size and rate.
type Geometry struct {
	Width  int
	Height int
	FPS    int
}

// Portrait is the 1080x1920 30 fps Shorts geometry.
func Portrait() Geometry {
	return Geometry{Width: 1080, Height: 1920, FPS: 30}
}

// Size returns the WxH string lavfi sources expect.
func (g Geometry) Size() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Filter returns the scale, crop and aspect chain that locks a source to g.
func (g Geometry) Filter() string {
	d := gcd(g.Width, g.Height)
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,setdar=%d/%d",
		g.Width, g.Height, g.Width, g.Height, g.Width/d, g.Height/d,
	)
}

// Bed describes how a music track is laid under narration.
type Bed struct {
	Volume     float64
	FadeInSec  float64
	FadeOutSec float64
}

// Runner executes a binary and returns its stdout. Errors carry stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// FFmpeg implements Prober and Editor with the ffmpeg/ffprobe binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	// Timeout bounds every single invocation.
	Timeout time.Duration
	Runner  Runner
}

// New creates an FFmpeg using os/exec.
func New(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &FFmpeg{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Timeout:     timeout,
		Runner:      ExecRunner{},
	}
}

// Exec runs ffmpeg with args under the per-call timeout. "-y" is prepended.
func (f *FFmpeg) Exec(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()
	_, err := f.Runner.Run(ctx, f.FFmpegPath, append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)...)
	return err
}

// Concat joins inputs losslessly.
func (f *FFmpeg) Concat(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat: no inputs")
	}
	listFile := out + ".concat.txt"
	if err := WriteConcatList(listFile, inputs); err != nil {
		return err
	}
	defer os.Remove(listFile)

	return f.Exec(ctx,
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		out,
	)
}

// TrimNormalize cuts and re-encodes one background segment.
func (f *FFmpeg) TrimNormalize(ctx context.Context, in string, start, dur float64, g Geometry, out string) error {
	return f.Exec(ctx, trimNormalizeArgs(in, start, dur, g, out)...)
}

func trimNormalizeArgs(in string, start, dur float64, g Geometry, out string) []string {
	return []string{
		"-ss", seconds(start),
		"-i", in,
		"-t", seconds(dur),
		"-vf", g.Filter(),
		"-r", strconv.Itoa(g.FPS),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-profile:v", "high",
		"-level", "4.1",
		"-crf", "18",
		"-preset", "veryfast",
		"-an",
		out,
	}
}

// SolidColor renders a placeholder clip.
func (f *FFmpeg) SolidColor(ctx context.Context, color string, dur float64, g Geometry, out string) error {
	if dur <= 0 {
		return fmt.Errorf("solid color: non-positive duration %v", dur)
	}
	return f.Exec(ctx,
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%s:r=%d", color, g.Size(), g.FPS),
		"-t", seconds(dur),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		out,
	)
}

// Silence renders silent audio.
func (f *FFmpeg) Silence(ctx context.Context, dur float64, out string) error {
	if dur <= 0 {
		return fmt.Errorf("silence: non-positive duration %v", dur)
	}
	return f.Exec(ctx,
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=stereo",
		"-t", seconds(dur),
		out,
	)
}

// PrepareAudioBed trims a long track or loops a short one to dur.
func (f *FFmpeg) PrepareAudioBed(ctx context.Context, in string, dur float64, bed Bed, out string) error {
	srcDur, err := f.Duration(ctx, in)
	if err != nil {
		srcDur = dur
	}
	return f.Exec(ctx, audioBedArgs(in, srcDur, dur, bed, out)...)
}

func audioBedArgs(in string, srcDur, dur float64, bed Bed, out string) []string {
	fadeOutStart := dur - bed.FadeOutSec
	if fadeOutStart < 0 {
		fadeOutStart = 0
	}
	filter := fmt.Sprintf(
		"volume=%.2f,afade=t=in:st=0:d=%.2f,afade=t=out:st=%.3f:d=%.2f",
		bed.Volume, bed.FadeInSec, fadeOutStart, bed.FadeOutSec,
	)

	var args []string
	if srcDur < dur && srcDur > 0 {
		loops := int(dur/srcDur) + 2
		args = append(args, "-stream_loop", strconv.Itoa(loops))
	}
	return append(args,
		"-i", in,
		"-t", seconds(dur),
		"-af", filter,
		out,
	)
}

// ConvertSubtitles converts SRT to ASS.
func (f *FFmpeg) ConvertSubtitles(ctx context.Context, srt, out string) error {
	return f.Exec(ctx, "-i", srt, out)
}

// WriteConcatList writes an ffmpeg concat demuxer list with absolute paths.
func WriteConcatList(path string, inputs []string) error {
	var sb strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("concat list: %w", err)
		}
		sb.WriteString("file '")
		sb.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		sb.WriteString("'\n")
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
