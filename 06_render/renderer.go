package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"shorts-pipeline/config"
	"shorts-pipeline/errors"
	"shorts-pipeline/media"
	"shorts-pipeline/types"
)

// Job is everything the final encode needs. DurationCap must be the frozen
// budget total; the encoder output is cut there.
type Job struct {
	Background  string
	Narration   string
	Music       string // optional
	Subtitles   string // optional, .ass or .srt
	DurationCap float64
}

// Style is the caption look burned into the video.
type Style struct {
	Font         string
	FontSize     int
	MarginBottom int
}

// Renderer encodes the final portrait MP4.
type Renderer struct {
	FFmpegPath string
	Runner     media.Runner
	Geometry   media.Geometry
	Style      Style
	Timeout    time.Duration
	Log        *slog.Logger
}

// New creates a Renderer from config.
func New(cfg *config.Config, runner media.Runner, log *slog.Logger) *Renderer {
	return &Renderer{
		FFmpegPath: cfg.Media.FFmpegPath,
		Runner:     runner,
		Geometry:   media.Geometry{Width: cfg.Visuals.Width, Height: cfg.Visuals.Height, FPS: cfg.Visuals.FPS},
		Style: Style{
			Font:         cfg.Subtitles.Font,
			FontSize:     cfg.Subtitles.FontSize,
			MarginBottom: cfg.Subtitles.MarginBottom,
		},
		Timeout: cfg.Media.CommandTimeout,
		Log:     log,
	}
}

// Render writes the video to out. The encoder writes to a temporary name
// next to out, which is renamed only after ffmpeg succeeds, so a failed or
// cancelled render never leaves a file at out.
func (r *Renderer) Render(ctx context.Context, job Job, out string) error {
	if err := job.validate(); err != nil {
		return errors.Fatal(errors.StageRender, "invalid render job", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return errors.Fatal(errors.StageRender, "create output dir", err)
	}

	partial := strings.TrimSuffix(out, filepath.Ext(out)) + ".partial.mp4"
	defer os.Remove(partial)

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	r.Log.Info("rendering",
		"cap", fmt.Sprintf("%.3fs", job.DurationCap),
		"music", job.Music != "",
		"captions", job.Subtitles != "")

	start := time.Now()
	if _, err := r.Runner.Run(ctx, r.FFmpegPath, BuildArgs(job, r.Geometry, r.Style, partial)...); err != nil {
		return errors.Fatal(errors.StageRender, "ffmpeg render", err)
	}
	if info, err := os.Stat(partial); err != nil || info.Size() == 0 {
		return errors.Fatal(errors.StageRender, "ffmpeg produced no output", err)
	}
	if err := os.Rename(partial, out); err != nil {
		return errors.Fatal(errors.StageRender, "publish video", err)
	}

	r.Log.Info("render complete", "file", out, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (j Job) validate() error {
	switch {
	case j.Background == "":
		return fmt.Errorf("no background")
	case j.Narration == "":
		return fmt.Errorf("no narration")
	case j.DurationCap <= 0:
		return fmt.Errorf("duration cap %v is not positive", j.DurationCap)
	case j.DurationCap > types.DurationCapSeconds:
		return fmt.Errorf("duration cap %v exceeds %v", j.DurationCap, types.DurationCapSeconds)
	}
	return nil
}

// BuildArgs returns the ffmpeg arguments for job. Background and music are
// looped and the output is cut at DurationCap.
func BuildArgs(job Job, g media.Geometry, style Style, out string) []string {
	video := "[0:v]" + g.Filter() + ",fps=" + strconv.Itoa(g.FPS)
	if job.Subtitles != "" {
		video += "," + subtitleFilter(job.Subtitles, style)
	}
	filters := []string{
		video + "[vout]",
		"[1:a]aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo," +
			"highpass=f=80,lowpass=f=12000,alimiter=limit=0.97[voice]",
	}

	args := []string{
		"-y",
		"-stream_loop", "-1", "-i", job.Background,
		"-i", job.Narration,
	}
	if job.Music != "" {
		args = append(args, "-stream_loop", "-1", "-i", job.Music)
		filters = append(filters,
			"[2:a]aformat=sample_fmts=fltp:sample_rates=44100:channel_layouts=stereo[music]",
			"[voice][music]amix=inputs=2:duration=first:normalize=0[aout]",
		)
	} else {
		filters = append(filters, "[voice]anull[aout]")
	}

	return append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", "libx264",
		"-profile:v", "high",
		"-level", "4.2",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", strconv.FormatFloat(job.DurationCap, 'f', 3, 64),
		"-shortest",
		"-movflags", "+faststart",
		out,
	)
}

// force_style also overrides the default style of converted .ass files
func subtitleFilter(path string, style Style) string {
	return fmt.Sprintf(
		"subtitles='%s':force_style='FontName=%s,FontSize=%d,PrimaryColour=&H00FFFFFF,OutlineColour=&H00000000,Outline=2,Alignment=2,MarginV=%d'",
		EscapeFilterPath(path), style.Font, style.FontSize, style.MarginBottom,
	)
}

// EscapeFilterPath makes a file path safe inside a quoted filtergraph
// argument.
func EscapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "\\'")
	return path
}
