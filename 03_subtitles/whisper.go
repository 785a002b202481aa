package subtitles

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shorts-pipeline/config"
	"shorts-pipeline/errors"
	"shorts-pipeline/media"
	"shorts-pipeline/types"
)

// Captioner produces an SRT file for an audio track.
type Captioner interface {
	Caption(ctx context.Context, audioFile, outputDir string) (string, error)
}

// Whisper runs the openai-whisper CLI.
type Whisper struct {
	Command         string
	Model           string
	Language        string
	MaxCharsPerLine int
	Timeout         time.Duration
	Runner          media.Runner
}

// NewWhisper builds the whisper collaborator from config.
func NewWhisper(cfg config.SubtitlesConfig, runner media.Runner) *Whisper {
	if runner == nil {
		runner = media.ExecRunner{}
	}
	return &Whisper{
		Command:         "whisper",
		Model:           cfg.WhisperModel,
		Language:        cfg.Language,
		MaxCharsPerLine: cfg.MaxCharsPerLine,
		Timeout:         cfg.Timeout,
		Runner:          runner,
	}
}

// Caption transcribes audioFile into outputDir/subtitles.srt.
func (w *Whisper) Caption(ctx context.Context, audioFile, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	srtFile := filepath.Join(outputDir, "subtitles.srt")

	// whisper audio.mp3 --model base --output_format srt --output_dir /path/
	_, err := w.Runner.Run(ctx, w.Command,
		audioFile,
		"--model", w.Model,
		"--output_format", "srt",
		"--output_dir", outputDir,
		"--language", w.Language,
		"--word_timestamps", "True",
		"--max_line_width", fmt.Sprintf("%d", w.MaxCharsPerLine),
		"--max_line_count", "2",
	)
	if err != nil {
		return "", fmt.Errorf("whisper failed: %w", err)
	}

	// Whisper saves as <audioFilename>.srt
	base := strings.TrimSuffix(filepath.Base(audioFile), filepath.Ext(audioFile))
	whisperOut := filepath.Join(outputDir, base+".srt")
	if whisperOut != srtFile {
		if err := os.Rename(whisperOut, srtFile); err != nil {
			return "", fmt.Errorf("whisper output: %w", err)
		}
	}
	return srtFile, nil
}

// ValidateSRT checks that the SRT file holds at least one cue.
func ValidateSRT(srtFile string) error {
	f, err := os.Open(srtFile)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineCount := 0
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			lineCount++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if lineCount < 3 {
		return fmt.Errorf("SRT file appears empty or malformed (%d lines)", lineCount)
	}
	return nil
}

// Stage captions the merged narration and converts the result to ASS for
// burning. Any failure degrades to rendering without subtitles.
type Stage struct {
	Captioner Captioner
	Editor    media.Editor
	Log       *slog.Logger
}

// Build returns the ASS path, or "" with a degraded outcome.
func (s *Stage) Build(ctx context.Context, audioFile, outputDir string, budget types.DurationBudget) types.Outcome[string] {
	degrade := func(msg string, err error) types.Outcome[string] {
		s.Log.Warn("rendering without subtitles", "reason", msg, "error", err)
		return types.Degraded("", errors.Degraded(errors.StageCaptions, msg, err))
	}

	srt, err := s.Captioner.Caption(ctx, audioFile, outputDir)
	if err != nil {
		return degrade("transcription failed", err)
	}
	if err := ValidateSRT(srt); err != nil {
		return degrade("invalid srt", err)
	}
	dropped, err := ClampSRT(srt, budget.Total())
	if err != nil {
		return degrade("clamp srt", err)
	}
	if dropped > 0 {
		s.Log.Debug("captions past the budget removed", "cues", dropped)
	}

	ass := strings.TrimSuffix(srt, filepath.Ext(srt)) + ".ass"
	if err := s.Editor.ConvertSubtitles(ctx, srt, ass); err != nil {
		return degrade("srt to ass", err)
	}

	s.Log.Info("subtitles ready", "file", ass)
	return types.OK(ass)
}
