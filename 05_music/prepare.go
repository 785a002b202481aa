package music

import (
	"context"
	"log/slog"
	"path/filepath"

	"shorts-pipeline/config"
	"shorts-pipeline/errors"
	"shorts-pipeline/media"
	"shorts-pipeline/types"
)

// Stage lays a music bed of exactly the budget's total length. Music is
// never essential: every failure degrades to generated silence.
type Stage struct {
	Source  TrackSource
	Editor  media.Editor
	Bed     media.Bed
	Enabled bool
	Log     *slog.Logger
}

// NewStage wires a Stage from config.
func NewStage(cfg config.MusicConfig, source TrackSource, editor media.Editor, log *slog.Logger) *Stage {
	return &Stage{
		Source:  source,
		Editor:  editor,
		Bed:     media.Bed{Volume: cfg.Volume, FadeInSec: cfg.FadeInSec, FadeOutSec: cfg.FadeOutSec},
		Enabled: cfg.Enabled,
		Log:     log,
	}
}

// Build returns the path of the prepared bed. With music disabled the bed
// is silence and the outcome is OK. An empty path in a degraded outcome
// means even silence could not be generated and the render goes without a
// music input.
func (s *Stage) Build(ctx context.Context, run *types.RunContext, query string, budget types.DurationBudget) types.Outcome[string] {
	total := budget.Total()
	out := filepath.Join(run.ScratchDir, "music_bed.m4a")

	if !s.Enabled {
		s.Log.Info("music disabled, using silence")
		if err := s.Editor.Silence(ctx, total, out); err != nil {
			return types.Degraded("", errors.Degraded(errors.StageMusic, "silence", err))
		}
		return types.OK(out)
	}

	err := s.prepare(ctx, run, query, total, out)
	if err == nil {
		return types.OK(out)
	}

	s.Log.Warn("music unavailable, using silence", "query", query, "error", err)
	if serr := s.Editor.Silence(ctx, total, out); serr != nil {
		return types.Degraded("", errors.Degraded(errors.StageMusic, "no music and no silence", errors.Join(err, serr)))
	}
	return types.Degraded(out, errors.Degraded(errors.StageMusic, "silent bed", err))
}

func (s *Stage) prepare(ctx context.Context, run *types.RunContext, query string, total float64, out string) error {
	track, err := s.Source.Fetch(ctx, query, run.Rand)
	if err != nil {
		return err
	}
	s.Log.Info("music track selected", "query", query, "track", filepath.Base(track))
	return s.Editor.PrepareAudioBed(ctx, track, total, s.Bed, out)
}
