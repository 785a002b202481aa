package visuals

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"

	"shorts-pipeline/errors"
	"shorts-pipeline/media"
	"shorts-pipeline/types"
)

// trimTailMargin keeps random offsets away from the last half second of a
// source, where stock clips often fade or freeze.
const trimTailMargin = 0.5

// Arrange assigns assets to slots. The assets are shuffled once and then
// cycled, so with two or more distinct assets no two adjacent entries share
// a source.
func Arrange(assets []types.MediaAsset, durations []float64, rng *rand.Rand) types.ClipPlan {
	if len(assets) == 0 {
		return types.ClipPlan{}
	}
	order := append([]types.MediaAsset(nil), assets...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	entries := make([]types.ClipPlanEntry, len(durations))
	for i, d := range durations {
		a := order[i%len(order)]
		entries[i] = types.ClipPlanEntry{
			SourceClipID:   a.Key(),
			SourcePath:     a.LocalPath,
			TargetDuration: d,
		}
	}
	return types.ClipPlan{Entries: entries}
}

// Composer cuts every plan entry to its slot and joins the segments.
type Composer struct {
	Editor   media.Editor
	Prober   media.Prober
	Geometry media.Geometry
	Log      *slog.Logger
}

// Compose renders plan into out. Each entry starts at a random offset in
// [0, source-target-0.5] and is normalized to the output geometry, so the
// final join can be a stream copy.
func (c *Composer) Compose(ctx context.Context, run *types.RunContext, plan types.ClipPlan, out string) error {
	if len(plan.Entries) == 0 {
		return fmt.Errorf("empty clip plan")
	}

	segments := make([]string, 0, len(plan.Entries))
	for i, e := range plan.Entries {
		src, err := c.Prober.Duration(ctx, e.SourcePath)
		if err != nil {
			return fmt.Errorf("probe %s: %w", e.SourceClipID, err)
		}

		start := 0.0
		if maxStart := src - e.TargetDuration - trimTailMargin; maxStart > 0 {
			start = run.Rand.Float64() * maxStart
		}

		seg := filepath.Join(run.ScratchDir, fmt.Sprintf("bg_%02d.mp4", i))
		if err := c.Editor.TrimNormalize(ctx, e.SourcePath, start, e.TargetDuration, c.Geometry, seg); err != nil {
			return fmt.Errorf("trim %s: %w", e.SourceClipID, err)
		}
		c.Log.Debug("segment ready", "index", i, "source", e.SourceClipID,
			"start", fmt.Sprintf("%.2f", start), "duration", fmt.Sprintf("%.2f", e.TargetDuration))
		segments = append(segments, seg)
	}

	if err := c.Editor.Concat(ctx, segments, out); err != nil {
		return fmt.Errorf("concat background: %w", err)
	}
	return nil
}

// Fallback renders a solid color background when no footage is usable.
type Fallback struct {
	Editor   media.Editor
	Color    string
	Geometry media.Geometry
}

// Generate writes a clip of exactly total seconds to out.
func (f *Fallback) Generate(ctx context.Context, total float64, out string) error {
	color := f.Color
	if color == "" {
		color = "black"
	}
	return f.Editor.SolidColor(ctx, color, total, f.Geometry, out)
}

// AssetSource is what the background stage needs from acquisition.
type AssetSource interface {
	FetchDistinct(ctx context.Context, run *types.RunContext, topic string, n int) ([]types.MediaAsset, error)
}

// Background is the result of the background stage.
type Background struct {
	Path      string
	Durations []float64
	Plan      types.ClipPlan
	Assets    []types.MediaAsset
	Fallback  bool
}

// BackgroundStage plans, acquires and composes the background video.
type BackgroundStage struct {
	Source   AssetSource
	Composer *Composer
	Fallback *Fallback
	Log      *slog.Logger
}

// Build always yields a background of budget.Total() seconds unless even the
// solid color fallback fails. Acquisition or compose failures degrade to the
// fallback.
func (s *BackgroundStage) Build(ctx context.Context, run *types.RunContext, topic string, sentences []string, budget types.DurationBudget) types.Outcome[Background] {
	total := budget.Total()
	expected := ExpectedClipCount(total)
	durations := PlanClipDurations(sentences, total, expected)
	s.Log.Info("clip plan", "total", fmt.Sprintf("%.3fs", total), "clips", expected, "durations", durations)

	res := Background{Durations: durations}

	assets, err := s.Source.FetchDistinct(ctx, run, topic, expected)
	if err == nil {
		res.Assets = assets
		res.Plan = Arrange(assets, durations, run.Rand)
		out := filepath.Join(run.ScratchDir, "background.mp4")
		if err = s.Composer.Compose(ctx, run, res.Plan, out); err == nil {
			res.Path = out
			return types.OK(res)
		}
	}

	s.Log.Warn("background footage unavailable, using fallback", "error", err)
	out := filepath.Join(run.ScratchDir, "background_fallback.mp4")
	if ferr := s.Fallback.Generate(ctx, total, out); ferr != nil {
		return types.Fatal[Background](errors.Fatal(errors.StageBackground, "fallback background failed", errors.Join(err, ferr)))
	}
	res.Path = out
	res.Fallback = true
	return types.Degraded(res, errors.Degraded(errors.StageBackground, "fallback background", err))
}
