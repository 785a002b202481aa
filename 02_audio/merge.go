package audio

import (
	"context"
	"fmt"
	"log/slog"

	"shorts-pipeline/errors"
	"shorts-pipeline/media"
	"shorts-pipeline/types"
)

// Narration is the merged voice track and the budget frozen from it.
type Narration struct {
	Path   string
	Budget types.DurationBudget
	CTA    CTAResult
}

// Merger joins body and CTA audio without re-encoding.
type Merger struct {
	Editor media.Editor
	Prober media.Prober
	Log    *slog.Logger
}

// Merge concatenates body and an attached CTA into out and freezes the
// DurationBudget from the measured result. If the concat fails the CTA is
// dropped and the body file is used as is (degraded). A budget that cannot
// be built is fatal.
func (m *Merger) Merge(ctx context.Context, body types.NarrationSegment, cta CTAResult, out string) types.Outcome[Narration] {
	if cta.State == types.CTAAttached && cta.Segment != nil {
		err := m.Editor.Concat(ctx, []string{body.AudioPath, cta.Segment.AudioPath}, out)
		if err == nil {
			var measured float64
			measured, err = m.Prober.Duration(ctx, out)
			if err == nil {
				budget, berr := types.NewDurationBudget(body.DurationSeconds, cta.Segment.DurationSeconds, measured)
				if berr != nil {
					return types.Fatal[Narration](errors.Fatal(errors.StageMerge, "freeze budget", berr))
				}
				m.logBudget(budget, cta.State)
				return types.OK(Narration{Path: out, Budget: budget, CTA: cta})
			}
		}

		m.Log.Warn("merge with cta failed, using body only", "error", err)
		res, ferr := m.bodyOnly(body)
		if ferr != nil {
			return types.Fatal[Narration](ferr)
		}
		return types.Degraded(res, errors.Degraded(errors.StageMerge, "cta dropped at merge", err))
	}

	res, err := m.bodyOnly(body)
	if err != nil {
		return types.Fatal[Narration](err)
	}
	return types.OK(res)
}

func (m *Merger) bodyOnly(body types.NarrationSegment) (Narration, error) {
	budget, err := types.NewDurationBudget(body.DurationSeconds, 0, body.DurationSeconds)
	if err != nil {
		return Narration{}, errors.Fatal(errors.StageMerge, "freeze budget", err)
	}
	m.logBudget(budget, types.CTADropped)
	return Narration{Path: body.AudioPath, Budget: budget, CTA: CTAResult{State: types.CTADropped}}, nil
}

func (m *Merger) logBudget(b types.DurationBudget, state types.CTAState) {
	m.Log.Info("duration budget frozen",
		"cta", state,
		"body", fmt.Sprintf("%.3fs", b.Body()),
		"cta_duration", fmt.Sprintf("%.3fs", b.CTA()),
		"total", fmt.Sprintf("%.3fs", b.Total()),
		"cap", b.Cap())
}
