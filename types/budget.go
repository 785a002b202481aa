package types

import (
	"encoding/json"
	"fmt"
	"math"
)

// DurationCapSeconds is the hard ceiling for a Shorts upload.
const DurationCapSeconds = 59.0

// DurationBudget is the time budget of one run. It is built once, after the
// narration merge, and has no setters: every later stage reads Total().
//
// All durations are truncated to whole milliseconds on the way in, so the
// float drift of ffprobe measurements can never push Total above the cap.
type DurationBudget struct {
	cap   float64
	body  float64
	cta   float64
	total float64
}

// NewDurationBudget freezes the budget. measured is the probed duration of
// the merged narration; pass 0 to fall back to body+cta.
func NewDurationBudget(body, cta, measured float64) (DurationBudget, error) {
	if body <= 0 || math.IsNaN(body) || math.IsInf(body, 0) {
		return DurationBudget{}, fmt.Errorf("invalid body duration %v", body)
	}
	if cta < 0 || math.IsNaN(cta) || math.IsInf(cta, 0) {
		cta = 0
	}
	if measured <= 0 || math.IsNaN(measured) || math.IsInf(measured, 0) {
		measured = body + cta
	}

	total := TruncateMillis(math.Min(measured, DurationCapSeconds))
	if total <= 0 {
		return DurationBudget{}, fmt.Errorf("budget total %v is not positive", total)
	}

	return DurationBudget{
		cap:   DurationCapSeconds,
		body:  TruncateMillis(body),
		cta:   TruncateMillis(cta),
		total: total,
	}, nil
}

// Cap returns the ceiling the budget was built against.
func (b DurationBudget) Cap() float64 { return b.cap }

// Body returns the body narration duration.
func (b DurationBudget) Body() float64 { return b.body }

// CTA returns the CTA duration, 0 when the CTA was dropped.
func (b DurationBudget) CTA() float64 { return b.cta }

// Total returns min(measured, cap), the authoritative run duration.
func (b DurationBudget) Total() float64 { return b.total }

// IsZero reports whether the budget was never built.
func (b DurationBudget) IsZero() bool { return b.total == 0 }

// MarshalJSON exposes the frozen values for the state file.
func (b DurationBudget) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Cap   float64 `json:"cap_seconds"`
		Body  float64 `json:"body_duration"`
		CTA   float64 `json:"cta_duration"`
		Total float64 `json:"total_duration"`
	}{b.cap, b.body, b.cta, b.total})
}

// FitsCap reports whether body+cta stays within the cap. The raw sum is
// compared, so an accepted pair also fits after truncation.
func FitsCap(body, cta float64) bool {
	return body > 0 && cta >= 0 && body+cta <= DurationCapSeconds+1e-9
}

// TruncateMillis drops everything below one millisecond. It never rounds up
// past representation error: 42.3 stays 42.3 rather than becoming 42.299.
func TruncateMillis(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Floor(v*1000+1e-6) / 1000
}
