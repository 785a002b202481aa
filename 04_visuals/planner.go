package visuals

import (
	"shorts-pipeline/01_script"
)

// minSentenceWeight keeps very short sentences from getting near-zero slots.
const minSentenceWeight = 6

// ExpectedClipCount is the number of background segments for a total
// duration: 3 up to 30s, 4 up to 45s, 5 beyond.
func ExpectedClipCount(total float64) int {
	switch {
	case total <= 30:
		return 3
	case total <= 45:
		return 4
	default:
		return 5
	}
}

// PlanClipDurations splits total across expected slots weighted by sentence
// length. Extra sentences are dropped from the tail and missing slots are
// padded with total/expected, so the sum is exact only when the counts
// match. The result always has expected entries.
func PlanClipDurations(sentences []string, total float64, expected int) []float64 {
	if expected <= 0 {
		return nil
	}
	avg := total / float64(expected)

	weights := make([]float64, 0, len(sentences))
	var sum float64
	for _, s := range sentences {
		n := script.CountWords(s)
		if n == 0 {
			continue
		}
		w := float64(max(n, minSentenceWeight))
		weights = append(weights, w)
		sum += w
	}

	out := make([]float64, expected)
	for i := range out {
		if i < len(weights) {
			out[i] = total * weights[i] / sum
		} else {
			out[i] = avg
		}
	}
	return out
}
