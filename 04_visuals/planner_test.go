package visuals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedClipCount(t *testing.T) {
	tests := []struct {
		total float64
		want  int
	}{
		{10, 3},
		{30, 3},
		{30.001, 4},
		{42.3, 4},
		{45, 4},
		{45.5, 5},
		{59, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpectedClipCount(tt.total), "total %.3f", tt.total)
	}
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func TestPlanClipDurations_EqualWeights(t *testing.T) {
	sentences := []string{"Cats sleep a lot.", "Dogs dream too.", "Birds never stop.", "Fish just float."}
	got := PlanClipDurations(sentences, 42.3, 4)

	require.Len(t, got, 4)
	for _, d := range got {
		assert.InDelta(t, 10.575, d, 1e-9)
	}
	assert.InDelta(t, 42.3, sum(got), 1e-9)
}

func TestPlanClipDurations_WeightedByWords(t *testing.T) {
	long := "one two three four five six seven eight nine ten eleven twelve"
	got := PlanClipDurations([]string{"Short one.", long, "Also short."}, 24, 3)

	require.Len(t, got, 3)
	// weights 6, 12, 6
	assert.InDelta(t, 6, got[0], 1e-9)
	assert.InDelta(t, 12, got[1], 1e-9)
	assert.InDelta(t, 6, got[2], 1e-9)
}

func TestPlanClipDurations_FewerSentencesPadsWithAverage(t *testing.T) {
	got := PlanClipDurations([]string{"Only one sentence here."}, 30, 3)

	require.Len(t, got, 3)
	assert.InDelta(t, 30, got[0], 1e-9)
	assert.InDelta(t, 10, got[1], 1e-9)
	assert.InDelta(t, 10, got[2], 1e-9)
}

func TestPlanClipDurations_MoreSentencesTruncates(t *testing.T) {
	sentences := []string{"A b c.", "D e f.", "G h i.", "J k l.", "M n o."}
	got := PlanClipDurations(sentences, 50, 3)

	require.Len(t, got, 3)
	for _, d := range got {
		assert.InDelta(t, 10, d, 1e-9)
	}
}

func TestPlanClipDurations_NoSentences(t *testing.T) {
	got := PlanClipDurations(nil, 42, 3)
	assert.Equal(t, []float64{14, 14, 14}, got)

	assert.Nil(t, PlanClipDurations([]string{"x"}, 10, 0))
}
