package audio

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/logger"
	"shorts-pipeline/types"
)

func (f *audioFixture) merger() *Merger {
	return &Merger{Editor: f.editor, Prober: f.prober, Log: logger.Discard()}
}

func attached(path string, d float64) CTAResult {
	return CTAResult{
		State:   types.CTAAttached,
		Text:    "Follow for more!",
		Segment: &types.NarrationSegment{AudioPath: path, DurationSeconds: d, Role: types.RoleCTA},
	}
}

func TestMerge_AttachedConcatsAndFreezesBudget(t *testing.T) {
	f := newAudioFixture(t)
	f.prober.Set("body.mp3", 40.1)
	f.prober.Set("cta.mp3", 2.2)
	out := filepath.Join(f.run.Dir, "narration.mp3")

	res := f.merger().Merge(context.Background(), body(40.1), attached("cta.mp3", 2.2), out)

	require.False(t, res.IsFatal())
	assert.False(t, res.IsDegraded())
	assert.Equal(t, out, res.Value.Path)
	assert.InDelta(t, 42.3, res.Value.Budget.Total(), 1e-9)
	assert.Equal(t, 2.2, res.Value.Budget.CTA())
	assert.Equal(t, types.CTAAttached, res.Value.CTA.State)
	assert.Equal(t, []string{"body.mp3", "cta.mp3"}, f.editor.CallsFor("concat")[0].Inputs)
}

func TestMerge_DroppedUsesBodyFile(t *testing.T) {
	f := newAudioFixture(t)

	res := f.merger().Merge(context.Background(), body(47.5), CTAResult{State: types.CTADropped}, "unused.mp3")

	require.False(t, res.IsFatal())
	assert.Equal(t, "body.mp3", res.Value.Path)
	assert.Equal(t, 47.5, res.Value.Budget.Total())
	assert.Equal(t, 0.0, res.Value.Budget.CTA())
	assert.Empty(t, f.editor.Calls)
}

func TestMerge_MeasuredOverCapIsClamped(t *testing.T) {
	f := newAudioFixture(t)
	out := filepath.Join(f.run.Dir, "narration.mp3")
	f.prober.Set("body.mp3", 57)
	f.prober.Set("cta.mp3", 2.6)

	res := f.merger().Merge(context.Background(), body(56.4), attached("cta.mp3", 2.6), out)

	require.False(t, res.IsFatal())
	assert.Equal(t, types.DurationCapSeconds, res.Value.Budget.Total())
}

func TestMerge_ConcatFailureDegradesToBody(t *testing.T) {
	f := newAudioFixture(t)
	f.editor.Fail = map[string]error{"concat": errors.New("codec mismatch")}

	res := f.merger().Merge(context.Background(), body(44), attached("cta.mp3", 2), filepath.Join(f.run.Dir, "n.mp3"))

	require.True(t, res.IsDegraded())
	assert.Equal(t, "body.mp3", res.Value.Path)
	assert.Equal(t, 44.0, res.Value.Budget.Total())
	assert.Equal(t, types.CTADropped, res.Value.CTA.State)
}

func TestMerge_InvalidBodyIsFatal(t *testing.T) {
	f := newAudioFixture(t)

	res := f.merger().Merge(context.Background(), body(0), CTAResult{State: types.CTADropped}, "x.mp3")

	assert.True(t, res.IsFatal())
	assert.Error(t, res.Err)
}
