package script

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"shorts-pipeline/logger"
)

// scriptedGenerator returns replies in order and counts calls.
type scriptedGenerator struct {
	replies []string
	errs    []error
	calls   int
}

func (g *scriptedGenerator) Generate(_ context.Context, _ string) (string, error) {
	i := g.calls
	g.calls++
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return "", errors.New("no more replies")
}

func TestScoreHook(t *testing.T) {
	tests := []struct {
		name string
		hook string
		want int
	}{
		{"question opener addressed to viewer", "Why does this always happen to you", 80},
		{"long flat sentence", "The history of the printing press is a long story that spans many centuries of work", 0},
		{"digit and question", "Did 3 people really see this?", 30 + 20 + 15 + 5 + 10},
		{"power words capped", "Stop, the secret truth is never hidden, real wrong lie", 15 + 20},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreHook(tt.hook)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestScoreHook_ClampedTo100(t *testing.T) {
	got := ScoreHook("Why are you 100% wrong about this secret?")
	assert.Equal(t, 100, got)
}

func TestRefineHook_StrongHookSkipsGenerator(t *testing.T) {
	gen := &scriptedGenerator{}
	script := "Why does this always happen to you. It is your brain. Here is the reason."

	out, replaced := RefineHook(context.Background(), gen, script, "habits", 2, logger.Discard())

	assert.False(t, replaced)
	assert.Equal(t, script, out)
	assert.Equal(t, 0, gen.calls)
}

func TestRefineHook_StopsAtFirstAcceptedReply(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"Your brain hides this from you", "Second reply never used"}}
	script := "The human memory system is a complicated biological process studied for decades. It forgets."

	out, replaced := RefineHook(context.Background(), gen, script, "memory", 3, logger.Discard())

	assert.True(t, replaced)
	assert.Equal(t, "Your brain hides this from you. It forgets.", out)
	assert.Equal(t, 1, gen.calls)
}

func TestRefineHook_SkipsShortAndFailedReplies(t *testing.T) {
	gen := &scriptedGenerator{
		errs:    []error{errors.New("timeout"), nil, nil},
		replies: []string{"", "Wow", `Hook: "Nobody tells you this part"`},
	}
	script := "Memory is a complicated biological process that scientists have studied for a very long time. It fades."

	out, replaced := RefineHook(context.Background(), gen, script, "memory", 3, logger.Discard())

	assert.True(t, replaced)
	assert.Equal(t, "Nobody tells you this part. It fades.", out)
	assert.Equal(t, 3, gen.calls)
}

func TestRefineHook_AllAttemptsFailReturnsOriginal(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{errors.New("a"), errors.New("b")}}
	script := "Memory is a complicated biological process that scientists have studied for a very long time. It fades."

	out, replaced := RefineHook(context.Background(), gen, script, "memory", 2, logger.Discard())

	assert.False(t, replaced)
	assert.Equal(t, script, out)
	assert.Equal(t, 2, gen.calls)
}

func TestRefineHook_SingleSentenceIsLeftAlone(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"Nobody tells you this part"}}
	script := "Memory is a complicated biological process that scientists have studied for a very long time"

	out, replaced := RefineHook(context.Background(), gen, script, "memory", 2, logger.Discard())

	assert.False(t, replaced)
	assert.Equal(t, script, out)
	assert.Equal(t, 0, gen.calls)
}

func TestRefineHook_HindiSplicesOnlyFirstSentence(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"नींद का यह राज कोई नहीं बताता"}}
	script := "हर रात हमारा दिमाग कई घंटों तक लगातार सपने देखता रहता है। " +
		"लेकिन सुबह तक हम ज़्यादातर सपने भूल जाते हैं। " +
		"वैज्ञानिक मानते हैं कि यह याददाश्त को साफ़ रखने का तरीका है। " +
		"दिमाग ज़रूरी बातें बचाकर रखता है। " +
		"बाकी सब मिटा देता है।"

	out, replaced := RefineHook(context.Background(), gen, script, "सपने", 2, logger.Discard())

	assert.True(t, replaced)
	sentences := SplitSentences(out)
	assert.Len(t, sentences, 5)
	assert.Equal(t, "नींद का यह राज कोई नहीं बताता।", sentences[0])
	assert.Equal(t, "बाकी सब मिटा देता है।", sentences[4])
	assert.Greater(t, CountWords(out), 30)
}

func TestRewriteLongSentences(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"1. Short version here.\n"}}
	script := "Hi there. This sentence is far too long to be read aloud in one natural breath by anyone."

	out := RewriteLongSentences(context.Background(), gen, script, 10, logger.Discard())

	assert.Equal(t, "Hi there. Short version here.", out)
}

func TestRewriteLongSentences_NoLongSentencesNoCall(t *testing.T) {
	gen := &scriptedGenerator{}
	script := "Short one. Another short one."

	assert.Equal(t, script, RewriteLongSentences(context.Background(), gen, script, 10, logger.Discard()))
	assert.Equal(t, 0, gen.calls)
}
