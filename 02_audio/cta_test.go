package audio

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/01_script"
	"shorts-pipeline/logger"
	"shorts-pipeline/types"
)

func staticGen(reply string, err error) script.TextGenerator {
	return script.GeneratorFunc(func(context.Context, string) (string, error) { return reply, err })
}

func (f *audioFixture) fitter(gen script.TextGenerator, pool ...string) *CTAFitter {
	return &CTAFitter{Gen: gen, Narrator: f.n, Pool: pool, Voices: []string{"en-US-GuyNeural"}, Log: logger.Discard()}
}

func (f *audioFixture) ctaPath(source string) string {
	return filepath.Join(f.run.ScratchDir, "cta_"+source+".mp3")
}

func body(d float64) types.NarrationSegment {
	return types.NarrationSegment{AudioPath: "body.mp3", DurationSeconds: d, Role: types.RoleBody}
}

func TestIsSpeechSynthesizable(t *testing.T) {
	assert.True(t, IsSpeechSynthesizable("Follow for more!"))
	assert.False(t, IsSpeechSynthesizable("Follow now"))
	assert.False(t, IsSpeechSynthesizable("!!! ### ???"))
	assert.False(t, IsSpeechSynthesizable(""))
	assert.True(t, IsSpeechSynthesizable("और वीडियो के लिए फॉलो करें"))
	assert.False(t, IsSpeechSynthesizable("फॉलो करें"))
}

func TestCTAFit_HindiStaysInLanguage(t *testing.T) {
	f := newAudioFixture(t)
	f.n.Language = "hi"
	f.prober.Set(f.ctaPath("generated"), 2.2)

	var prompt string
	gen := script.GeneratorFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "ऐसे और तथ्यों के लिए फॉलो करें", nil
	})
	fitter := &CTAFitter{
		Gen:      gen,
		Narrator: f.n,
		Pool:     []string{"लाइक और फॉलो ज़रूर करें!"},
		Voices:   LanguageVoices("hi"),
		Language: "hi",
		Log:      logger.Discard(),
	}

	res := fitter.Fit(context.Background(), f.run, "सपने क्यों भूलते हैं", body(50))

	assert.Equal(t, types.CTAAttached, res.State)
	assert.Equal(t, "generated", res.Source)
	assert.Equal(t, "ऐसे और तथ्यों के लिए फॉलो करें", res.Text)
	assert.Contains(t, prompt, "देवनागरी")
	assert.Contains(t, prompt, "सपने क्यों भूलते हैं")
	require.NotEmpty(t, f.synth.calls)
	assert.True(t, strings.HasPrefix(f.synth.calls[0].Voice, "hi-IN-"))
}

func TestCTAFit_HindiPoolFallback(t *testing.T) {
	f := newAudioFixture(t)
	f.n.Language = "hi"
	f.prober.Set(f.ctaPath("fallback"), 1.8)

	fitter := &CTAFitter{
		Gen:      staticGen("", errors.New("quota")),
		Narrator: f.n,
		Pool:     []string{"लाइक और फॉलो ज़रूर करें!"},
		Voices:   LanguageVoices("hi"),
		Language: "hi",
		Log:      logger.Discard(),
	}

	res := fitter.Fit(context.Background(), f.run, "सपने", body(40))

	assert.Equal(t, types.CTAAttached, res.State)
	assert.Equal(t, "fallback", res.Source)
	assert.Equal(t, "लाइक और फॉलो ज़रूर करें!", res.Text)
}

func TestCTAPrompt_FallsBackToEnglish(t *testing.T) {
	assert.Contains(t, ctaPrompt("octopus facts", "fr"), "call to action")
	assert.Contains(t, ctaPrompt("octopus facts", "en"), "octopus facts")
}

func TestCTAFit_GeneratedFits(t *testing.T) {
	f := newAudioFixture(t)
	f.prober.Set(f.ctaPath("generated"), 2.4)

	res := f.fitter(staticGen("Follow for more psychology facts", nil), "Like and follow!").
		Fit(context.Background(), f.run, "why we forget names", body(50))

	assert.Equal(t, types.CTAAttached, res.State)
	assert.Equal(t, "generated", res.Source)
	assert.Equal(t, "Follow for more psychology facts", res.Text)
	require.NotNil(t, res.Segment)
	assert.Equal(t, types.RoleCTA, res.Segment.Role)
	assert.LessOrEqual(t, 50+res.Segment.DurationSeconds, types.DurationCapSeconds)
}

func TestCTAFit_MisfitDeletesAudioAndUsesPool(t *testing.T) {
	f := newAudioFixture(t)
	f.prober.Set(f.ctaPath("generated"), 9.5)
	f.prober.Set(f.ctaPath("fallback"), 2.0)

	res := f.fitter(staticGen("Follow this channel for daily mind blowing facts", nil), "Like and follow!").
		Fit(context.Background(), f.run, "topic", body(55))

	assert.Equal(t, types.CTAAttached, res.State)
	assert.Equal(t, "fallback", res.Source)
	assert.Equal(t, "Like and follow!", res.Text)
	assert.NoFileExists(t, f.ctaPath("generated"))
	assert.FileExists(t, f.ctaPath("fallback"))
}

func TestCTAFit_RejectedCandidateIsNeverSynthesized(t *testing.T) {
	f := newAudioFixture(t)
	f.prober.Set(f.ctaPath("fallback"), 1.5)

	res := f.fitter(staticGen("!!!", nil), "Follow for more!").
		Fit(context.Background(), f.run, "topic", body(40))

	assert.Equal(t, types.CTAAttached, res.State)
	assert.Equal(t, "fallback", res.Source)
	for _, c := range f.synth.calls {
		assert.NotContains(t, c.Text, "!!!")
	}
}

func TestCTAFit_GeneratorErrorFallsBackToPool(t *testing.T) {
	f := newAudioFixture(t)
	f.prober.Set(f.ctaPath("fallback"), 1.5)

	res := f.fitter(staticGen("", errors.New("quota")), "Subscribe for more shorts!").
		Fit(context.Background(), f.run, "topic", body(40))

	assert.Equal(t, types.CTAAttached, res.State)
	assert.Equal(t, "Subscribe for more shorts!", res.Text)
}

func TestCTAFit_NothingFitsIsDropped(t *testing.T) {
	f := newAudioFixture(t)
	f.prober.Set(f.ctaPath("generated"), 3)
	f.prober.Set(f.ctaPath("fallback"), 2)

	res := f.fitter(staticGen("Follow for more facts", nil), "Like and follow!").
		Fit(context.Background(), f.run, "topic", body(58.2))

	assert.Equal(t, types.CTADropped, res.State)
	assert.Nil(t, res.Segment)
	assert.NoFileExists(t, f.ctaPath("generated"))
	assert.NoFileExists(t, f.ctaPath("fallback"))
}

func TestCTAFit_SynthesisFailureIsDropped(t *testing.T) {
	f := newAudioFixture(t)
	f.synth.fail = func(text, _ string) error {
		if strings.Contains(text, "ollow") {
			return errors.New("tts down")
		}
		return nil
	}

	res := f.fitter(staticGen("Follow for more facts", nil), "Like and follow!").
		Fit(context.Background(), f.run, "topic", body(30))

	assert.Equal(t, types.CTADropped, res.State)
}
