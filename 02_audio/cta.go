package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"shorts-pipeline/01_script"
	"shorts-pipeline/types"
)

// Devanagari consonants carry an inherent vowel
var vowelRe = regexp.MustCompile(`[aeiouAEIOU\p{Devanagari}]`)

// IsSpeechSynthesizable reports whether text is worth sending to TTS: at
// least three words and at least one vowel.
func IsSpeechSynthesizable(text string) bool {
	return script.CountWords(text) >= 3 && vowelRe.MatchString(text)
}

// CTAResult is the terminal state of one CTAFitter run. Segment is nil when
// the CTA was dropped.
type CTAResult struct {
	State   types.CTAState
	Text    string
	Source  string
	Segment *types.NarrationSegment
}

// CTAFitter attaches a spoken call-to-action only when it fits the duration
// cap together with the body. It never fails the run.
type CTAFitter struct {
	Gen      script.TextGenerator
	Narrator *Narrator
	Pool     []string
	Voices   []string
	Language string
	Log      *slog.Logger
}

// Fit runs the fitter. The generated candidate is tried first, then one
// phrase from the fallback pool; anything else ends in CTA_DROPPED.
func (f *CTAFitter) Fit(ctx context.Context, run *types.RunContext, topic string, body types.NarrationSegment) CTAResult {
	if f.Gen != nil {
		reply, err := f.Gen.Generate(ctx, ctaPrompt(topic, f.Language))
		text := script.CleanReply(reply)
		switch {
		case err != nil:
			f.Log.Warn("cta generation failed", "error", err)
		case !IsSpeechSynthesizable(text):
			f.Log.Warn("cta rejected before synthesis", "text", text)
		default:
			if res, ok := f.try(ctx, run, text, "generated", body); ok {
				return res
			}
		}
	}

	if len(f.Pool) > 0 {
		text := f.Pool[run.Rand.Intn(len(f.Pool))]
		if IsSpeechSynthesizable(text) {
			if res, ok := f.try(ctx, run, text, "fallback", body); ok {
				return res
			}
		}
	}

	f.Log.Info("cta dropped", "body", fmt.Sprintf("%.2fs", body.DurationSeconds))
	return CTAResult{State: types.CTADropped}
}

// try synthesizes text and keeps it only when body+cta fits the cap. A
// misfit deletes the audio.
func (f *CTAFitter) try(ctx context.Context, run *types.RunContext, text, source string, body types.NarrationSegment) (CTAResult, bool) {
	out := filepath.Join(run.ScratchDir, fmt.Sprintf("cta_%s.mp3", source))
	seg, err := f.Narrator.Narrate(ctx, run, script.SanitizeForTTS(text), f.Voices, types.RoleCTA, out)
	if err != nil {
		f.Log.Warn("cta synthesis failed", "source", source, "error", err)
		os.Remove(out)
		return CTAResult{}, false
	}

	if !types.FitsCap(body.DurationSeconds, seg.DurationSeconds) {
		f.Log.Info("cta does not fit",
			"source", source,
			"body", fmt.Sprintf("%.2fs", body.DurationSeconds),
			"cta", fmt.Sprintf("%.2fs", seg.DurationSeconds))
		os.Remove(seg.AudioPath)
		return CTAResult{}, false
	}

	f.Log.Info("cta attached", "source", source, "text", text, "cta", fmt.Sprintf("%.2fs", seg.DurationSeconds))
	return CTAResult{State: types.CTAAttached, Text: text, Source: source, Segment: &seg}, true
}

var ctaPrompts = map[string]string{
	"en": `Write ONE short spoken call to action for the end of a YouTube Short about:
%s

Rules:
- 3 to 8 words
- Ask the viewer to follow or subscribe
- No emojis, no hashtags, no quotes
- Return ONLY the line`,
	"hi": `इस विषय पर YouTube Short के अंत के लिए बोली जाने वाली एक छोटी CTA लाइन लिखिए:
%s

नियम:
- 3 से 8 शब्द
- हिंदी में, देवनागरी लिपि में
- दर्शक से फॉलो या सब्सक्राइब करने को कहें
- कोई इमोजी, हैशटैग या उद्धरण चिह्न नहीं
- केवल लाइन लौटाएँ`,
}

func ctaPrompt(topic, lang string) string {
	tmpl, ok := ctaPrompts[lang]
	if !ok {
		tmpl = ctaPrompts["en"]
	}
	return fmt.Sprintf(tmpl, topic)
}
