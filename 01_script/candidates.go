package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"shorts-pipeline/errors"
	"shorts-pipeline/types"
)

var bodyPrompts = map[string]string{
	"en": `Write a SPOKEN YouTube Shorts script BODY (no call to action).

Goal: maximize retention. The first line must stop the scroll.

Rules:
- Between 130 and 145 words
- Natural spoken English, like explaining to a friend
- No meta language ("this video", "you will learn")
- No emojis, lists, headings or formatting
- Short, punchy sentences, easy to follow when heard once

Structure:
1) A strong curiosity hook: a counterintuitive fact, a direct second-person statement or a surprising question
2) Why this matters to the viewer personally
3) The insight, revealed step by step
4) End on a satisfying or thought-provoking line

Topic:
%s

Return ONLY the spoken script body.`,

	"hi": `YouTube Shorts के लिए बोला जाने वाला स्क्रिप्ट लिखिए (CTA नहीं).

नियम:
- 130 से 145 शब्द
- आसान बोलचाल की हिंदी
- कोई emoji, list या heading नहीं
- छोटे और असरदार वाक्य

पहली लाइन ऐसी हो कि दर्शक रुक जाए।

विषय:
%s

सिर्फ बोला जाने वाला स्क्रिप्ट लौटाइए।`,
}

// BodyPrompt returns the script prompt for topic in the given language,
// falling back to English.
func BodyPrompt(topic, lang string) string {
	tmpl, ok := bodyPrompts[lang]
	if !ok {
		tmpl = bodyPrompts["en"]
	}
	return fmt.Sprintf(tmpl, topic)
}

// GenerateCandidates asks gen for n independent scripts. A failed or empty
// candidate is logged and skipped; only zero usable candidates is fatal.
func GenerateCandidates(ctx context.Context, gen TextGenerator, topic, lang string, n int, log *slog.Logger) ([]types.ScriptCandidate, error) {
	prompt := BodyPrompt(topic, lang)

	cands := make([]types.ScriptCandidate, 0, n)
	var lastErr error
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Fatal(errors.StageScript, "generation cancelled", err)
		}
		raw, err := gen.Generate(ctx, prompt)
		if err != nil {
			lastErr = err
			log.Warn("script candidate failed", "candidate", i, "error", err)
			continue
		}
		text := cleanCandidate(raw)
		if text == "" {
			log.Warn("script candidate empty after cleanup", "candidate", i)
			continue
		}
		c := NewCandidate(i, text)
		log.Debug("script candidate", "candidate", i, "words", c.WordCount, "sentences", len(c.Sentences))
		cands = append(cands, c)
	}

	if len(cands) == 0 {
		if lastErr == nil {
			lastErr = fmt.Errorf("all %d candidates were empty", n)
		}
		return nil, errors.Fatal(errors.StageScript, "no script candidates", lastErr)
	}
	return cands, nil
}

// cleanCandidate drops leakage lines before list numbering is stripped, so a
// numbered reply keeps one sentence per item.
func cleanCandidate(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		if s := CleanLLMScript(line); s != "" {
			kept = append(kept, s)
		}
	}
	return SanitizeSpoken(strings.Join(kept, "\n"))
}
