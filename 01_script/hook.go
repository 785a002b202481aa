package script

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

// HookAcceptScore is the hook score at which refinement is skipped.
const HookAcceptScore = 80

var questionWords = map[string]bool{
	"why": true, "what": true, "how": true, "who": true, "when": true, "where": true, "which": true,
	"is": true, "are": true, "do": true, "does": true, "did": true, "can": true,
	"would": true, "could": true, "should": true, "have": true, "has": true,
}

var secondPerson = map[string]bool{
	"you": true, "your": true, "you're": true, "yours": true, "yourself": true, "you've": true, "you'll": true,
}

var powerWords = map[string]bool{
	"why": true, "secret": true, "truth": true, "mistake": true, "nobody": true, "never": true,
	"stop": true, "this": true, "you": true, "they": true, "real": true, "hidden": true,
	"always": true, "shocking": true, "lie": true, "lying": true, "wrong": true, "brain": true,
}

// ScoreHook scores an opening sentence from 0 to 100.
func ScoreHook(sentence string) int {
	fields := strings.Fields(sentence)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := normalizeWord(f); w != "" {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return 0
	}

	score := 0
	switch {
	case len(words) <= 8:
		score += 30
	case len(words) <= 12:
		score += 15
	}

	if strings.Contains(sentence, "?") {
		score += 20
	}
	if questionWords[words[0]] {
		score += 15
	}

	power := 0
	addressed := false
	for _, w := range words {
		if secondPerson[w] {
			addressed = true
		}
		if powerWords[w] {
			power += 5
		}
	}
	if addressed {
		score += 15
	}
	score += min(power, 20)

	if strings.IndexFunc(sentence, unicode.IsDigit) >= 0 {
		score += 10
	}

	return min(score, 100)
}

// RefineHook replaces the opening sentence of script when its hook score is
// below HookAcceptScore. It makes at most maxAttempts generator calls and
// keeps the first reply with three or more words. It never fails: on any
// error the original script is returned with replaced=false. A script that
// splits into fewer than two sentences is left alone, since its first
// sentence is the whole body.
func RefineHook(ctx context.Context, gen TextGenerator, script, topic string, maxAttempts int, log *slog.Logger) (refined string, replaced bool) {
	sentences := SplitSentences(script)
	if len(sentences) < 2 {
		return script, false
	}
	hook := sentences[0]
	if ScoreHook(hook) >= HookAcceptScore {
		return script, false
	}

	prompt := hookPrompt(topic, hook)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			break
		}
		reply, err := gen.Generate(ctx, prompt)
		if err != nil {
			if log != nil {
				log.Warn("hook regeneration failed", "attempt", attempt, "error", err)
			}
			continue
		}
		candidate := CleanReply(reply)
		if CountWords(candidate) < 3 {
			if log != nil {
				log.Warn("hook reply rejected", "attempt", attempt, "reply", candidate)
			}
			continue
		}
		sentences[0] = terminate(candidate)
		if log != nil {
			log.Info("hook replaced", "old_score", ScoreHook(hook), "new_score", ScoreHook(candidate))
		}
		return JoinSentences(sentences), true
	}
	return script, false
}

// RewriteLongSentences asks the generator to shorten every sentence over
// maxWords in a single call. Replies are matched line by line; anything that
// cannot be matched keeps its original sentence.
func RewriteLongSentences(ctx context.Context, gen TextGenerator, script string, maxWords int, log *slog.Logger) string {
	sentences := SplitSentences(script)
	var long []int
	for i, s := range sentences {
		if CountWords(s) > maxWords {
			long = append(long, i)
		}
	}
	if len(long) == 0 {
		return script
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Rewrite each sentence to at most %d words.\nKeep the meaning. Spoken dialogue.\nReturn the rewritten sentences one per line, nothing else.\n\nSentences:\n", maxWords)
	for _, i := range long {
		sb.WriteString(sentences[i])
		sb.WriteString("\n")
	}

	reply, err := gen.Generate(ctx, sb.String())
	if err != nil {
		if log != nil {
			log.Warn("sentence rewrite skipped", "error", err)
		}
		return script
	}

	var lines []string
	for _, l := range strings.Split(reply, "\n") {
		l = strings.TrimSpace(numberPrefixRe.ReplaceAllString(strings.TrimSpace(l), ""))
		if l != "" {
			lines = append(lines, l)
		}
	}
	for n, i := range long {
		if n >= len(lines) {
			break
		}
		if CountWords(lines[n]) >= 2 {
			sentences[i] = lines[n]
		}
	}
	return JoinSentences(sentences)
}

func hookPrompt(topic, current string) string {
	return fmt.Sprintf(`Rewrite ONLY the opening line of a YouTube Shorts narration so viewers stop scrolling.

Topic:
%s

Current opening line:
%s

Rules:
- At most 10 words
- Spoken, curiosity driven, speak to the viewer
- Return ONLY the new line`, topic, current)
}
