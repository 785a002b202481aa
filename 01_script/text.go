package script

import (
	"regexp"
	"strings"
	"unicode"
)

var sentenceRe = regexp.MustCompile(`[^.!?।॥]+[.!?।॥]*`)

// SplitSentences splits text on ., !, ? and the Devanagari danda, keeping the
// terminal punctuation and dropping empty pieces.
func SplitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	var out []string
	for _, m := range sentenceRe.FindAllString(text, -1) {
		s := strings.TrimSpace(m)
		if strings.TrimFunc(s, isPunct) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// CountWords counts whitespace separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// JoinSentences rebuilds a script from sentences, terminating each one.
func JoinSentences(sentences []string) string {
	parts := make([]string, 0, len(sentences))
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		parts = append(parts, terminate(s))
	}
	return strings.Join(parts, " ")
}

// terminate ends s with a full stop unless it already has a terminator.
// Devanagari text gets a danda.
func terminate(s string) string {
	if strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") ||
		strings.HasSuffix(s, "।") || strings.HasSuffix(s, "॥") {
		return s
	}
	if strings.IndexFunc(s, isDevanagari) >= 0 {
		return s + "।"
	}
	return s + "."
}

func isDevanagari(r rune) bool {
	return unicode.Is(unicode.Devanagari, r)
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || r == '।' || r == '॥'
}

// normalizeWord lowercases w and strips surrounding punctuation.
func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}))
}

var leakagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^here'?s.*script`),
	regexp.MustCompile(`^here is.*script`),
	regexp.MustCompile(`^write a.*script`),
	regexp.MustCompile(`^this video`),
	regexp.MustCompile(`^in this video`),
	regexp.MustCompile(`^youtube shorts`),
	regexp.MustCompile(`^30[-–]?45 second`),
	regexp.MustCompile(`^spoken script`),
	regexp.MustCompile(`^(sure|okay|certainly)[,!.]`),
}

// CleanLLMScript drops lines where the model talks about the script instead
// of speaking it, and joins the rest into one paragraph.
func CleanLLMScript(text string) string {
	var kept []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		lower := strings.ToLower(strings.TrimSpace(line))
		if lower == "" {
			continue
		}
		leak := false
		for _, p := range leakagePatterns {
			if p.MatchString(lower) {
				leak = true
				break
			}
		}
		if !leak {
			kept = append(kept, strings.TrimSpace(line))
		}
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

var (
	metaLineRe     = regexp.MustCompile(`(?i)(here are|rewritten|sentences|following|example|script)`)
	numberOnlyRe   = regexp.MustCompile(`^\d+$`)
	numberPrefixRe = regexp.MustCompile(`^\d+\s*[.)\-:]\s*`)
	listStartRe    = regexp.MustCompile(`(?i)^(first|second|third|next|finally)\s+`)
	markdownRe     = regexp.MustCompile(`[*#_` + "`" + `]+`)
)

// SanitizeSpoken turns list-like model output into a spoken paragraph: meta
// lines and numbering are removed.
func SanitizeSpoken(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(markdownRe.ReplaceAllString(line, ""))
		if line == "" || metaLineRe.MatchString(line) || numberOnlyRe.MatchString(line) {
			continue
		}
		line = numberPrefixRe.ReplaceAllString(line, "")
		line = listStartRe.ReplaceAllString(line, "")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
}

var mojibake = strings.NewReplacer(
	"â€œ", "",
	"â€\u009d", "",
	"â€™", "'",
	"“", "",
	"”", "",
	"’", "'",
)

// SanitizeForTTS is the minimal cleanup applied right before synthesis. It
// only returns "" for blank input.
func SanitizeForTTS(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	text = mojibake.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

// CleanReply keeps the first non-empty line of a short model reply with any
// quoting or label prefix removed.
func CleanReply(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(markdownRe.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		if i := strings.Index(line, ":"); i > 0 && i < 12 && !strings.ContainsAny(line[:i], " ") {
			line = strings.TrimSpace(line[i+1:])
		}
		return strings.Trim(line, `"'“”`)
	}
	return ""
}
