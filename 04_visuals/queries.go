package visuals

import (
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Words that add no visual meaning
var stopwords = map[string]bool{
	"the": true, "is": true, "are": true, "was": true, "were": true, "why": true, "how": true, "what": true,
	"you": true, "your": true, "they": true, "them": true, "this": true, "that": true, "these": true,
	"those": true, "and": true, "or": true, "but": true, "if": true, "then": true, "because": true,
	"to": true, "of": true, "in": true, "on": true, "with": true, "for": true, "as": true, "by": true,
}

// Abstract ideas mapped to concrete, searchable footage
var visualExpansions = map[string][]string{
	"discipline": {"man waking up early dark room", "athlete training alone sunrise", "person resisting temptation cinematic"},
	"focus":      {"man concentrating desk night", "deep focus work dark room", "focused eyes cinematic close up"},
	"success":    {"athlete winning slow motion", "business success city night", "man standing alone mountain top"},
	"failure":    {"man sitting alone defeated", "athlete exhausted after loss", "dark room emotional moment"},
	"growth":     {"man improving daily routine", "training progress montage", "sunrise journey cinematic"},
	"money":      {"city skyline night wealth", "entrepreneur working late office", "luxury lifestyle cinematic"},
	"life":       {"real life moments cinematic", "people walking city slow motion", "human behavior documentary style"},
}

var genericVisuals = []string{
	"cinematic abstract motion background",
	"moody cinematic lighting",
	"cinematic bokeh light motion",
}

var keywordRe = regexp.MustCompile(`[a-zA-Z]{3,}`)

// ExtractKeywords returns up to topK non-stopword words of at least three
// letters, most frequent first. Ties keep first-appearance order.
func ExtractKeywords(text string, topK int) []string {
	words := lo.Filter(keywordRe.FindAllString(strings.ToLower(text), -1), func(w string, _ int) bool {
		return !stopwords[w]
	})
	if len(words) == 0 {
		return nil
	}

	freq := lo.CountValues(words)
	uniq := lo.Uniq(words)
	sort.SliceStable(uniq, func(i, j int) bool { return freq[uniq[i]] > freq[uniq[j]] })

	if len(uniq) > topK {
		uniq = uniq[:topK]
	}
	return uniq
}

// BuildQueries turns a topic into stock footage search terms: expansions for
// abstract keywords, "<kw> cinematic background" style terms otherwise, then
// generic cinematic fallbacks. Duplicates are removed in order.
func BuildQueries(topic string) []string {
	var queries []string
	for _, kw := range ExtractKeywords(topic, 5) {
		if exp, ok := visualExpansions[kw]; ok {
			queries = append(queries, exp...)
			continue
		}
		queries = append(queries, kw+" cinematic background", kw+" real life footage")
	}
	queries = append(queries, genericVisuals...)
	return lo.Uniq(queries)
}
