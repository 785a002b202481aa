package script

import (
	"math"
	"sort"
	"strings"

	"shorts-pipeline/types"
)

// Scorer ranks candidates by length fit, sentence brevity and hook strength.
// It does no I/O.
type Scorer struct {
	IdealMin   int
	IdealMax   int
	HookWeight float64
}

// DefaultScorer targets 130-145 words, roughly 50s of speech.
func DefaultScorer() Scorer {
	return Scorer{IdealMin: 130, IdealMax: 145, HookWeight: 0.5}
}

// NewCandidate builds a candidate from raw text.
func NewCandidate(index int, text string) types.ScriptCandidate {
	text = strings.TrimSpace(text)
	return types.ScriptCandidate{
		Index:     index,
		Text:      text,
		WordCount: CountWords(text),
		Sentences: SplitSentences(text),
	}
}

// Score computes the heuristic score of c.
func (s Scorer) Score(c types.ScriptCandidate) types.ScriptScore {
	var dist int
	switch {
	case c.WordCount < s.IdealMin:
		dist = s.IdealMin - c.WordCount
	case c.WordCount > s.IdealMax:
		dist = c.WordCount - s.IdealMax
	}
	fit := math.Max(0, math.Min(40, 40-float64(dist)*0.8))

	var avg float64
	if len(c.Sentences) > 0 {
		words := 0
		for _, sent := range c.Sentences {
			words += CountWords(sent)
		}
		avg = float64(words) / float64(len(c.Sentences))
	}
	brevity := math.Max(20-avg, 0) * 2

	var hook int
	if len(c.Sentences) > 0 {
		hook = ScoreHook(c.Sentences[0])
	}

	return types.ScriptScore{
		Total:             fit + brevity + float64(hook)*s.HookWeight,
		WordCountFit:      fit,
		AvgSentenceLength: avg,
		HookScore:         float64(hook),
	}
}

// SelectBest picks the highest scoring candidate with at least minWords
// words. When every non-empty candidate is under the floor, the one with the
// most words wins instead. ok is false only if no candidate has any text.
func (s Scorer) SelectBest(cands []types.ScriptCandidate, minWords int) (best types.ScriptCandidate, score types.ScriptScore, ok bool) {
	var nonEmpty, eligible []types.ScriptCandidate
	for _, c := range cands {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		nonEmpty = append(nonEmpty, c)
		if c.WordCount >= minWords {
			eligible = append(eligible, c)
		}
	}
	if len(nonEmpty) == 0 {
		return types.ScriptCandidate{}, types.ScriptScore{}, false
	}

	if len(eligible) == 0 {
		longest := nonEmpty[0]
		for _, c := range nonEmpty[1:] {
			if c.WordCount > longest.WordCount {
				longest = c
			}
		}
		return longest, s.Score(longest), true
	}

	type scored struct {
		c types.ScriptCandidate
		s types.ScriptScore
	}
	ranked := make([]scored, len(eligible))
	for i, c := range eligible {
		ranked[i] = scored{c, s.Score(c)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].s.Total != ranked[j].s.Total {
			return ranked[i].s.Total > ranked[j].s.Total
		}
		return ranked[i].c.Index < ranked[j].c.Index
	})
	return ranked[0].c, ranked[0].s, true
}
