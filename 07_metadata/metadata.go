package metadata

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/lo"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

const descriptionFooter = "👍 Like the video if you found this interesting\n" +
	"🔔 Subscribe for more short facts and insights\n" +
	"💬 Comment your thoughts below\n\n" +
	"Daily shorts on facts, psychology, and self-improvement."

// keyword -> hashtag, checked in order
var keywordTags = []struct{ key, tag string }{
	{"brain", "#brain"},
	{"mind", "#mind"},
	{"psychology", "#psychology"},
	{"habit", "#habits"},
	{"focus", "#focus"},
	{"sleep", "#sleep"},
	{"health", "#health"},
	{"money", "#money"},
	{"success", "#success"},
	{"motivation", "#motivation"},
}

var (
	nicheTags     = []string{"#facts", "#selfimprovement", "#learning", "#knowledge"}
	discoveryTags = []string{"#viral", "#trending", "#foryou"}
)

const (
	maxTopicTags     = 6 // including #shorts
	maxWithNicheTags = 9
)

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]`)
)

// Generator builds upload metadata from the topic and final script. It is
// deterministic: no model is asked, so the title never drifts from the
// topic.
type Generator struct {
	TitleMaxChars int
	MaxHashtags   int
	CategoryID    string
	Visibility    string
	Log           *slog.Logger
}

// New creates a Generator from config.
func New(cfg *config.Config, log *slog.Logger) *Generator {
	return &Generator{
		TitleMaxChars: cfg.Metadata.TitleMaxChars,
		MaxHashtags:   cfg.Metadata.MaxHashtags,
		CategoryID:    cfg.Metadata.CategoryID,
		Visibility:    cfg.Upload.Visibility,
		Log:           log,
	}
}

// Generate returns the metadata for one short.
func (g *Generator) Generate(topic, script string) *types.VideoMetadata {
	hashtags := Hashtags(topic, script, g.MaxHashtags)
	meta := &types.VideoMetadata{
		Title:       Title(topic, g.TitleMaxChars),
		Description: Description(topic),
		Hashtags:    hashtags,
		Tags: lo.Map(hashtags, func(h string, _ int) string {
			return strings.TrimPrefix(h, "#")
		}),
		CategoryID: g.CategoryID,
		Visibility: g.Visibility,
	}
	g.Log.Info("metadata ready", "title", meta.Title, "hashtags", len(meta.Hashtags))
	return meta
}

// Title cleans topic into a title of at most maxChars characters, cutting
// at a word boundary and appending "..." when it is too long.
func Title(topic string, maxChars int) string {
	title := strings.TrimSpace(spaceRe.ReplaceAllString(topic, " "))
	if title == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(title)
	title = string(unicode.ToUpper(r)) + title[size:]

	runes := []rune(title)
	if maxChars <= 3 || len(runes) <= maxChars {
		return title
	}
	cut := string(runes[:maxChars-3])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:-") + "..."
}

// Description is the fixed description template around the topic.
func Description(topic string) string {
	return strings.TrimRight(strings.TrimSpace(topic), ".") + ".\n\n" + descriptionFooter
}

// Hashtags returns #shorts, topic keyword tags, niche tags and discovery
// tags, in that order and without duplicates, capped at limit.
func Hashtags(topic, script string, limit int) []string {
	text := nonAlnumRe.ReplaceAllString(strings.ToLower(topic+" "+script), "")

	tags := []string{"#shorts"}
	for _, kt := range keywordTags {
		if len(tags) >= maxTopicTags {
			break
		}
		if strings.Contains(text, kt.key) {
			tags = append(tags, kt.tag)
		}
	}
	for _, t := range nicheTags {
		if len(tags) < maxWithNicheTags {
			tags = append(tags, t)
		}
	}
	tags = append(tags, discoveryTags...)

	tags = lo.Uniq(tags)
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}
	return tags
}

// Save writes meta as indented JSON.
func Save(path string, meta *types.VideoMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
