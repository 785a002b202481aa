package research

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"github.com/vartanbeno/go-reddit/v2/reddit"

	"shorts-pipeline/01_script"
	"shorts-pipeline/config"
	"shorts-pipeline/errors"
	"shorts-pipeline/types"
)

// Topic sources recorded in the run state.
const (
	SourceUser   = "user"
	SourceReddit = "reddit"
	SourceIdea   = "idea"
)

// Topic is the seed of one run.
type Topic struct {
	Text   string
	Source string
	URL    string `json:",omitempty"`
}

var (
	tilRe     = regexp.MustCompile(`(?i)^(til|today i learned)\b\s*(that\b|:|-)?\s*`)
	bracketRe = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)
)

// PostLister is the part of the Reddit client the scraper uses.
type PostLister interface {
	HotPosts(ctx context.Context, subreddit string, opts *reddit.ListOptions) ([]*reddit.Post, *reddit.Response, error)
}

// Scraper picks a topic from Reddit hot posts and, failing that, asks the
// text generator for an idea in the configured niche. Topics already used
// are skipped.
type Scraper struct {
	Posts      PostLister
	Gen        script.TextGenerator
	Used       *UsedTopics
	Niche      string
	Subreddits []string
	MinScore   int
	Limit      int
	MinWords   int
	Log        *slog.Logger
}

// New creates a Scraper with a read-only Reddit client.
func New(cfg *config.Config, gen script.TextGenerator, log *slog.Logger) (*Scraper, error) {
	client, err := reddit.NewReadonlyClient(reddit.WithUserAgent("shorts-pipeline/1.0"))
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	r := cfg.Research
	return &Scraper{
		Posts:      client.Subreddit,
		Gen:        gen,
		Used:       NewUsedTopics(cfg.Paths.UsedTopicsLog),
		Niche:      r.Niche,
		Subreddits: r.Subreddits,
		MinScore:   r.MinRedditScore,
		Limit:      r.PostsPerSubreddit,
		MinWords:   r.MinTopicWords,
		Log:        log,
	}, nil
}

// Run returns a fresh topic. A Reddit miss that is covered by a generated
// idea is degraded; no topic at all is fatal.
func (s *Scraper) Run(ctx context.Context, rng *rand.Rand) types.Outcome[Topic] {
	topic, redditErr := s.fromReddit(ctx)
	if redditErr == nil {
		s.markUsed(topic)
		return types.OK(topic)
	}
	s.Log.Warn("no usable reddit topic, generating an idea", "error", redditErr)

	topic, err := s.fromIdea(ctx, rng)
	if err != nil {
		return types.Fatal[Topic](errors.Fatal(errors.StageResearch, "no topic", errors.Join(redditErr, err)))
	}
	s.markUsed(topic)
	return types.Degraded(topic, errors.Degraded(errors.StageResearch, "reddit unavailable", redditErr))
}

func (s *Scraper) markUsed(t Topic) {
	if s.Used == nil {
		return
	}
	if err := s.Used.Add(t.Text); err != nil {
		s.Log.Warn("used-topic log not saved", "error", err)
	}
}

type candidate struct {
	topic Topic
	score int
}

func (s *Scraper) fromReddit(ctx context.Context) (Topic, error) {
	if s.Posts == nil || len(s.Subreddits) == 0 {
		return Topic{}, fmt.Errorf("no subreddits configured")
	}

	var cands []candidate
	var failures []error
	for _, sub := range s.Subreddits {
		posts, _, err := s.Posts.HotPosts(ctx, sub, &reddit.ListOptions{Limit: s.Limit})
		if err != nil {
			s.Log.Warn("subreddit fetch failed", "subreddit", sub, "error", err)
			failures = append(failures, err)
			continue
		}
		for _, p := range posts {
			if p.Score < s.MinScore || p.NSFW || p.Stickied {
				continue
			}
			text := CleanTitle(p.Title)
			if script.CountWords(text) < s.MinWords || s.isUsed(text) {
				continue
			}
			cands = append(cands, candidate{
				topic: Topic{Text: text, Source: SourceReddit, URL: "https://www.reddit.com" + p.Permalink},
				score: p.Score,
			})
		}
		s.Log.Debug("subreddit scanned", "subreddit", sub, "posts", len(posts))
	}

	if len(cands) == 0 {
		if len(failures) > 0 {
			return Topic{}, errors.Join(failures...)
		}
		return Topic{}, fmt.Errorf("no fresh post with score >= %d", s.MinScore)
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	best := cands[0]
	s.Log.Info("topic selected", "source", SourceReddit, "topic", best.topic.Text, "score", best.score)
	return best.topic, nil
}

func (s *Scraper) isUsed(text string) bool {
	return s.Used != nil && s.Used.Contains(text)
}

func ideaPrompt(niche string) string {
	return fmt.Sprintf(`Generate ONE viral YouTube Shorts IDEA for this niche:

%s

STRICT RULES:
- EXACTLY ONE LINE
- 6 to 10 words only
- Curiosity driven
- NO punctuation
- NO emojis
- NO CTA
- NO explanation
- NOT a script

Examples:
Bad: I tried Ronaldo's diet for 24 hours and this happened
Good: Footballers secretly eat junk food before matches

Return ONLY the idea text.`, niche)
}

// ideaAttempts bounds how often a too-short or repeated idea is retried.
const ideaAttempts = 3

func (s *Scraper) fromIdea(ctx context.Context, rng *rand.Rand) (Topic, error) {
	if s.Gen == nil {
		return Topic{}, fmt.Errorf("no text generator")
	}
	niche := s.Niche
	if niche == "" {
		niche = "interesting facts"
	}

	var lastErr error
	for i := 0; i < ideaAttempts; i++ {
		reply, err := s.Gen.Generate(ctx, ideaPrompt(niche))
		if err != nil {
			lastErr = err
			continue
		}
		idea := strings.Trim(script.CleanReply(reply), ".!?।")
		switch {
		case script.CountWords(idea) < s.MinWords:
			lastErr = fmt.Errorf("idea %q has fewer than %d words", idea, s.MinWords)
		case s.isUsed(idea):
			lastErr = fmt.Errorf("idea %q was already used", idea)
		default:
			s.Log.Info("topic selected", "source", SourceIdea, "topic", idea, "niche", niche)
			return Topic{Text: idea, Source: SourceIdea}, nil
		}
		s.Log.Debug("idea rejected", "attempt", i+1, "reason", lastErr)
		// vary the wording on the next try
		if rng != nil {
			niche = s.Niche + " " + []string{"facts", "secrets", "myths", "mistakes"}[rng.Intn(4)]
		}
	}
	return Topic{}, lastErr
}

// CleanTitle turns a post title into a spoken topic: "TIL that" prefixes
// and bracketed tags are removed, whitespace collapsed and trailing
// punctuation trimmed.
func CleanTitle(title string) string {
	t := tilRe.ReplaceAllString(strings.TrimSpace(title), "")
	t = bracketRe.ReplaceAllString(t, "")
	t = strings.Join(strings.Fields(t), " ")
	t = strings.TrimRight(t, " .!?,;:।")
	if t == "" {
		return ""
	}
	return strings.ToUpper(t[:1]) + t[1:]
}
