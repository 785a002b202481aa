package types

import (
	"math/rand"
	"strings"
)

// ScriptCandidate is one generated narration text, before selection.
type ScriptCandidate struct {
	Index     int      `json:"index"` // generation order, used as the tie-break
	Text      string   `json:"text"`
	WordCount int      `json:"word_count"`
	Sentences []string `json:"sentences"`
}

// ScriptScore is the heuristic ranking of a candidate
type ScriptScore struct {
	Total             float64 `json:"total"`
	WordCountFit      float64 `json:"word_count_fit"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
	HookScore         float64 `json:"hook_score"`
}

// SegmentRole tells body narration apart from the call-to-action
type SegmentRole string

const (
	RoleBody SegmentRole = "body"
	RoleCTA  SegmentRole = "cta"
)

// NarrationSegment is one synthesized audio file owned by the run
type NarrationSegment struct {
	AudioPath       string      `json:"audio_path"`
	DurationSeconds float64     `json:"duration_seconds"`
	Role            SegmentRole `json:"role"`
}

// CTAState is the terminal state of the CTA fitter
type CTAState string

const (
	CTAAttached CTAState = "CTA_ATTACHED"
	CTADropped  CTAState = "CTA_DROPPED"
)

// ClipPlanEntry is one background segment of the final video
type ClipPlanEntry struct {
	SourceClipID   string  `json:"source_clip_id"`
	SourcePath     string  `json:"source_path"`
	TargetDuration float64 `json:"target_duration"`
}

// ClipPlan is the ordered list of background segments
type ClipPlan struct {
	Entries []ClipPlanEntry `json:"entries"`
}

// Sum returns the total planned duration.
func (p ClipPlan) Sum() float64 {
	var total float64
	for _, e := range p.Entries {
		total += e.TargetDuration
	}
	return total
}

// Provider identifies a stock footage source
type Provider string

const (
	ProviderPexels  Provider = "pexels"
	ProviderPixabay Provider = "pixabay"
)

// MediaAsset is a downloaded stock clip
type MediaAsset struct {
	Provider   Provider `json:"provider"`
	ExternalID string   `json:"external_id"`
	LocalPath  string   `json:"local_path"`
	HeightPx   int      `json:"height_px"`
}

// Key is the identity used for in-run and cross-run dedup.
func (a MediaAsset) Key() string {
	return AssetKey(a.Provider, a.ExternalID)
}

// AssetKey joins provider and external id into a dedup key.
func AssetKey(p Provider, externalID string) string {
	return string(p) + ":" + externalID
}

// SplitAssetKey reverses AssetKey.
func SplitAssetKey(key string) (Provider, string, bool) {
	p, id, ok := strings.Cut(key, ":")
	if !ok || p == "" || id == "" {
		return "", "", false
	}
	return Provider(p), id, true
}

// RunContext carries the per-run state that stages share: the run's
// directories, the in-run dedup set and the random source. One RunContext
// belongs to exactly one run and is not safe for concurrent use.
type RunContext struct {
	ID         string
	Dir        string
	ScratchDir string
	Rand       *rand.Rand

	used map[string]struct{}
}

// NewRunContext creates a RunContext. A nil rng is replaced by one seeded
// from the run ID so that every run still gets its own source.
func NewRunContext(id, dir, scratchDir string, rng *rand.Rand) *RunContext {
	if rng == nil {
		var seed int64
		for _, c := range id {
			seed = seed*31 + int64(c)
		}
		rng = rand.New(rand.NewSource(seed))
	}
	return &RunContext{
		ID:         id,
		Dir:        dir,
		ScratchDir: scratchDir,
		Rand:       rng,
		used:       make(map[string]struct{}),
	}
}

// Used reports whether key was already claimed in this run.
func (rc *RunContext) Used(key string) bool {
	_, ok := rc.used[key]
	return ok
}

// MarkUsed claims key for this run.
func (rc *RunContext) MarkUsed(key string) {
	rc.used[key] = struct{}{}
}

// UsedCount returns how many keys this run has claimed.
func (rc *RunContext) UsedCount() int {
	return len(rc.used)
}

// VideoMetadata holds the upload metadata for the rendered short
type VideoMetadata struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Hashtags         []string `json:"hashtags"`
	Tags             []string `json:"tags"`
	CategoryID       string   `json:"category_id"`
	Visibility       string   `json:"visibility"`
	ScheduledTimeUTC string   `json:"scheduled_time_utc,omitempty"`
}

// Degradation records a stage that fell back instead of producing its
// primary output.
type Degradation struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// PipelineState tracks the full state of one pipeline run
type PipelineState struct {
	RunID       string `json:"run_id"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`

	Topic       string `json:"topic"`
	TopicSource string `json:"topic_source"`

	Candidates  int         `json:"candidates"`
	ScriptScore ScriptScore `json:"script_score"`
	HookRefined bool        `json:"hook_refined"`
	Script      string      `json:"script"`

	BodyAudio string          `json:"body_audio"`
	CTA       CTAState        `json:"cta_state"`
	CTAText   string          `json:"cta_text,omitempty"`
	AudioFile string          `json:"audio_file"`
	Budget    *DurationBudget `json:"budget,omitempty"`

	SubtitleFile       string       `json:"subtitle_file,omitempty"`
	ClipDurations      []float64    `json:"clip_durations,omitempty"`
	Assets             []MediaAsset `json:"assets,omitempty"`
	BackgroundFile     string       `json:"background_file"`
	BackgroundFallback bool         `json:"background_fallback"`
	MusicFile          string       `json:"music_file"`

	VideoFile string         `json:"video_file"`
	Metadata  *VideoMetadata `json:"metadata,omitempty"`

	YouTubeID  string `json:"youtube_id,omitempty"`
	YouTubeURL string `json:"youtube_url,omitempty"`

	Degradations []Degradation `json:"degradations,omitempty"`
	FailedStage  string        `json:"failed_stage,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Degrade appends a degradation record.
func (s *PipelineState) Degrade(stage string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.Degradations = append(s.Degradations, Degradation{Stage: stage, Message: msg})
}
