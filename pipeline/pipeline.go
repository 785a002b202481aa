// Package pipeline drives one short from topic to rendered (and optionally
// uploaded) video. Every stage reports an Outcome; degraded stages are
// recorded in the run state and the run continues, a fatal one ends it.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"shorts-pipeline/00_research"
	"shorts-pipeline/01_script"
	"shorts-pipeline/02_audio"
	"shorts-pipeline/03_subtitles"
	"shorts-pipeline/04_visuals"
	"shorts-pipeline/05_music"
	"shorts-pipeline/06_render"
	"shorts-pipeline/07_metadata"
	"shorts-pipeline/08_upload"
	"shorts-pipeline/config"
	"shorts-pipeline/errors"
	"shorts-pipeline/logger"
	"shorts-pipeline/media"
	"shorts-pipeline/types"
)

// File names inside a run directory.
const (
	StateFile    = "pipeline_state.json"
	MetadataFile = "metadata.json"
	VideoFile    = "short.mp4"
	scratchDir   = "scratch"
)

// TopicSource seeds a run when no topic is given.
type TopicSource interface {
	Run(ctx context.Context, rng *rand.Rand) types.Outcome[research.Topic]
}

// Renderer encodes the final video.
type Renderer interface {
	Render(ctx context.Context, job render.Job, out string) error
}

// Uploader publishes the rendered video.
type Uploader interface {
	Upload(ctx context.Context, videoFile string, meta *types.VideoMetadata) (upload.Result, error)
}

// Pipeline holds the stage collaborators. Optional stages are disabled by
// leaving them nil: CTA, Captions, Uploader.
type Pipeline struct {
	Cfg *config.Config

	Topics     TopicSource
	Gen        script.TextGenerator
	Scorer     script.Scorer
	Narrator   *audio.Narrator
	CTA        *audio.CTAFitter
	Merger     *audio.Merger
	Captions   *subtitles.Stage
	Background *visuals.BackgroundStage
	Music      *music.Stage
	Renderer   Renderer
	Metadata   *metadata.Generator
	Uploader   Uploader

	Log *slog.Logger

	NewRunID func() string
	NewRand  func(runID string) *rand.Rand
	Now      func() time.Time
}

// Shared is what concurrent runs in one process have in common: the usage
// history, the per-asset locks and the provider rate limiter.
type Shared struct {
	History visuals.History
	Locks   *visuals.KeyLocks
	Limiter *visuals.KeyedRateLimiter
}

// NewShared opens the configured history backend.
func NewShared(cfg *config.Config) (*Shared, error) {
	h, err := visuals.OpenHistory(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &Shared{
		History: h,
		Locks:   &visuals.KeyLocks{},
		Limiter: visuals.NewKeyedRateLimiter(cfg.Visuals.ProviderRPS, cfg.Visuals.ProviderBurst),
	}, nil
}

// Close releases the history backend.
func (s *Shared) Close() error {
	return s.History.Close()
}

// New wires the production collaborators: ffmpeg, edge-tts (or the
// configured TTS command), whisper, the stock footage providers and the
// configured text generator.
func New(cfg *config.Config, shared *Shared, log *slog.Logger) (*Pipeline, error) {
	ff := media.New(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, cfg.Media.CommandTimeout)
	runner := media.ExecRunner{}

	gen, err := script.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("text generator: %w", err)
	}
	gen = script.WithRetry(gen, cfg.Script.GeneratorAttempts, 2*time.Second, logger.Stage(log, errors.StageScript))

	synth, err := audio.NewSynthesizer(cfg, runner)
	if err != nil {
		return nil, err
	}

	topics, err := research.New(cfg, gen, logger.Stage(log, errors.StageResearch))
	if err != nil {
		return nil, err
	}

	g := media.Geometry{Width: cfg.Visuals.Width, Height: cfg.Visuals.Height, FPS: cfg.Visuals.FPS}
	narrator := audio.NewNarrator(cfg.Audio, cfg.Script.Language, synth, ff, ff, logger.Stage(log, errors.StageNarration))

	p := &Pipeline{
		Cfg:      cfg,
		Topics:   topics,
		Gen:      gen,
		Scorer:   scorerFor(cfg.Script),
		Narrator: narrator,
		Merger:   &audio.Merger{Editor: ff, Prober: ff, Log: logger.Stage(log, errors.StageMerge)},
		Music: music.NewStage(cfg.Music,
			music.NewPixabayFetcher(cfg.Secrets.PixabayAPIKey, cfg.Paths.MusicCache, cfg.Visuals.DownloadTimeout, logger.Stage(log, errors.StageMusic)),
			ff, logger.Stage(log, errors.StageMusic)),
		Renderer: render.New(cfg, runner, logger.Stage(log, errors.StageRender)),
		Metadata: metadata.New(cfg, logger.Stage(log, errors.StageMetadata)),
		Log:      log,
	}

	if cfg.Audio.CTAEnabled {
		p.CTA = &audio.CTAFitter{
			Gen:      gen,
			Narrator: narrator,
			Pool:     cfg.Audio.CTAFallbackPools[cfg.Script.Language],
			Voices:   audio.LanguageVoices(cfg.Script.Language),
			Language: cfg.Script.Language,
			Log:      logger.Stage(log, errors.StageCTA),
		}
	}
	if cfg.Subtitles.Enabled {
		p.Captions = &subtitles.Stage{
			Captioner: subtitles.NewWhisper(cfg.Subtitles, runner),
			Editor:    ff,
			Log:       logger.Stage(log, errors.StageCaptions),
		}
	}
	if cfg.Upload.Enabled {
		p.Uploader = upload.New(cfg, logger.Stage(log, errors.StageUpload))
	}

	bgLog := logger.Stage(log, errors.StageBackground)
	var providers []visuals.Provider
	for _, pr := range visuals.NewProviders(cfg) {
		providers = append(providers, visuals.RateLimited(pr, shared.Limiter))
	}
	if len(providers) == 0 {
		bgLog.Warn("no stock footage API keys set, backgrounds will use the fallback")
	}
	p.Background = &visuals.BackgroundStage{
		Source:   visuals.NewAcquirer(cfg, providers, shared.History, shared.Locks, bgLog),
		Composer: &visuals.Composer{Editor: ff, Prober: ff, Geometry: g, Log: bgLog},
		Fallback: &visuals.Fallback{Editor: ff, Color: cfg.Visuals.BackgroundColor, Geometry: g},
		Log:      bgLog,
	}
	return p, nil
}

func scorerFor(sc config.ScriptConfig) script.Scorer {
	s := script.DefaultScorer()
	if sc.IdealMinWords > 0 && sc.IdealMaxWords >= sc.IdealMinWords {
		s.IdealMin, s.IdealMax = sc.IdealMinWords, sc.IdealMaxWords
	}
	return s
}

// NewRunID returns a short random run identifier.
func NewRunID() string {
	return uuid.NewString()[:8]
}

func (p *Pipeline) runID() string {
	if p.NewRunID != nil {
		return p.NewRunID()
	}
	return NewRunID()
}

func (p *Pipeline) rng(runID string) *rand.Rand {
	if p.NewRand != nil {
		return p.NewRand(runID)
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Run produces one short for topic; an empty topic is researched. The
// returned state is always non-nil and is saved to the run directory on
// every exit. A non-nil error is a fatal *errors.Error.
func (p *Pipeline) Run(ctx context.Context, topic string) (state *types.PipelineState, err error) {
	id := p.runID()
	dir := filepath.Join(p.Cfg.Paths.Output, id)
	run := types.NewRunContext(id, dir, filepath.Join(dir, scratchDir), p.rng(id))
	log := p.Log.With("run_id", id)

	state = &types.PipelineState{RunID: id, StartedAt: p.now().UTC().Format(time.RFC3339)}

	if timeout := p.Cfg.Pipeline.RunTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := os.MkdirAll(run.ScratchDir, 0o755); err != nil {
		return state, errors.Fatal(errors.StageSetup, "create run dir", err)
	}

	defer func() {
		state.CompletedAt = p.now().UTC().Format(time.RFC3339)
		if err != nil {
			state.FailedStage = errors.StageOf(err)
			state.Error = err.Error()
			log.Error("pipeline failed", "stage", state.FailedStage, "error", err)
		}
		if serr := saveJSON(filepath.Join(dir, StateFile), state); serr != nil {
			log.Warn("run state not saved", "error", serr)
		}
	}()

	log.Info("pipeline starting", "dir", dir)
	if err := p.run(ctx, run, state, topic, log); err != nil {
		if !errors.IsFatal(err) {
			err = errors.Fatal(errors.StageOf(err), "stage failed", err)
		}
		return state, err
	}
	log.Info("pipeline complete",
		"video", state.VideoFile,
		"duration", fmt.Sprintf("%.3fs", state.Budget.Total()),
		"degradations", len(state.Degradations),
		"url", state.YouTubeURL)
	return state, nil
}

// record logs and stores a degraded outcome.
func record[T any](state *types.PipelineState, log *slog.Logger, o types.Outcome[T]) {
	if !o.IsDegraded() {
		return
	}
	stage := errors.StageOf(o.Err)
	log.Warn("stage degraded", "stage", stage, "error", o.Err)
	state.Degrade(stage, o.Err)
}

func (p *Pipeline) run(ctx context.Context, run *types.RunContext, state *types.PipelineState, topic string, log *slog.Logger) error {
	if err := p.selectTopic(ctx, run, state, topic, log); err != nil {
		return err
	}
	if err := p.writeScript(ctx, state, log); err != nil {
		return err
	}

	narration, err := p.narrate(ctx, run, state, log)
	if err != nil {
		return err
	}
	budget := narration.Budget

	if p.Captions != nil {
		o := p.Captions.Build(ctx, narration.Path, run.ScratchDir, budget)
		record(state, log, o)
		state.SubtitleFile = o.Value
	}

	bg := p.Background.Build(ctx, run, state.Topic, script.SplitSentences(state.Script), budget)
	if bg.IsFatal() {
		return bg.Err
	}
	record(state, log, bg)
	state.ClipDurations = bg.Value.Durations
	state.Assets = bg.Value.Assets
	state.BackgroundFile = bg.Value.Path
	state.BackgroundFallback = bg.Value.Fallback

	mus := p.Music.Build(ctx, run, p.Cfg.MusicQuery(p.Cfg.Research.Niche), budget)
	record(state, log, mus)
	state.MusicFile = mus.Value

	out := filepath.Join(run.Dir, VideoFile)
	job := render.Job{
		Background:  state.BackgroundFile,
		Narration:   narration.Path,
		Music:       state.MusicFile,
		Subtitles:   state.SubtitleFile,
		DurationCap: budget.Total(),
	}
	if err := p.Renderer.Render(ctx, job, out); err != nil {
		return err
	}
	state.VideoFile = out

	if !p.Cfg.Pipeline.KeepScratch {
		if err := os.RemoveAll(run.ScratchDir); err != nil {
			log.Warn("scratch not removed", "dir", run.ScratchDir, "error", err)
		}
	}

	meta := p.Metadata.Generate(state.Topic, state.Script)
	state.Metadata = meta
	if err := metadata.Save(filepath.Join(run.Dir, MetadataFile), meta); err != nil {
		state.Degrade(errors.StageMetadata, err)
		log.Warn("metadata not saved", "error", err)
	}

	if p.Uploader != nil {
		res, err := p.Uploader.Upload(ctx, out, meta)
		if err != nil {
			derr := errors.Degraded(errors.StageUpload, "upload failed", err)
			state.Degrade(errors.StageUpload, derr)
			log.Warn("upload failed, video kept locally", "video", out, "error", err)
		} else {
			state.YouTubeID = res.VideoID
			state.YouTubeURL = res.VideoURL
		}
	}
	return nil
}

func (p *Pipeline) selectTopic(ctx context.Context, run *types.RunContext, state *types.PipelineState, topic string, log *slog.Logger) error {
	topic = strings.Join(strings.Fields(topic), " ")
	if topic != "" {
		state.Topic, state.TopicSource = topic, research.SourceUser
	} else {
		if p.Topics == nil {
			return errors.Fatalf(errors.StageResearch, "no topic given and no topic source configured")
		}
		o := p.Topics.Run(ctx, run.Rand)
		if o.IsFatal() {
			return o.Err
		}
		record(state, log, o)
		state.Topic, state.TopicSource = o.Value.Text, o.Value.Source
	}

	if minWords := p.Cfg.Research.MinTopicWords; script.CountWords(state.Topic) < minWords {
		return errors.Fatalf(errors.StageResearch, "topic %q has fewer than %d words", state.Topic, minWords)
	}
	log.Info("topic", "topic", state.Topic, "source", state.TopicSource)
	return nil
}

func (p *Pipeline) writeScript(ctx context.Context, state *types.PipelineState, log *slog.Logger) error {
	sc := p.Cfg.Script
	scriptLog := logger.Stage(log, errors.StageScript)

	cands, err := script.GenerateCandidates(ctx, p.Gen, state.Topic, sc.Language, sc.Candidates, scriptLog)
	if err != nil {
		return err
	}
	state.Candidates = len(cands)

	best, score, ok := p.Scorer.SelectBest(cands, sc.MinWords)
	if !ok {
		return errors.Fatalf(errors.StageScript, "all %d candidates are empty", len(cands))
	}
	state.ScriptScore = score
	scriptLog.Info("script selected", "candidate", best.Index, "words", best.WordCount, "score", fmt.Sprintf("%.1f", score.Total))

	text, replaced := script.RefineHook(ctx, p.Gen, best.Text, state.Topic, sc.HookAttempts, logger.Stage(log, errors.StageHook))
	state.HookRefined = replaced
	if sc.RewriteLong {
		text = script.RewriteLongSentences(ctx, p.Gen, text, sc.MaxSentenceWords, scriptLog)
	}

	text = script.SanitizeForTTS(text)
	if text == "" {
		return errors.Fatalf(errors.StageScript, "script empty after cleanup")
	}
	state.Script = text
	return nil
}

func (p *Pipeline) narrate(ctx context.Context, run *types.RunContext, state *types.PipelineState, log *slog.Logger) (audio.Narration, error) {
	voices := audio.LanguageVoices(p.Cfg.Script.Language)
	body, err := p.Narrator.Narrate(ctx, run, state.Script, voices, types.RoleBody, filepath.Join(run.ScratchDir, "narration_body.mp3"))
	if err != nil {
		return audio.Narration{}, err
	}
	state.BodyAudio = body.AudioPath

	cta := audio.CTAResult{State: types.CTADropped}
	if p.CTA != nil {
		cta = p.CTA.Fit(ctx, run, state.Topic, body)
	}

	merged := p.Merger.Merge(ctx, body, cta, filepath.Join(run.ScratchDir, "narration.mp3"))
	if merged.IsFatal() {
		return audio.Narration{}, merged.Err
	}
	record(state, log, merged)

	n := merged.Value
	state.CTA = n.CTA.State
	state.CTAText = n.CTA.Text
	state.AudioFile = n.Path
	budget := n.Budget
	state.Budget = &budget
	return n, nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
