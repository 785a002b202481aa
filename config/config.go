package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Research  ResearchConfig  `yaml:"research"`
	Script    ScriptConfig    `yaml:"script"`
	Audio     AudioConfig     `yaml:"audio"`
	Subtitles SubtitlesConfig `yaml:"subtitles"`
	Visuals   VisualsConfig   `yaml:"visuals"`
	History   HistoryConfig   `yaml:"history"`
	Music     MusicConfig     `yaml:"music"`
	Media     MediaConfig     `yaml:"media"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Upload    UploadConfig    `yaml:"upload"`
	Paths     PathsConfig     `yaml:"paths"`

	// Secrets never come from config.yaml.
	Secrets Secrets `yaml:"-"`
}

type PipelineConfig struct {
	Environment string        `yaml:"environment"`
	LogLevel    string        `yaml:"log_level"`
	LogFormat   string        `yaml:"log_format" validate:"omitempty,oneof=json pretty"`
	RunTimeout  time.Duration `yaml:"run_timeout" validate:"gt=0"`
	KeepScratch bool          `yaml:"keep_scratch"`
	Workers     int           `yaml:"workers" validate:"gte=1,lte=16"`
}

type ResearchConfig struct {
	Niche             string   `yaml:"niche"`
	Subreddits        []string `yaml:"subreddits"`
	MinRedditScore    int      `yaml:"min_reddit_score"`
	PostsPerSubreddit int      `yaml:"posts_per_subreddit" validate:"gte=1,lte=100"`
	MinTopicWords     int      `yaml:"min_topic_words" validate:"gte=1"`
}

type ScriptConfig struct {
	Backend           string        `yaml:"backend" validate:"oneof=groq ollama"`
	GroqModel         string        `yaml:"groq_model"`
	OllamaURL         string        `yaml:"ollama_url" validate:"omitempty,url"`
	OllamaModel       string        `yaml:"ollama_model"`
	Temperature       float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	RequestTimeout    time.Duration `yaml:"request_timeout" validate:"gt=0"`
	GeneratorAttempts int           `yaml:"generator_attempts" validate:"gte=1,lte=3"`
	Candidates        int           `yaml:"candidates" validate:"gte=1,lte=5"`
	MinWords          int           `yaml:"min_words" validate:"gte=1"`
	IdealMinWords     int           `yaml:"ideal_min_words" validate:"gte=1"`
	IdealMaxWords     int           `yaml:"ideal_max_words" validate:"gtefield=IdealMinWords"`
	HookAttempts      int           `yaml:"hook_attempts" validate:"gte=1,lte=3"`
	RewriteLong       bool          `yaml:"rewrite_long_sentences"`
	MaxSentenceWords  int           `yaml:"max_sentence_words" validate:"gte=4"`
	Language          string        `yaml:"language" validate:"oneof=en hi"`
}

type AudioConfig struct {
	TTSCommand    string        `yaml:"tts_command"`
	Rate          string        `yaml:"rate"`
	Pitch         string        `yaml:"pitch"`
	FallbackVoice string        `yaml:"fallback_voice" validate:"required"`
	ChunkChars    int           `yaml:"chunk_chars" validate:"gte=100"`
	MinChunkBytes int64         `yaml:"min_chunk_bytes" validate:"gte=0"`
	ChunkTimeout  time.Duration `yaml:"chunk_timeout" validate:"gt=0"`
	CTAEnabled    bool          `yaml:"cta_enabled"`
	// CTA fallback phrases keyed by script language
	CTAFallbackPools map[string][]string `yaml:"cta_fallback_pools" validate:"dive,min=1,dive,required"`
}

type SubtitlesConfig struct {
	Enabled         bool          `yaml:"enabled"`
	WhisperModel    string        `yaml:"whisper_model"`
	Language        string        `yaml:"language"`
	MaxCharsPerLine int           `yaml:"max_chars_per_line" validate:"gte=1"`
	Timeout         time.Duration `yaml:"timeout" validate:"gt=0"`
	Font            string        `yaml:"font"`
	FontSize        int           `yaml:"font_size" validate:"gte=8"`
	MarginBottom    int           `yaml:"margin_bottom"`
}

type VisualsConfig struct {
	Width            int           `yaml:"width" validate:"gte=16"`
	Height           int           `yaml:"height" validate:"gte=16"`
	FPS              int           `yaml:"fps" validate:"gte=1,lte=120"`
	BackgroundColor  string        `yaml:"background_color" validate:"required"`
	PerQueryLimit    int           `yaml:"per_query_limit" validate:"gte=1"`
	ResultsPerPage   int           `yaml:"results_per_page" validate:"gte=1,lte=80"`
	MaxDownloadBytes int64         `yaml:"max_download_bytes" validate:"gt=0"`
	DownloadTimeout  time.Duration `yaml:"download_timeout" validate:"gt=0"`
	SearchTimeout    time.Duration `yaml:"search_timeout" validate:"gt=0"`
	ProviderRPS      float64       `yaml:"provider_rps" validate:"gt=0"`
	ProviderBurst    int           `yaml:"provider_burst" validate:"gte=1"`
}

type HistoryConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=json sqlite badger"`
	Path    string        `yaml:"path" validate:"required"`
	Window  time.Duration `yaml:"window" validate:"gt=0"`
}

type MusicConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Volume       float64           `yaml:"volume" validate:"gte=0,lte=1"`
	FadeInSec    float64           `yaml:"fade_in_sec" validate:"gte=0"`
	FadeOutSec   float64           `yaml:"fade_out_sec" validate:"gte=0"`
	NicheQueries map[string]string `yaml:"niche_queries"`
	DefaultQuery string            `yaml:"default_query" validate:"required"`
}

type MediaConfig struct {
	FFmpegPath     string        `yaml:"ffmpeg_path" validate:"required"`
	FFprobePath    string        `yaml:"ffprobe_path" validate:"required"`
	CommandTimeout time.Duration `yaml:"command_timeout" validate:"gt=0"`
}

type MetadataConfig struct {
	TitleMaxChars int    `yaml:"title_max_chars" validate:"gte=10,lte=100"`
	MaxHashtags   int    `yaml:"max_hashtags" validate:"gte=1,lte=15"`
	CategoryID    string `yaml:"youtube_category_id"`
}

type UploadConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility" validate:"oneof=public private unlisted"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	DefaultLanguage   string `yaml:"default_language"`
}

type PathsConfig struct {
	Output        string `yaml:"output" validate:"required"`
	Logs          string `yaml:"logs" validate:"required"`
	ClipCache     string `yaml:"clip_cache" validate:"required"`
	MusicCache    string `yaml:"music_cache" validate:"required"`
	UsedTopicsLog string `yaml:"used_topics_log"`
}

// Secrets are read from the environment (and .env in local runs).
type Secrets struct {
	GroqAPIKey          string
	PexelsAPIKey        string
	PixabayAPIKey       string
	YouTubeClientID     string
	YouTubeClientSecret string
	YouTubeRefreshToken string
}

// Default returns the configuration used when config.yaml omits a value.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Environment: "development",
			LogLevel:    "info",
			RunTimeout:  20 * time.Minute,
			Workers:     1,
		},
		Research: ResearchConfig{
			Niche:             "psychology",
			Subreddits:        []string{"todayilearned", "psychology"},
			MinRedditScore:    500,
			PostsPerSubreddit: 25,
			MinTopicWords:     4,
		},
		Script: ScriptConfig{
			Backend:           "groq",
			GroqModel:         "llama-3.1-8b-instant",
			OllamaURL:         "http://localhost:11434",
			OllamaModel:       "llama3.1:8b",
			Temperature:       0.8,
			RequestTimeout:    60 * time.Second,
			GeneratorAttempts: 2,
			Candidates:        3,
			MinWords:          80,
			IdealMinWords:     130,
			IdealMaxWords:     145,
			HookAttempts:      2,
			MaxSentenceWords:  10,
			Language:          "en",
		},
		Audio: AudioConfig{
			Rate:          "+0%",
			Pitch:         "+0Hz",
			FallbackVoice: "en-US-GuyNeural",
			ChunkChars:    800,
			MinChunkBytes: 1500,
			ChunkTimeout:  90 * time.Second,
			CTAEnabled:    true,
			CTAFallbackPools: map[string][]string{
				"en": {
					"Follow for more!",
					"Subscribe for more shorts!",
					"Like and follow!",
					"Follow for daily facts!",
				},
				"hi": {
					"और वीडियो के लिए फॉलो करें!",
					"ऐसे ही शॉर्ट्स के लिए सब्सक्राइब करें!",
					"लाइक और फॉलो ज़रूर करें!",
				},
			},
		},
		Subtitles: SubtitlesConfig{
			Enabled:         true,
			WhisperModel:    "base",
			Language:        "en",
			MaxCharsPerLine: 16,
			Timeout:         5 * time.Minute,
			Font:            "Montserrat",
			FontSize:        18,
			MarginBottom:    120,
		},
		Visuals: VisualsConfig{
			Width:            1080,
			Height:           1920,
			FPS:              30,
			BackgroundColor:  "black",
			PerQueryLimit:    1,
			ResultsPerPage:   15,
			MaxDownloadBytes: 150 << 20,
			DownloadTimeout:  90 * time.Second,
			SearchTimeout:    15 * time.Second,
			ProviderRPS:      2,
			ProviderBurst:    2,
		},
		History: HistoryConfig{
			Backend: "json",
			Path:    "assets/video_history.json",
			Window:  7 * 24 * time.Hour,
		},
		Music: MusicConfig{
			Enabled:    true,
			Volume:     0.20,
			FadeInSec:  1.0,
			FadeOutSec: 1.5,
			NicheQueries: map[string]string{
				"football":         "cinematic sports",
				"self improvement": "ambient motivational",
				"technology":       "futuristic ambient",
				"finance":          "calm corporate",
				"psychology":       "dark ambient",
			},
			DefaultQuery: "ambient",
		},
		Media: MediaConfig{
			FFmpegPath:     "ffmpeg",
			FFprobePath:    "ffprobe",
			CommandTimeout: 3 * time.Minute,
		},
		Metadata: MetadataConfig{
			TitleMaxChars: 60,
			MaxHashtags:   12,
			CategoryID:    "27",
		},
		Upload: UploadConfig{
			Visibility:      "private",
			DefaultLanguage: "en",
		},
		Paths: PathsConfig{
			Output:        "output",
			Logs:          "logs",
			ClipCache:     "assets/bg_cache",
			MusicCache:    "assets/music",
			UsedTopicsLog: "assets/used_topics.json",
		},
	}
}

// Load reads config.yaml over Default() and validates the result. A missing
// file is not an error: the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Secrets = SecretsFromEnv()
	if cmd := os.Getenv("TTS_COMMAND"); cmd != "" && cfg.Audio.TTSCommand == "" {
		cfg.Audio.TTSCommand = cmd
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SecretsFromEnv collects API keys from the process environment.
func SecretsFromEnv() Secrets {
	return Secrets{
		GroqAPIKey:          os.Getenv("GROQ_API_KEY"),
		PexelsAPIKey:        os.Getenv("PEXELS_API_KEY"),
		PixabayAPIKey:       os.Getenv("PIXABAY_API_KEY"),
		YouTubeClientID:     os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeClientSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeRefreshToken: os.Getenv("YOUTUBE_REFRESH_TOKEN"),
	}
}

var validate = validator.New()

// Validate checks struct constraints and the cross-field rules tags cannot
// express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Audio.CTAEnabled && len(c.Audio.CTAFallbackPools[c.Script.Language]) == 0 {
		return fmt.Errorf("invalid config: audio.cta_fallback_pools has no phrases for language %q", c.Script.Language)
	}
	if c.Visuals.Height < c.Visuals.Width {
		return fmt.Errorf("invalid config: visuals geometry %dx%d is not portrait", c.Visuals.Width, c.Visuals.Height)
	}
	return nil
}

// MusicQuery maps a niche to a music search query.
func (c *Config) MusicQuery(niche string) string {
	if q, ok := c.Music.NicheQueries[strings.ToLower(strings.TrimSpace(niche))]; ok {
		return q
	}
	return c.Music.DefaultQuery
}
