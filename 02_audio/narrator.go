package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"shorts-pipeline/01_script"
	"shorts-pipeline/config"
	"shorts-pipeline/errors"
	"shorts-pipeline/media"
	"shorts-pipeline/types"
)

var voicePools = map[string][]string{
	"motivational": {"en-IN-PrabhatNeural", "en-US-GuyNeural"},
	"hype":         {"en-US-GuyNeural", "en-GB-RyanNeural"},
	"calm":         {"en-US-DavisNeural", "en-GB-RyanNeural"},
	"dark":         {"en-US-DavisNeural"},
	"neutral":      {"en-IN-PrabhatNeural", "en-US-GuyNeural", "en-US-DavisNeural"},
}

// checked in this order; first match wins
var moodKeywords = []struct {
	mood  string
	words []string
}{
	{"motivational", []string{"success", "discipline", "habits", "growth", "mindset", "goals"}},
	{"hype", []string{"win", "dominate", "beast", "champion", "grind"}},
	{"calm", []string{"calm", "focus", "peace", "clarity", "mindfulness"}},
	{"dark", []string{"fear", "dopamine", "addiction", "mistake", "dark"}},
}

var languageVoices = map[string][]string{
	"hi": {"hi-IN-MadhurNeural", "hi-IN-SwaraNeural"},
}

// spoken filler added around text the backend rejected, per language
type fillers struct {
	pad      string
	retry    string
	failsafe string
}

var languageFillers = map[string]fillers{
	"en": {pad: ". Stay tuned.", retry: "Listen carefully. ", failsafe: "Here is something interesting. "},
	"hi": {pad: "। बने रहिए।", retry: "ध्यान से सुनिए। ", failsafe: "यह बात दिलचस्प है। "},
}

func fillersFor(lang string) fillers {
	if f, ok := languageFillers[lang]; ok {
		return f
	}
	return languageFillers["en"]
}

// DetectMood classifies text by keyword for voice selection.
func DetectMood(text string) string {
	t := strings.ToLower(text)
	for _, m := range moodKeywords {
		for _, w := range m.words {
			if strings.Contains(t, w) {
				return m.mood
			}
		}
	}
	return "neutral"
}

// LanguageVoices returns the voice pool for lang, or nil when voices are
// picked by mood.
func LanguageVoices(lang string) []string {
	return languageVoices[lang]
}

// VoicePool returns the voices to try for text, shuffled with rng. A
// non-empty pinned pool replaces the mood pool.
func VoicePool(text string, pinned []string, rng *rand.Rand) []string {
	base := pinned
	if len(base) == 0 {
		base = voicePools[DetectMood(text)]
	}
	pool := append([]string(nil), base...)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool
}

var ttsNormalizer = strings.NewReplacer("—", " ", "–", " ", "…", ".", "\n", " ")

// PrepareText pads input too short for the TTS backend, in lang, and removes
// characters it rejects.
func PrepareText(text, lang string) string {
	text = strings.TrimSpace(text)
	if script.CountWords(text) < 4 {
		text = text + fillersFor(lang).pad
	}
	return ttsNormalizer.Replace(text)
}

// SplitChunks groups sentences into chunks shorter than maxChars. A single
// sentence over the limit becomes its own chunk.
func SplitChunks(text string, maxChars int) []string {
	var chunks []string
	var cur strings.Builder
	for _, s := range script.SplitSentences(text) {
		if cur.Len() > 0 && cur.Len()+len(s)+1 >= maxChars {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

var failsafeReplacer = strings.NewReplacer(",", ".", " and ", ". ")

// Narrator synthesizes long text chunk by chunk with voice rotation and
// joins the chunks into one file.
type Narrator struct {
	Synth         Synthesizer
	Editor        media.Editor
	Prober        media.Prober
	FallbackVoice string
	Language      string
	ChunkChars    int
	MinChunkBytes int64
	ChunkTimeout  time.Duration
	Log           *slog.Logger
}

// NewNarrator builds a Narrator from the audio config for scripts written in
// lang.
func NewNarrator(cfg config.AudioConfig, lang string, synth Synthesizer, editor media.Editor, prober media.Prober, log *slog.Logger) *Narrator {
	return &Narrator{
		Synth:         synth,
		Editor:        editor,
		Prober:        prober,
		FallbackVoice: cfg.FallbackVoice,
		Language:      lang,
		ChunkChars:    cfg.ChunkChars,
		MinChunkBytes: cfg.MinChunkBytes,
		ChunkTimeout:  cfg.ChunkTimeout,
		Log:           log,
	}
}

// Narrate writes text to out as role. voices pins the pool to rotate
// through; when empty the pool is picked by mood. A chunk that every voice
// and the failsafe reject is fatal for the narration stage.
func (n *Narrator) Narrate(ctx context.Context, run *types.RunContext, text string, voices []string, role types.SegmentRole, out string) (types.NarrationSegment, error) {
	text = PrepareText(text, n.Language)
	chunks := SplitChunks(text, n.ChunkChars)
	if len(chunks) == 0 {
		return types.NarrationSegment{}, errors.Fatalf(errors.StageNarration, "empty %s text", role)
	}

	pool := VoicePool(text, voices, run.Rand)
	fallback := n.FallbackVoice
	if len(voices) > 0 {
		fallback = voices[0]
	}

	if err := os.MkdirAll(run.ScratchDir, 0o755); err != nil {
		return types.NarrationSegment{}, errors.Fatal(errors.StageNarration, "create scratch dir", err)
	}

	parts := make([]string, 0, len(chunks))
	defer func() {
		for _, p := range parts {
			os.Remove(p)
		}
	}()

	for i, chunk := range chunks {
		part, err := n.synthesizeChunk(ctx, run, i, chunk, pool, fallback)
		if err != nil {
			return types.NarrationSegment{}, errors.Fatal(errors.StageNarration,
				fmt.Sprintf("chunk %d/%d rejected by every voice", i+1, len(chunks)), err)
		}
		parts = append(parts, part)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return types.NarrationSegment{}, errors.Fatal(errors.StageNarration, "create output dir", err)
	}
	if len(parts) == 1 {
		if err := os.Rename(parts[0], out); err != nil {
			return types.NarrationSegment{}, errors.Fatal(errors.StageNarration, "move narration", err)
		}
		parts = nil
	} else if err := n.Editor.Concat(ctx, parts, out); err != nil {
		return types.NarrationSegment{}, errors.Fatal(errors.StageNarration, "concat chunks", err)
	}

	dur, err := n.Prober.Duration(ctx, out)
	if err != nil {
		return types.NarrationSegment{}, errors.Fatal(errors.StageNarration, "probe narration", err)
	}

	n.Log.Info("narration ready", "role", role, "chunks", len(chunks), "duration", fmt.Sprintf("%.2fs", dur))
	return types.NarrationSegment{AudioPath: out, DurationSeconds: dur, Role: role}, nil
}

func (n *Narrator) synthesizeChunk(ctx context.Context, run *types.RunContext, i int, chunk string, voices []string, fallback string) (string, error) {
	fill := fillersFor(n.Language)
	var lastErr error
	for _, v := range voices {
		out := n.chunkPath(run, i)
		err := n.attempt(ctx, chunk, v, out)
		if err != nil {
			n.Log.Warn("tts chunk failed, retrying padded", "chunk", i, "voice", v, "error", err)
			err = n.attempt(ctx, fill.retry+chunk, v, out)
		}
		if err == nil {
			return out, nil
		}
		lastErr = err
		os.Remove(out)
	}

	simplified := fill.failsafe + failsafeReplacer.Replace(chunk)
	out := n.chunkPath(run, i)
	if err := n.attempt(ctx, simplified, fallback, out); err != nil {
		os.Remove(out)
		if lastErr == nil {
			lastErr = err
		}
		return "", errors.Join(lastErr, err)
	}
	n.Log.Warn("tts chunk used failsafe phrasing", "chunk", i, "voice", fallback)
	return out, nil
}

// attempt runs one synthesis under the chunk timeout and checks the file is
// large enough to hold speech.
func (n *Narrator) attempt(ctx context.Context, text, voice, out string) error {
	if n.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.ChunkTimeout)
		defer cancel()
	}
	if err := n.Synth.Synthesize(ctx, text, voice, out); err != nil {
		return err
	}
	info, err := os.Stat(out)
	if err != nil {
		return fmt.Errorf("tts output missing: %w", err)
	}
	if info.Size() <= n.MinChunkBytes {
		return fmt.Errorf("tts output too small (%d bytes)", info.Size())
	}
	return nil
}

func (n *Narrator) chunkPath(run *types.RunContext, i int) string {
	return filepath.Join(run.ScratchDir, fmt.Sprintf("tts_%02d_%s.mp3", i, uuid.NewString()[:8]))
}
