package subtitles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/config"
	"shorts-pipeline/logger"
	"shorts-pipeline/media/mediatest"
	"shorts-pipeline/types"
)

const sampleSRT = `1
00:00:00,000 --> 00:00:00,480
Your

2
00:00:00,480 --> 00:00:01,020
brain

3
00:00:41,900 --> 00:00:42,700
lies

4
00:00:42,800 --> 00:00:43,100
again
`

// whisperRunner pretends to be the whisper CLI by writing srt next to the
// audio name in --output_dir.
type whisperRunner struct {
	srt  string
	err  error
	args []string
}

func (r *whisperRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.args = append([]string{name}, args...)
	if r.err != nil {
		return nil, r.err
	}
	var outDir string
	for i, a := range args {
		if a == "--output_dir" {
			outDir = args[i+1]
		}
	}
	base := filepath.Base(args[0])
	base = base[:len(base)-len(filepath.Ext(base))]
	return nil, os.WriteFile(filepath.Join(outDir, base+".srt"), []byte(r.srt), 0o644)
}

func newWhisper(r *whisperRunner) *Whisper {
	return NewWhisper(config.Default().Subtitles, r)
}

func TestWhisper_Caption(t *testing.T) {
	dir := t.TempDir()
	r := &whisperRunner{srt: sampleSRT}

	srt, err := newWhisper(r).Caption(context.Background(), "/tmp/narration.mp3", dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "subtitles.srt"), srt)
	assert.FileExists(t, srt)
	assert.Equal(t, "whisper", r.args[0])
	assert.Contains(t, r.args, "--word_timestamps")
	assert.Contains(t, r.args, "16")
}

func TestParseAndFormatSRT(t *testing.T) {
	cues := ParseSRT(sampleSRT)
	require.Len(t, cues, 4)
	assert.Equal(t, "brain", cues[1].Text)
	assert.InDelta(t, 0.48, cues[1].Start, 1e-9)
	assert.InDelta(t, 41.9, cues[2].Start, 1e-9)

	assert.Equal(t, cues, ParseSRT(FormatSRT(cues)))
}

func TestClampSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.srt")
	require.NoError(t, os.WriteFile(path, []byte(sampleSRT), 0o644))

	dropped, err := ClampSRT(path, 42.3)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cues := ParseSRT(string(data))
	require.Len(t, cues, 3)
	assert.InDelta(t, 42.3, cues[2].End, 1e-9)
}

func TestValidateSRT(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.srt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o644))
	assert.Error(t, ValidateSRT(empty))
	assert.Error(t, ValidateSRT(filepath.Join(dir, "missing.srt")))
}

func TestStage_Build(t *testing.T) {
	dir := t.TempDir()
	editor := &mediatest.Editor{}
	s := &Stage{Captioner: newWhisper(&whisperRunner{srt: sampleSRT}), Editor: editor, Log: logger.Discard()}
	budget, err := types.NewDurationBudget(42.3, 0, 42.3)
	require.NoError(t, err)

	res := s.Build(context.Background(), "narration.mp3", dir, budget)

	require.Equal(t, types.StatusOK, res.Status)
	assert.Equal(t, filepath.Join(dir, "subtitles.ass"), res.Value)
	assert.Equal(t, []string{"subtitles"}, editor.Ops())
}

func TestStage_BuildDegradesOnWhisperFailure(t *testing.T) {
	editor := &mediatest.Editor{}
	s := &Stage{Captioner: newWhisper(&whisperRunner{err: errors.New("model missing")}), Editor: editor, Log: logger.Discard()}
	budget, err := types.NewDurationBudget(30, 0, 30)
	require.NoError(t, err)

	res := s.Build(context.Background(), "narration.mp3", t.TempDir(), budget)

	assert.True(t, res.IsDegraded())
	assert.Empty(t, res.Value)
	assert.Empty(t, editor.Calls)
}
