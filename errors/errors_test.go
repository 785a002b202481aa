package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := Fatal(StageNarration, "every voice failed", fmt.Errorf("edge-tts exit 1"))

	assert.True(t, Is(err, ErrFatal))
	assert.False(t, Is(err, ErrDegraded))
	assert.True(t, IsFatal(fmt.Errorf("wrapped: %w", err)))
}

func TestError_MessageNamesStageAndCause(t *testing.T) {
	err := Fatal(StageRender, "ffmpeg failed", fmt.Errorf("exit status 1"))
	assert.Equal(t, "render: ffmpeg failed: exit status 1", err.Error())

	bare := &Error{Code: CodeDegraded, Message: "skipped"}
	assert.Equal(t, "skipped", bare.Error())
}

func TestStageOfAndCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("run: %w", Exhausted(StageBackground, "no assets", nil))

	assert.Equal(t, StageBackground, StageOf(wrapped))
	assert.Equal(t, CodeExhausted, CodeOf(wrapped))
	assert.Equal(t, "", StageOf(fmt.Errorf("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestErrNoFootageIsExhausted(t *testing.T) {
	assert.True(t, Is(ErrNoFootage, ErrExhausted))
	assert.Equal(t, StageBackground, StageOf(ErrNoFootage))
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Degraded(StageMusic, "search failed", cause)
	assert.Same(t, cause, Unwrap(err))
}
