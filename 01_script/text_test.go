package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("You wake up.  You scroll!\nYou feel worse? ... trailing")
	assert.Equal(t, []string{"You wake up.", "You scroll!", "You feel worse?", "trailing"}, got)

	assert.Empty(t, SplitSentences("   "))
	assert.Empty(t, SplitSentences("..."))
}

func TestSplitSentences_Devanagari(t *testing.T) {
	got := SplitSentences("हम सपने भूल जाते हैं। दिमाग सफ़ाई करता है॥ क्यों?")
	assert.Equal(t, []string{"हम सपने भूल जाते हैं।", "दिमाग सफ़ाई करता है॥", "क्यों?"}, got)
	assert.Empty(t, SplitSentences("। ।"))
}

func TestJoinSentences_TerminatesByScript(t *testing.T) {
	assert.Equal(t, "नया वाक्य। You wake up.", JoinSentences([]string{"नया वाक्य", "You wake up"}))
	assert.Equal(t, "पहले से पूरा।", JoinSentences([]string{"पहले से पूरा।"}))
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 8, CountWords("You wake up. You scroll. You feel worse."))
	assert.Equal(t, 0, CountWords(" \n "))
}

func TestCleanLLMScript(t *testing.T) {
	raw := "Here's your YouTube Shorts script:\nSure, here it is.\nYour brain lies to you.\n\nIn this video we explore it.\nIt happens daily."
	assert.Equal(t, "Your brain lies to you. It happens daily.", CleanLLMScript(raw))
}

func TestSanitizeSpoken(t *testing.T) {
	raw := "**Hook**\n1. Your brain lies.\n2) First it hides things.\nHere are the rewritten sentences\n3\nFinally it forgets."
	assert.Equal(t, "Hook Your brain lies. it hides things. it forgets.", SanitizeSpoken(raw))
}

func TestSanitizeForTTS(t *testing.T) {
	assert.Equal(t, "It's true.", SanitizeForTTS("â€œIt’s   true.â€\u009d"))
	assert.Equal(t, "", SanitizeForTTS("  \t"))
}

func TestCleanReply(t *testing.T) {
	assert.Equal(t, "Nobody tells you this", CleanReply("\n\"Nobody tells you this\"\nextra line"))
	assert.Equal(t, "Stop scrolling now", CleanReply("Hook: Stop scrolling now"))
	assert.Equal(t, "", CleanReply("\n  \n"))
}
