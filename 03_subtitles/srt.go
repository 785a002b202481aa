package subtitles

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Cue is one SRT entry.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// ParseSRT reads SRT blocks. Malformed blocks are skipped.
func ParseSRT(data string) []Cue {
	data = strings.ReplaceAll(data, "\r\n", "\n")
	var cues []Cue
	for _, block := range strings.Split(data, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		// the index line is optional in practice
		if len(lines) > 0 && !strings.Contains(lines[0], "-->") {
			lines = lines[1:]
		}
		if len(lines) < 2 {
			continue
		}
		startStr, endStr, ok := strings.Cut(lines[0], "-->")
		if !ok {
			continue
		}
		start, err1 := parseTimestamp(startStr)
		end, err2 := parseTimestamp(endStr)
		if err1 != nil || err2 != nil || end <= start {
			continue
		}
		cues = append(cues, Cue{Start: start, End: end, Text: strings.Join(lines[1:], "\n")})
	}
	return cues
}

// FormatSRT writes cues back in SRT form, renumbered from 1.
func FormatSRT(cues []Cue) string {
	var sb strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n", i+1, formatTimestamp(c.Start), formatTimestamp(c.End), c.Text)
	}
	return sb.String()
}

// ClampSRT rewrites path so no cue runs past total seconds. It returns how
// many cues were dropped.
func ClampSRT(path string, total float64) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	cues := ParseSRT(string(data))

	kept := cues[:0]
	for _, c := range cues {
		if c.Start >= total {
			continue
		}
		if c.End > total {
			c.End = total
		}
		kept = append(kept, c)
	}
	dropped := len(cues) - len(kept)
	if len(kept) == 0 {
		return dropped, fmt.Errorf("no captions inside %.3fs", total)
	}
	return dropped, os.WriteFile(path, []byte(FormatSRT(kept)), 0o644)
}

// parseTimestamp reads "HH:MM:SS,mmm".
func parseTimestamp(s string) (float64, error) {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return float64(h*3600+m*60) + sec, nil
}

func formatTimestamp(v float64) string {
	ms := int64(v*1000 + 0.5)
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}
