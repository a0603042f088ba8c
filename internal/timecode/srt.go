package timecode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Cue is one subtitle block.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Lines []string
}

// Text joins the cue's lines with single spaces.
func (c Cue) Text() string {
	return strings.Join(c.Lines, " ")
}

var srtTimeRE = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3})\s+-->\s+(\d{2}):(\d{2}):(\d{2}),(\d{3})`)

// ParseSRT reads SubRip text. Blocks without a timing line are skipped; the
// numeric counter line is optional. Cue indexes are 1-based in input order.
func ParseSRT(text string) []Cue {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")
	var cues []Cue
	for _, block := range strings.Split(text, "\n\n") {
		var lines []string
		for _, l := range strings.Split(block, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) < 2 {
			continue
		}
		timing := 0
		if _, err := strconv.Atoi(lines[0]); err == nil {
			timing = 1
		}
		m := srtTimeRE.FindStringSubmatch(lines[timing])
		if m == nil {
			continue
		}
		cues = append(cues, Cue{
			Index: len(cues) + 1,
			Start: srtDuration(m[1:5]),
			End:   srtDuration(m[5:9]),
			Lines: lines[timing+1:],
		})
	}
	return cues
}

// FormatSRT renders an offset as HH:MM:SS,mmm.
func FormatSRT(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}

func srtDuration(p []string) time.Duration {
	n := make([]int, 4)
	for i, s := range p {
		n[i], _ = strconv.Atoi(s)
	}
	return time.Duration(n[0])*time.Hour + time.Duration(n[1])*time.Minute +
		time.Duration(n[2])*time.Second + time.Duration(n[3])*time.Millisecond
}
