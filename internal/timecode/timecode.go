// Package timecode converts between frames, SMPTE-style timecodes and the
// loose time notations editors type into review notes.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for timecodes that cannot be parsed.
var ErrInvalid = errors.New("invalid timecode")

// Nominal is the integer frame base used for timecode at fps: 23.976 counts
// as 24 and 29.97 as 30. Drop-frame counting is not supported.
func Nominal(fps float64) int {
	n := int(math.Round(fps))
	if n < 1 {
		return 1
	}
	return n
}

// FromFrames formats a frame count as HH:MM:SS:FF.
func FromFrames(frame int, fps float64) string {
	if frame < 0 {
		frame = 0
	}
	base := Nominal(fps)
	ff := frame % base
	total := frame / base
	return fmt.Sprintf("%02d:%02d:%02d:%02d", total/3600, total/60%60, total%60, ff)
}

// ToFrames parses HH:MM:SS:FF (or ';' before the frames) into a frame count.
func ToFrames(tc string, fps float64) (int, error) {
	parts := strings.FieldsFunc(strings.TrimSpace(tc), func(r rune) bool { return r == ':' || r == ';' })
	if len(parts) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, tc)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalid, tc)
		}
		v[i] = n
	}
	base := Nominal(fps)
	if v[1] > 59 || v[2] > 59 || v[3] >= base {
		return 0, fmt.Errorf("%w: %q out of range at %v fps", ErrInvalid, tc, fps)
	}
	return ((v[0]*60+v[1])*60+v[2])*base + v[3], nil
}

// FromDuration converts an offset to frames, rounding to the nearest frame.
func FromDuration(d time.Duration, fps float64) int {
	return int(math.Round(d.Seconds() * float64(Nominal(fps))))
}

var looseRE = regexp.MustCompile(`(?P<h>\d+):(\d{2}):(\d{2})(?::(?P<f>\d{2}))?|(?P<m>\d+)m(?P<s>\d+)s|(?P<so>\d+)s`)

// Find returns the first time reference in free text as HH:MM:SS:FF.
// Accepted notations are "h:mm:ss", "h:mm:ss:ff", "1m30s" and "45s".
func Find(text string) (string, bool) {
	m := looseRE.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	g := func(name string) string { return m[looseRE.SubexpIndex(name)] }
	switch {
	case g("h") != "":
		return fmt.Sprintf("%02d:%02d:%02d:%02d", atoi(g("h")), atoi(m[2]), atoi(m[3]), atoi(g("f"))), true
	case g("m") != "":
		return fmt.Sprintf("00:%02d:%02d:00", atoi(g("m")), atoi(g("s"))), true
	default:
		return fmt.Sprintf("00:00:%02d:00", atoi(g("so"))), true
	}
}
