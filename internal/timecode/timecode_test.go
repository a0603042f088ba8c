package timecode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramesRoundTrip(t *testing.T) {
	tests := []struct {
		frame int
		fps   float64
		tc    string
	}{
		{0, 25, "00:00:00:00"},
		{24, 25, "00:00:00:24"},
		{25, 25, "00:00:01:00"},
		{90000, 25, "01:00:00:00"},
		{1799, 29.97, "00:00:59:29"},
		{86400, 24, "01:00:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.tc, func(t *testing.T) {
			assert.Equal(t, tt.tc, FromFrames(tt.frame, tt.fps))
			got, err := ToFrames(tt.tc, tt.fps)
			require.NoError(t, err)
			assert.Equal(t, tt.frame, got)
		})
	}
}

func TestToFramesRejects(t *testing.T) {
	for _, in := range []string{"", "00:00:00", "aa:00:00:00", "00:61:00:00", "00:00:00:25"} {
		_, err := ToFrames(in, 25)
		assert.ErrorIs(t, err, ErrInvalid, in)
	}
	got, err := ToFrames("00:00:01;05", 30)
	require.NoError(t, err)
	assert.Equal(t, 35, got)
}

func TestFind(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"at 1:02:03 fix the logo", "01:02:03:00", true},
		{"01:00:10:12 colour pop", "01:00:10:12", true},
		{"around 2m5s music too loud", "00:02:05:00", true},
		{"45s: swap the shot", "00:00:45:00", true},
		{"no time here", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Find(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSRT(t *testing.T) {
	src := "\ufeff1\r\n00:00:01,500 --> 00:00:03,000\r\nHello there\r\nsecond line\r\n\r\n" +
		"garbage block\n\n" +
		"00:01:00,000 --> 00:01:02,250\nNo counter\n"
	cues := ParseSRT(src)
	require.Len(t, cues, 2)
	assert.Equal(t, 1, cues[0].Index)
	assert.Equal(t, 1500*time.Millisecond, cues[0].Start)
	assert.Equal(t, 3*time.Second, cues[0].End)
	assert.Equal(t, "Hello there second line", cues[0].Text())
	assert.Equal(t, 2, cues[1].Index)
	assert.Equal(t, "00:01:02,250", FormatSRT(cues[1].End))
	assert.Equal(t, 38, FromDuration(cues[0].Start, 25))
}
