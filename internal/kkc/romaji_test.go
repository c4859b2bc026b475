package kkc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRomajiConvert(t *testing.T) {
	r := NewRomaji()
	tests := []struct {
		input string
		want  string
	}{
		{"ka", "か"},
		{"KA", "か"},
		{"kya", "きゃ"},
		{"shi", "し"},
		{"tsu", "つ"},
		{"xtsu", "っ"},
		{"kitte", "きって"},
		{"matcha", "まっちゃ"},
		{"macchi", "まっち"},
		{"kanji", "かんじ"},
		{"nn", "ん"},
		{"n’a", "んあ"},
		{"nya", "にゃ"},
		{"n", "n"},
		{"ky", "ky"},
		{"kk", "っk"},
		{"かな", "かな"},
		{"ka、", "か、"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, Reading(r.Convert([]rune(tt.input))))
		})
	}
}

func TestRomajiUnitSpans(t *testing.T) {
	units := NewRomaji().Convert([]rune("kyatte"))
	assert.Equal(t, []Unit{
		{Kana: "きゃ", Start: 0, Span: 3},
		{Kana: "っ", Start: 3, Span: 1},
		{Kana: "て", Start: 4, Span: 2},
	}, units)
	assert.Equal(t, 6, units[2].End())
}

func TestRomajiPending(t *testing.T) {
	r := NewRomaji()
	tests := []struct {
		input string
		want  bool
	}{
		{"k", true},
		{"n", true},
		{"ka", false},
		{"か", false},
		{"1", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			units := r.Convert([]rune(tt.input))
			assert.Equal(t, tt.want, r.Pending(units[len(units)-1]))
		})
	}
}
