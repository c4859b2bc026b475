// Package kkc is a small kana-kanji conversion backend. It turns romaji
// into a kana reading and proposes candidates from a SQLite dictionary.
//
// It does not attempt statistical conversion. Candidates are whole-reading
// words, a greedy longest-word segmentation of the reading, plain hiragana
// and katakana, and words covering each prefix of the reading.
package kkc

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"kanaime/internal/ime"
)

const (
	// DefaultMaxCandidates caps the list when no limit is configured.
	DefaultMaxCandidates = 32

	// maxSegmentUnits bounds dictionary lookups during segmentation.
	maxSegmentUnits = 12
)

// Composer holds the composing buffer. All methods are safe for concurrent
// use, though the engine keeps a single buffer for every client.
type Composer struct {
	mu            sync.Mutex
	romaji        *Romaji
	dict          *Dictionary
	input         []rune
	context       string
	maxCandidates int
	last          ime.Candidates
	log           *slog.Logger
}

var _ ime.ConversionEngine = (*Composer)(nil)

// NewComposer creates a composer backed by dict.
func NewComposer(dict *Dictionary, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		romaji:        NewRomaji(),
		dict:          dict,
		maxCandidates: DefaultMaxCandidates,
		log:           logger,
	}
}

// SetMaxCandidates changes the list cap. Non-positive values restore the
// default.
func (c *Composer) SetMaxCandidates(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 {
		n = DefaultMaxCandidates
	}
	c.maxCandidates = n
}

// Input returns the composing input.
func (c *Composer) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.input)
}

// Context returns the preceding text last set.
func (c *Composer) Context() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.context
}

func (c *Composer) AppendText(ctx context.Context, text string) (ime.Candidates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = append(c.input, []rune(text)...)
	return c.refresh(ctx)
}

// RemoveText deletes the last displayed kana. A kana pair typed as one
// syllable, such as "kya", loses only its final kana.
func (c *Composer) RemoveText(ctx context.Context) (ime.Candidates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	units := c.romaji.Convert(c.input)
	if len(units) == 0 {
		return c.refresh(ctx)
	}
	last := units[len(units)-1]
	kana := []rune(last.Kana)
	c.input = c.input[:last.Start]
	if last.Span > 1 && len(kana) > 1 {
		c.input = append(c.input, kana[:len(kana)-1]...)
	}
	return c.refresh(ctx)
}

// ShrinkText drops the first offset input characters after they were
// committed. The conversion committed for that span is learned.
func (c *Composer) ShrinkText(ctx context.Context, offset int32) (ime.Candidates, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := min(max(int(offset), 0), len(c.input))
	c.learn(ctx, int32(n))
	c.input = c.input[n:]
	return c.refresh(ctx)
}

func (c *Composer) ClearText(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = nil
	c.last = ime.Candidates{}
	return nil
}

// SetContext keeps the last line of the text before the caret.
func (c *Composer) SetContext(_ context.Context, preceding string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := strings.LastIndexByte(preceding, '\r'); i >= 0 {
		preceding = preceding[i+1:]
	}
	c.context = preceding
	return nil
}

// learn records the first conversion that covered exactly n input
// characters in the last list sent.
func (c *Composer) learn(ctx context.Context, n int32) {
	for i := 0; i < c.last.Len(); i++ {
		cand := c.last.At(i)
		if cand.CorrespondingCount != n {
			continue
		}
		if cand.Text == cand.Hiragana || cand.Text == ime.ToKatakana(cand.Hiragana) {
			return
		}
		if err := c.dict.Learn(ctx, cand.Hiragana, cand.Text); err != nil {
			c.log.Warn("failed to learn conversion", "error", err)
		}
		return
	}
}

func (c *Composer) refresh(ctx context.Context) (ime.Candidates, error) {
	cands, err := c.candidates(ctx)
	if err != nil {
		return ime.Candidates{}, err
	}
	c.last = cands
	return cands, nil
}

func (c *Composer) candidates(ctx context.Context) (ime.Candidates, error) {
	units := c.romaji.Convert(c.input)
	if len(units) == 0 {
		return ime.Candidates{}, nil
	}

	var out ime.Candidates
	seen := make(map[string]bool)
	add := func(cand ime.Candidate) {
		if seen[cand.Text] || out.Len() >= c.maxCandidates {
			return
		}
		seen[cand.Text] = true
		out.Append(cand)
	}

	full := Reading(units)
	total := int32(len(c.input))

	words, err := c.dict.Lookup(ctx, full, c.maxCandidates)
	if err != nil {
		return ime.Candidates{}, err
	}
	if len(words) == 0 {
		sentence, err := c.segment(ctx, units)
		if err != nil {
			return ime.Candidates{}, err
		}
		if sentence != full {
			add(ime.Candidate{Text: sentence, Hiragana: full, CorrespondingCount: total})
		}
	}
	for _, w := range words {
		add(ime.Candidate{Text: w.Surface, Hiragana: full, CorrespondingCount: total})
	}
	add(ime.Candidate{Text: full, Hiragana: full, CorrespondingCount: total})
	add(ime.Candidate{Text: ime.ToKatakana(full), Hiragana: full, CorrespondingCount: total})

	for k := len(units) - 1; k >= 1; k-- {
		prefix := Reading(units[:k])
		words, err := c.dict.Lookup(ctx, prefix, c.maxCandidates)
		if err != nil {
			return ime.Candidates{}, err
		}
		sub := Reading(units[k:])
		cc := int32(units[k-1].End())
		for _, w := range words {
			add(ime.Candidate{Text: w.Surface, SubText: sub, Hiragana: prefix, CorrespondingCount: cc})
		}
	}
	return out, nil
}

// segment converts units left to right, taking the longest dictionary word
// at each position and keeping kana that start no word.
func (c *Composer) segment(ctx context.Context, units []Unit) (string, error) {
	var b strings.Builder
	for i := 0; i < len(units); {
		j, surface := i+1, units[i].Kana
		for end := min(len(units), i+maxSegmentUnits); end > i; end-- {
			words, err := c.dict.Lookup(ctx, Reading(units[i:end]), 1)
			if err != nil {
				return "", err
			}
			if len(words) > 0 {
				j, surface = end, words[0].Surface
				break
			}
		}
		b.WriteString(surface)
		i = j
	}
	return b.String(), nil
}
