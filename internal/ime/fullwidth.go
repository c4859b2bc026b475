package ime

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// kanaPunctuation is the full-width substitution applied to text typed in
// Kana mode. Letters and digits are left alone so the engine sees romaji.
var kanaPunctuation = map[rune]rune{
	'!': '！', '"': '”', '#': '＃', '$': '＄', '%': '％', '&': '＆',
	'\'': '’', '(': '（', ')': '）', '*': '＊', '+': '＋', ',': '、',
	'-': 'ー', '.': '。', '/': '・', ':': '：', ';': '；', '<': '＜',
	'=': '＝', '>': '＞', '?': '？', '@': '＠', '[': '「', '\\': '￥',
	']': '」', '^': '＾', '_': '＿', '`': '｀', '{': '｛', '|': '｜',
	'}': '｝', '~': '～',
}

var kanaPunctuationReverse = func() map[rune]rune {
	m := make(map[rune]rune, len(kanaPunctuation))
	for half, full := range kanaPunctuation {
		m[full] = half
	}
	return m
}()

// Normalize prepares typed text for the conversion engine in the given mode.
func Normalize(text string, mode InputMode) string {
	if mode != ModeKana {
		return text
	}
	return ToFullWidth(text, false)
}

// ToFullWidth converts ASCII punctuation to its Japanese full-width form.
// Letters and digits are widened only when alphabet is set.
func ToFullWidth(s string, alphabet bool) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for _, r := range s {
		if full, ok := kanaPunctuation[r]; ok {
			b.WriteRune(full)
			continue
		}
		if alphabet && r > 0x20 && r < 0x7F {
			b.WriteString(width.Widen.String(string(r)))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToHalfWidth is the inverse of ToFullWidth with alphabet set. Half-width
// katakana are folded back to their full-width forms.
func ToHalfWidth(s string) string {
	s = strings.Map(func(r rune) rune {
		if half, ok := kanaPunctuationReverse[r]; ok {
			return half
		}
		return r
	}, s)
	return width.Fold.String(s)
}

// ToKatakana converts hiragana to katakana; other runes pass through.
func ToKatakana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ぁ' && r <= 'ゖ' || r == 'ゝ' || r == 'ゞ' {
			return r + ('ァ' - 'ぁ')
		}
		return r
	}, s)
}

// ToHiragana converts katakana to hiragana; other runes pass through.
func ToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' || r == 'ヽ' || r == 'ヾ' {
			return r - ('ァ' - 'ぁ')
		}
		return r
	}, s)
}

// ToHalfWidthKatakana converts kana to half-width katakana. Voiced kana are
// decomposed first so their marks become separate half-width marks.
func ToHalfWidthKatakana(s string) string {
	return width.Narrow.String(norm.NFD.String(ToKatakana(s)))
}

// RenderVariant renders the composition in a script variant. Kana variants
// start from the reading, Latin variants from the raw keystrokes.
func RenderVariant(v ScriptVariant, reading, raw string) string {
	switch v {
	case VariantHiragana:
		return ToHiragana(reading)
	case VariantKatakana:
		return ToKatakana(reading)
	case VariantHalfWidthKatakana:
		return ToHalfWidthKatakana(reading)
	case VariantFullWidthLatin:
		return width.Widen.String(ToHalfWidth(raw))
	default:
		return ToHalfWidth(raw)
	}
}
