package kkc

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/derekparker/trie"
)

// Unit is one displayed piece of the reading and the input characters it
// came from.
type Unit struct {
	Kana  string
	Start int // index of the first input rune
	Span  int // number of input runes
}

// End returns the index just past the unit's input.
func (u Unit) End() int {
	return u.Start + u.Span
}

var romajiTable = map[string]string{
	"a": "あ", "i": "い", "u": "う", "e": "え", "o": "お",
	"ka": "か", "ki": "き", "ku": "く", "ke": "け", "ko": "こ",
	"sa": "さ", "si": "し", "shi": "し", "su": "す", "se": "せ", "so": "そ",
	"ta": "た", "ti": "ち", "chi": "ち", "tu": "つ", "tsu": "つ", "te": "て", "to": "と",
	"na": "な", "ni": "に", "nu": "ぬ", "ne": "ね", "no": "の",
	"ha": "は", "hi": "ひ", "hu": "ふ", "fu": "ふ", "he": "へ", "ho": "ほ",
	"ma": "ま", "mi": "み", "mu": "む", "me": "め", "mo": "も",
	"ya": "や", "yu": "ゆ", "ye": "いぇ", "yo": "よ",
	"ra": "ら", "ri": "り", "ru": "る", "re": "れ", "ro": "ろ",
	"la": "ぁ", "li": "ぃ", "lu": "ぅ", "le": "ぇ", "lo": "ぉ",
	"xa": "ぁ", "xi": "ぃ", "xu": "ぅ", "xe": "ぇ", "xo": "ぉ",
	"wa": "わ", "wi": "うぃ", "we": "うぇ", "wo": "を",
	"nn": "ん", "n'": "ん", "n’": "ん", "xn": "ん",
	"ga": "が", "gi": "ぎ", "gu": "ぐ", "ge": "げ", "go": "ご",
	"za": "ざ", "zi": "じ", "ji": "じ", "zu": "ず", "ze": "ぜ", "zo": "ぞ",
	"da": "だ", "di": "ぢ", "du": "づ", "de": "で", "do": "ど",
	"ba": "ば", "bi": "び", "bu": "ぶ", "be": "べ", "bo": "ぼ",
	"pa": "ぱ", "pi": "ぴ", "pu": "ぷ", "pe": "ぺ", "po": "ぽ",
	"va": "ゔぁ", "vi": "ゔぃ", "vu": "ゔ", "ve": "ゔぇ", "vo": "ゔぉ",
	"fa": "ふぁ", "fi": "ふぃ", "fe": "ふぇ", "fo": "ふぉ",
	"kya": "きゃ", "kyu": "きゅ", "kyo": "きょ",
	"sha": "しゃ", "shu": "しゅ", "she": "しぇ", "sho": "しょ",
	"sya": "しゃ", "syu": "しゅ", "syo": "しょ",
	"cha": "ちゃ", "chu": "ちゅ", "che": "ちぇ", "cho": "ちょ",
	"tya": "ちゃ", "tyu": "ちゅ", "tyo": "ちょ",
	"thi": "てぃ", "dhi": "でぃ", "twu": "とぅ", "dwu": "どぅ",
	"nya": "にゃ", "nyu": "にゅ", "nyo": "にょ",
	"hya": "ひゃ", "hyu": "ひゅ", "hyo": "ひょ",
	"mya": "みゃ", "myu": "みゅ", "myo": "みょ",
	"rya": "りゃ", "ryu": "りゅ", "ryo": "りょ",
	"gya": "ぎゃ", "gyu": "ぎゅ", "gyo": "ぎょ",
	"ja": "じゃ", "ju": "じゅ", "je": "じぇ", "jo": "じょ",
	"jya": "じゃ", "jyu": "じゅ", "jyo": "じょ",
	"zya": "じゃ", "zyu": "じゅ", "zyo": "じょ",
	"dya": "ぢゃ", "dyu": "ぢゅ", "dyo": "ぢょ",
	"bya": "びゃ", "byu": "びゅ", "byo": "びょ",
	"pya": "ぴゃ", "pyu": "ぴゅ", "pyo": "ぴょ",
	"xya": "ゃ", "xyu": "ゅ", "xyo": "ょ", "lya": "ゃ", "lyu": "ゅ", "lyo": "ょ",
	"xtu": "っ", "ltu": "っ", "xtsu": "っ", "ltsu": "っ", "xwa": "ゎ", "lwa": "ゎ",
}

// Romaji converts romaji input to kana by longest match.
type Romaji struct {
	table  *trie.Trie
	maxKey int
}

// NewRomaji builds the conversion table.
func NewRomaji() *Romaji {
	r := &Romaji{table: trie.New()}
	for key, kana := range romajiTable {
		r.table.Add(key, kana)
		r.maxKey = max(r.maxKey, utf8.RuneCountInString(key))
	}
	return r
}

// Convert splits input into units. Input that does not form romaji, kana
// included, becomes single-rune units holding the rune itself.
func (r *Romaji) Convert(input []rune) []Unit {
	var units []Unit
	for i := 0; i < len(input); {
		u := r.next(input[i:])
		u.Start = i
		units = append(units, u)
		i += u.Span
	}
	return units
}

func (r *Romaji) next(in []rune) Unit {
	window := make([]rune, min(len(in), r.maxKey))
	for i := range window {
		window[i] = unicode.ToLower(in[i])
	}
	for l := len(window); l > 0; l-- {
		if node, ok := r.table.Find(string(window[:l])); ok {
			return Unit{Kana: node.Meta().(string), Span: l}
		}
	}

	c := window[0]
	if len(window) > 1 {
		next := window[1]
		switch {
		case c == 'n' && next != 'y' && !isVowel(next):
			return Unit{Kana: "ん", Span: 1}
		case c == next && isConsonant(c), c == 't' && next == 'c':
			return Unit{Kana: "っ", Span: 1}
		}
	}
	return Unit{Kana: string(in[0]), Span: 1}
}

// Pending reports whether the unit is a romaji letter still waiting for
// the rest of its syllable.
func (r *Romaji) Pending(u Unit) bool {
	if u.Span != 1 || utf8.RuneCountInString(u.Kana) != 1 {
		return false
	}
	return r.table.HasKeysWithPrefix(strings.ToLower(u.Kana))
}

// Reading concatenates the kana of units.
func Reading(units []Unit) string {
	var b strings.Builder
	for _, u := range units {
		b.WriteString(u.Kana)
	}
	return b.String()
}

func isVowel(c rune) bool {
	return strings.ContainsRune("aiueo", c)
}

func isConsonant(c rune) bool {
	return c >= 'a' && c <= 'z' && !isVowel(c) && c != 'n'
}
