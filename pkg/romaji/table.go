package romaji

import (
	"strings"
	"unicode/utf8"
)

var syllables = map[rune]string{
	'あ': "a", 'い': "i", 'う': "u", 'え': "e", 'お': "o",
	'か': "ka", 'き': "ki", 'く': "ku", 'け': "ke", 'こ': "ko",
	'が': "ga", 'ぎ': "gi", 'ぐ': "gu", 'げ': "ge", 'ご': "go",
	'さ': "sa", 'し': "shi", 'す': "su", 'せ': "se", 'そ': "so",
	'ざ': "za", 'じ': "ji", 'ず': "zu", 'ぜ': "ze", 'ぞ': "zo",
	'た': "ta", 'ち': "chi", 'つ': "tsu", 'て': "te", 'と': "to",
	'だ': "da", 'ぢ': "ji", 'づ': "zu", 'で': "de", 'ど': "do",
	'な': "na", 'に': "ni", 'ぬ': "nu", 'ね': "ne", 'の': "no",
	'は': "ha", 'ひ': "hi", 'ふ': "fu", 'へ': "he", 'ほ': "ho",
	'ば': "ba", 'び': "bi", 'ぶ': "bu", 'べ': "be", 'ぼ': "bo",
	'ぱ': "pa", 'ぴ': "pi", 'ぷ': "pu", 'ぺ': "pe", 'ぽ': "po",
	'ま': "ma", 'み': "mi", 'む': "mu", 'め': "me", 'も': "mo",
	'や': "ya", 'ゆ': "yu", 'よ': "yo",
	'ら': "ra", 'り': "ri", 'る': "ru", 'れ': "re", 'ろ': "ro",
	'わ': "wa", 'ゐ': "wi", 'ゑ': "we", 'を': "o", 'ん': "n",
	'ゔ': "vu",
	'ぁ': "a", 'ぃ': "i", 'ぅ': "u", 'ぇ': "e", 'ぉ': "o",
	'ゃ': "ya", 'ゅ': "yu", 'ょ': "yo", 'ゎ': "wa",
	'ゕ': "ka", 'ゖ': "ke",
}

// smallY and smallVowel combine with the preceding kana into one syllable.
var (
	smallY     = map[rune]string{'ゃ': "a", 'ゅ': "u", 'ょ': "o"}
	smallVowel = map[rune]string{'ぁ': "a", 'ぃ': "i", 'ぅ': "u", 'ぇ': "e", 'ぉ': "o"}
)

const (
	sokuon = 'っ'
	chouon = 'ー'
	hatsu  = 'ん'
)

// kanaToRomaji renders a hiragana string (katakana already folded) in
// Hepburn romanization. Runes outside the table pass through unchanged.
func kanaToRomaji(s string) string {
	rs := []rune(s)
	sylls := make([]string, 0, len(rs))
	kinds := make([]rune, 0, len(rs))

	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch r {
		case sokuon, chouon, hatsu:
			sylls = append(sylls, "")
			kinds = append(kinds, r)
			continue
		}
		base, ok := syllables[r]
		if !ok {
			sylls = append(sylls, string(r))
			kinds = append(kinds, 0)
			continue
		}
		if i+1 < len(rs) {
			if s, ok := combine(r, base, rs[i+1]); ok {
				base = s
				i++
			}
		}
		sylls = append(sylls, base)
		kinds = append(kinds, 0)
	}

	var b strings.Builder
	b.Grow(len(s))
	for i, syl := range sylls {
		switch kinds[i] {
		case sokuon:
			if next := nextSyllable(sylls, i); next != "" && !startsWithVowel(next) {
				if strings.HasPrefix(next, "ch") {
					b.WriteByte('t')
				} else {
					b.WriteByte(next[0])
				}
			}
		case chouon:
			if v, ok := lastVowel(b.String()); ok {
				b.WriteByte(v)
			}
		case hatsu:
			b.WriteByte('n')
			if next := nextSyllable(sylls, i); next != "" && (startsWithVowel(next) || next[0] == 'y') {
				b.WriteByte('\'')
			}
		default:
			b.WriteString(syl)
		}
	}
	return b.String()
}

// combine merges r with a following small kana into a single syllable.
func combine(r rune, base string, next rune) (string, bool) {
	if v, ok := smallY[next]; ok && strings.HasSuffix(base, "i") && len(base) > 1 {
		stem := base[:len(base)-1]
		switch base {
		case "shi", "chi", "ji":
			return stem + v, true
		}
		return stem + "y" + v, true
	}
	if v, ok := smallVowel[next]; ok && r != 'あ' && r != 'い' && r != 'え' && r != 'お' {
		if r == 'う' {
			return "w" + v, true
		}
		stem := strings.TrimRight(base, "aiueo")
		if stem == "" {
			return "", false
		}
		return stem + v, true
	}
	return "", false
}

func nextSyllable(sylls []string, i int) string {
	for j := i + 1; j < len(sylls); j++ {
		if sylls[j] != "" {
			return sylls[j]
		}
	}
	return ""
}

func startsWithVowel(s string) bool {
	return s != "" && strings.IndexByte("aiueo", s[0]) >= 0
}

func lastVowel(s string) (byte, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if strings.IndexByte("aiueo", s[i]) >= 0 {
			return s[i], true
		}
		if s[i] >= utf8.RuneSelf || s[i] == ' ' {
			break
		}
	}
	return 0, false
}
