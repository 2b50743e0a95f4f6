// Package kana provides script classification and kana folding helpers for
// Japanese text.
package kana

import (
	"strings"
	"unicode"
)

const (
	katakanaStart = 0x30A1 // ァ
	katakanaEnd   = 0x30F6 // ヶ
	kanaShift     = 0x60
)

// IsIdeograph reports whether r is a Han character, including the iteration
// mark 々.
func IsIdeograph(r rune) bool {
	return unicode.Is(unicode.Han, r)
}

// IsHiragana reports whether r is in the Hiragana block.
func IsHiragana(r rune) bool {
	return unicode.Is(unicode.Hiragana, r)
}

// IsKatakana reports whether r is in the Katakana block, including the
// prolonged sound mark ー.
func IsKatakana(r rune) bool {
	return unicode.Is(unicode.Katakana, r) || r == 'ー'
}

// IsKana reports whether r is hiragana or katakana.
func IsKana(r rune) bool {
	return IsHiragana(r) || IsKatakana(r)
}

// HasIdeograph reports whether s contains at least one Han character.
func HasIdeograph(s string) bool {
	return strings.IndexFunc(s, IsIdeograph) >= 0
}

// AllKana reports whether s is non-empty and consists of kana only.
func AllKana(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !IsKana(r) {
			return false
		}
	}
	return true
}

// ToHiragana folds katakana in s to the corresponding hiragana. Characters
// without a hiragana counterpart (ー, ヷ and friends) are left unchanged.
func ToHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= katakanaStart && r <= katakanaEnd {
			return r - kanaShift
		}
		return r
	}, s)
}
