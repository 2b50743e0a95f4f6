// Package kagome provides an offline [dictionary.Lookuper] that derives
// readings from the IPA dictionary shipped with the kagome morphological
// analyser.
//
// A lookup tokenizes the word and concatenates the token readings. Words the
// analyser does not know (tokens without a reading) produce no candidate, so
// this backend works best as a fallback behind a real dictionary.
package kagome

import (
	"context"
	"fmt"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/MrWong99/kotoba/pkg/kana"
	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
)

var _ dictionary.Lookuper = (*Analyzer)(nil)

// Analyzer wraps a kagome tokenizer. It is safe for concurrent use.
type Analyzer struct {
	t *tokenizer.Tokenizer
}

// New builds a tokenizer over the IPA dictionary.
func New() (*Analyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("kagome: create tokenizer: %w", err)
	}
	return &Analyzer{t: t}, nil
}

// Tokenizer exposes the underlying tokenizer so other components (such as the
// romaji particle tagger) can share the loaded dictionary.
func (a *Analyzer) Tokenizer() *tokenizer.Tokenizer { return a.t }

// Lookup implements [dictionary.Lookuper]. It returns at most one candidate
// whose headword is word itself.
func (a *Analyzer) Lookup(ctx context.Context, word string) ([]dictionary.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if word == "" {
		return nil, nil
	}

	var b strings.Builder
	for _, tok := range a.t.Tokenize(word) {
		if tok.Class == tokenizer.DUMMY {
			continue
		}
		r, ok := tok.Reading()
		if !ok || r == "" || r == "*" {
			return nil, nil
		}
		b.WriteString(r)
	}
	if b.Len() == 0 {
		return nil, nil
	}
	return []dictionary.Candidate{{Headword: word, Reading: kana.ToHiragana(b.String())}}, nil
}
