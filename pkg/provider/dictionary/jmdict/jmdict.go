// Package jmdict provides an offline [dictionary.Lookuper] over a
// jmdict-simplified JSON export (https://github.com/scriptin/jmdict-simplified).
//
// The whole dictionary is held in memory as an index from written form to
// entries plus a sorted key list for prefix search. Prefix matches let a bare
// kanji stem such as 食 reach okurigana-bearing entries such as 食べる.
package jmdict

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
)

const defaultMaxPrefixMatches = 10

// Entry matches the structure of jmdict-simplified words.
type Entry struct {
	ID    string    `json:"id"`
	Kanji []Element `json:"kanji"`
	Kana  []Kana    `json:"kana"`
}

// Element is a written (kanji) form.
type Element struct {
	Text   string `json:"text"`
	Common bool   `json:"common"`
}

// Kana is a reading element. AppliesToKanji lists the kanji forms the reading
// is valid for; "*" means all of them.
type Kana struct {
	Text           string   `json:"text"`
	Common         bool     `json:"common"`
	AppliesToKanji []string `json:"appliesToKanji"`
}

func (k Kana) appliesTo(kanji string) bool {
	if len(k.AppliesToKanji) == 0 {
		return true
	}
	for _, a := range k.AppliesToKanji {
		if a == "*" || a == kanji {
			return true
		}
	}
	return false
}

// Decode reads a jmdict-simplified document. Both the official
// {"words": [...]} wrapper and a bare array of entries are accepted.
func Decode(r io.Reader) ([]Entry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("jmdict: read: %w", err)
	}

	var doc struct {
		Words []Entry `json:"words"`
	}
	if err := json.Unmarshal(raw, &doc); err == nil && len(doc.Words) > 0 {
		return doc.Words, nil
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("jmdict: parse as object or array: %w", err)
	}
	return entries, nil
}

// LoadFile opens path and builds a [Dictionary] from it.
func LoadFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("jmdict: %w", err)
	}
	defer f.Close()

	entries, err := Decode(f)
	if err != nil {
		return nil, err
	}
	return New(entries), nil
}

var _ dictionary.Lookuper = (*Dictionary)(nil)

// Dictionary is an immutable in-memory index. It is safe for concurrent use.
type Dictionary struct {
	index map[string][]dictionary.Candidate
	keys  []string

	// MaxPrefixMatches bounds how many longer headwords sharing the looked-up
	// word as prefix are appended after exact matches.
	MaxPrefixMatches int
}

// New indexes entries by every kanji form. Entries without kanji are indexed
// by their kana forms.
func New(entries []Entry) *Dictionary {
	idx := make(map[string][]dictionary.Candidate)
	add := func(head, reading string, common bool) {
		c := dictionary.Candidate{Headword: head, Reading: reading}
		if common {
			idx[head] = append([]dictionary.Candidate{c}, idx[head]...)
			return
		}
		idx[head] = append(idx[head], c)
	}

	for _, e := range entries {
		if len(e.Kanji) == 0 {
			for _, k := range e.Kana {
				add(k.Text, k.Text, k.Common)
			}
			continue
		}
		for _, kj := range e.Kanji {
			for _, k := range e.Kana {
				if k.appliesTo(kj.Text) {
					add(kj.Text, k.Text, kj.Common && k.Common)
					break
				}
			}
		}
	}

	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &Dictionary{index: idx, keys: keys, MaxPrefixMatches: defaultMaxPrefixMatches}
}

// Len reports the number of distinct headwords.
func (d *Dictionary) Len() int { return len(d.keys) }

// Lookup implements [dictionary.Lookuper]. Exact headword matches come first,
// followed by up to MaxPrefixMatches headwords that start with word.
func (d *Dictionary) Lookup(ctx context.Context, word string) ([]dictionary.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if word == "" {
		return nil, nil
	}

	out := append([]dictionary.Candidate(nil), d.index[word]...)

	i := sort.SearchStrings(d.keys, word)
	n := 0
	for ; i < len(d.keys) && n < d.MaxPrefixMatches; i++ {
		k := d.keys[i]
		if !strings.HasPrefix(k, word) {
			break
		}
		if k == word {
			continue
		}
		out = append(out, d.index[k]...)
		n++
	}
	return out, nil
}
