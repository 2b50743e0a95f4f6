// Package furigana annotates Japanese text with ruby reading glosses.
//
// An [Annotator] finds every maximal run of ideographs outside existing ruby
// markup, resolves a reading for each distinct run (reading cache first, then a
// [dictionary.Lookuper]) and wraps each occurrence of the run in
// <ruby>run<rt>reading</rt></ruby>. Kana next to a run (okurigana) is left
// outside the annotation.
//
// Runs that cannot be resolved stay plain text; dictionary failures never fail
// a call. Failures of the cache store are returned to the caller.
//
// Usage:
//
//	a := furigana.New(lookuper, store, furigana.WithMaxConcurrentLookups(4))
//	html, err := a.Annotate(ctx, "日本語を勉強します")
package furigana

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/kotoba/pkg/cache"
	"github.com/MrWong99/kotoba/pkg/cache/memory"
	"github.com/MrWong99/kotoba/pkg/kana"
	"github.com/MrWong99/kotoba/pkg/provider/dictionary"
	"github.com/MrWong99/kotoba/pkg/ruby"
)

const defaultMaxConcurrentLookups = 4

// Option is a functional option for configuring an Annotator.
type Option func(*Annotator)

// WithMaxConcurrentLookups bounds how many distinct runs of a single text are
// resolved in parallel. Values below 1 are treated as 1.
func WithMaxConcurrentLookups(n int) Option {
	return func(a *Annotator) {
		if n < 1 {
			n = 1
		}
		a.maxConcurrent = n
	}
}

// WithSentenceCache enables caching of whole annotated texts. A text is only
// stored once every run in it has been resolved.
func WithSentenceCache(enabled bool) Option {
	return func(a *Annotator) { a.cacheSentences = enabled }
}

// Annotator adds furigana to text. It is safe for concurrent use.
type Annotator struct {
	lookup         dictionary.Lookuper
	store          cache.Store
	maxConcurrent  int
	cacheSentences bool

	flight singleflight.Group
}

// New returns an Annotator resolving readings through lookup and caching them
// in store. A nil store is replaced by an unbounded in-memory store.
func New(lookup dictionary.Lookuper, store cache.Store, opts ...Option) *Annotator {
	if store == nil {
		store, _ = memory.New(0)
	}
	a := &Annotator{
		lookup:        lookup,
		store:         store,
		maxConcurrent: defaultMaxConcurrentLookups,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Annotate returns text with every resolvable ideograph run wrapped in ruby
// markup. Text already inside ruby elements is left untouched, so annotating
// an annotated text returns it unchanged.
func (a *Annotator) Annotate(ctx context.Context, text string) (string, error) {
	pieces := split(text)
	runs := runsOf(pieces)
	if len(runs) == 0 {
		return text, nil
	}

	if a.cacheSentences {
		if v, ok, err := a.store.Get(ctx, text); err != nil {
			return "", err
		} else if ok {
			return v, nil
		}
	}

	markup, err := a.resolveAll(ctx, runs)
	if err != nil {
		return "", err
	}

	// Longest runs first. Pieces are maximal runs, so a shorter run can never
	// match inside a longer one that was already substituted.
	resolved := 0
	for _, r := range runs {
		m := markup[r]
		if m == "" {
			continue
		}
		resolved++
		for i := range pieces {
			if pieces[i].run && !pieces[i].done && pieces[i].text == r {
				pieces[i].text = m
				pieces[i].done = true
			}
		}
	}

	var b strings.Builder
	b.Grow(len(text) * 2)
	for _, p := range pieces {
		b.WriteString(p.text)
	}
	out := b.String()

	if a.cacheSentences && resolved == len(runs) {
		if err := a.store.Put(ctx, text, out); err != nil {
			return "", err
		}
	}
	return out, nil
}

// AnnotateAll annotates each text in order. It stops at the first cache
// failure.
func (a *Annotator) AnnotateAll(ctx context.Context, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		v, err := a.Annotate(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Forget removes a cached annotation for key, which may be a run or a whole
// text.
func (a *Annotator) Forget(ctx context.Context, key string) error {
	return a.store.Delete(ctx, key)
}

// resolveAll returns the ruby markup for each run; unresolved runs map to "".
func (a *Annotator) resolveAll(ctx context.Context, runs []string) (map[string]string, error) {
	results := make([]string, len(runs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrent)
	for i, r := range runs {
		g.Go(func() error {
			m, err := a.resolve(gctx, r)
			if err != nil {
				return err
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(runs))
	for i, r := range runs {
		out[r] = results[i]
	}
	return out, nil
}

func (a *Annotator) resolve(ctx context.Context, run string) (string, error) {
	if v, ok, err := a.store.Get(ctx, run); err != nil {
		return "", err
	} else if ok {
		return v, nil
	}

	v, err, _ := a.flight.Do(run, func() (any, error) {
		cands, err := a.lookup.Lookup(ctx, run)
		if err != nil {
			slog.Warn("furigana: lookup failed", "run", run, "err", err)
			return "", nil
		}
		reading, ok := Choose(run, cands)
		if !ok {
			slog.Debug("furigana: no reading", "run", run, "candidates", len(cands))
			return "", nil
		}
		m := ruby.Format(run, reading)
		if err := a.store.Put(ctx, run, m); err != nil {
			return "", err
		}
		return m, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Choose picks the reading for run from dictionary candidates.
//
// An exact headword match wins. Otherwise the first candidate whose headword
// contains run is used; when the rest of that headword is kana the matching
// kana is trimmed from the reading so only the run's part remains (食べる/たべる
// gives た for 食), and when it is not the whole reading is kept. Later
// candidates are never consulted. ok is false when no candidate fits.
func Choose(run string, cands []dictionary.Candidate) (reading string, ok bool) {
	for _, c := range cands {
		if c.Headword == run && c.Reading != "" {
			return c.Reading, true
		}
	}

	for _, c := range cands {
		if c.Reading == "" {
			continue
		}
		idx := strings.Index(c.Headword, run)
		if idx < 0 {
			continue
		}
		if r, ok := trimOkurigana(c.Headword[:idx], c.Headword[idx+len(run):], c.Reading); ok {
			return r, true
		}
		return c.Reading, true
	}
	return "", false
}

func trimOkurigana(prefix, suffix, reading string) (string, bool) {
	if (prefix != "" && !kana.AllKana(prefix)) || (suffix != "" && !kana.AllKana(suffix)) {
		return "", false
	}
	p, s, r := kana.ToHiragana(prefix), kana.ToHiragana(suffix), kana.ToHiragana(reading)
	if !strings.HasPrefix(r, p) {
		return "", false
	}
	r = r[len(p):]
	if !strings.HasSuffix(r, s) {
		return "", false
	}
	r = r[:len(r)-len(s)]
	if r == "" {
		return "", false
	}
	return r, true
}

// Runs returns the distinct maximal ideograph runs of text outside ruby
// markup, longest first. Runs of equal length keep their order of first
// appearance.
func Runs(text string) []string {
	return runsOf(split(text))
}

type piece struct {
	text string
	run  bool // maximal ideograph run
	done bool // already annotated, never matched again
}

// split breaks text into protected ruby pieces, ideograph runs and other text.
func split(text string) []piece {
	var out []piece
	for _, seg := range ruby.Parse(text) {
		if seg.Ruby {
			out = append(out, piece{text: seg.Raw, done: true})
			continue
		}
		s := seg.Raw
		for s != "" {
			r, _ := utf8.DecodeRuneInString(s)
			inRun := kana.IsIdeograph(r)
			end := strings.IndexFunc(s, func(r rune) bool { return kana.IsIdeograph(r) != inRun })
			if end < 0 {
				end = len(s)
			}
			out = append(out, piece{text: s[:end], run: inRun})
			s = s[end:]
		}
	}
	return out
}

func runsOf(pieces []piece) []string {
	seen := make(map[string]bool)
	var runs []string
	for _, p := range pieces {
		if p.run && !seen[p.text] {
			seen[p.text] = true
			runs = append(runs, p.text)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return utf8.RuneCountInString(runs[i]) > utf8.RuneCountInString(runs[j])
	})
	return runs
}
