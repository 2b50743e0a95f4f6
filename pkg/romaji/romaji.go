// Package romaji converts kana, or text carrying ruby readings, to Hepburn
// romanization for learners.
//
// Ruby elements contribute their reading; ideographs without a reading have
// no known pronunciation and are skipped. Grammatical particles are rendered
// as pronounced (は as wa, へ as e, を as o) and set apart by spaces so the
// output reads as words. Which kana count as particles is decided by a
// [Tagger]; without one a script-boundary heuristic is used.
package romaji

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/kotoba/pkg/kana"
	"github.com/MrWong99/kotoba/pkg/ruby"
)

// particleSet holds the single kana that may act as particles.
const particleSet = "はへをがにでともの"

var particleRomaji = map[rune]string{'は': "wa", 'へ': "e", 'を': "o"}

var punct = map[rune]string{
	'。': ".", '、': ",", '？': "?", '！': "!", '．': ".", '，': ",",
	'「': "\"", '」': "\"", '　': " ", '・': " ",
}

var (
	multiSpace  = regexp.MustCompile(` {2,}`)
	spaceBefore = regexp.MustCompile(` +([.,?!])`)
)

// Tagger identifies particles in the base text of an annotated string (ruby
// elements replaced by their base text).
type Tagger interface {
	// Particles returns the byte offsets in base at which a single-kana
	// particle starts.
	Particles(base string) map[int]bool
}

// Option is a functional option for configuring a Converter.
type Option func(*Converter)

// WithTagger sets the particle tagger.
func WithTagger(t Tagger) Option {
	return func(c *Converter) { c.tagger = t }
}

// Converter romanizes text. The zero value uses the heuristic tagger.
type Converter struct {
	tagger Tagger
}

// New returns a Converter.
func New(opts ...Option) *Converter {
	c := &Converter{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Romanize converts text using a Converter without a [Tagger]. The fallback
// heuristic only sees particles after a ruby reading, katakana or other
// script, so text written wholly in hiragana keeps は and へ as ha and he with
// no word breaks: がっこうへいきます gives gakkouheikimasu. Use New with
// [WithTagger] and [NewKagomeTagger] for such input.
func Romanize(text string) string {
	return (&Converter{}).Romanize(text)
}

type unitKind int

const (
	kindContent unitKind = iota // ruby reading, katakana run or skipped ideographs
	kindHira                    // a single plain hiragana rune
	kindOther                   // anything else, passed through
)

type unit struct {
	kind     unitKind
	text     string // hiragana for content and hira units, raw text otherwise
	pos      int    // byte offset in the base text
	particle bool
}

// Romanize converts text, which may contain ruby markup, to romaji.
func (c *Converter) Romanize(text string) string {
	units, base := buildUnits(text)
	if len(units) == 0 {
		return ""
	}

	if c.tagger != nil {
		marks := c.tagger.Particles(base)
		for i := range units {
			if units[i].kind == kindHira && (marks[units[i].pos] || units[i].text == "を") {
				units[i].particle = true
			}
		}
	} else {
		tagHeuristic(units)
	}
	return render(units)
}

func buildUnits(text string) ([]unit, string) {
	var (
		units []unit
		base  strings.Builder
	)
	for _, seg := range ruby.Parse(text) {
		if seg.Ruby {
			units = append(units, unit{kind: kindContent, text: kana.ToHiragana(seg.Reading), pos: base.Len()})
			base.WriteString(seg.Text)
			continue
		}
		s := seg.Raw
		for s != "" {
			r, size := utf8.DecodeRuneInString(s)
			pos := base.Len()
			switch {
			case kana.IsHiragana(r):
				units = append(units, unit{kind: kindHira, text: s[:size], pos: pos})
			case kana.IsKatakana(r), kana.IsIdeograph(r):
				// Group the whole run into one content unit.
				katakana := kana.IsKatakana(r)
				end := strings.IndexFunc(s, func(r rune) bool {
					if katakana {
						return !kana.IsKatakana(r)
					}
					return !kana.IsIdeograph(r)
				})
				if end < 0 {
					end = len(s)
				}
				size = end
				u := unit{kind: kindContent, pos: pos}
				if katakana {
					u.text = kana.ToHiragana(s[:end])
				}
				units = append(units, u)
			default:
				units = append(units, unit{kind: kindOther, text: s[:size], pos: pos})
			}
			base.WriteString(s[:size])
			s = s[size:]
		}
	}
	return units, base.String()
}

// tagHeuristic marks particles from script boundaries alone.
//
// A hiragana run of one or two particle kana that follows any non-hiragana
// unit is all particles (は, には, では). A run following content that starts
// with は or へ has that first kana marked. を is always a particle.
func tagHeuristic(units []unit) {
	for i := 0; i < len(units); {
		if units[i].kind != kindHira {
			i++
			continue
		}
		j := i
		for j < len(units) && units[j].kind == kindHira {
			if units[j].text == "を" {
				units[j].particle = true
			}
			j++
		}
		run := units[i:j]

		if i > 0 {
			prevContent := units[i-1].kind == kindContent
			allParticles := len(run) <= 2
			for _, u := range run {
				if !strings.Contains(particleSet, u.text) {
					allParticles = false
				}
			}
			switch {
			case allParticles:
				for k := range run {
					run[k].particle = true
				}
			case prevContent && (run[0].text == "は" || run[0].text == "へ"):
				run[0].particle = true
			}
		}
		i = j
	}
}

func render(units []unit) string {
	var (
		out  strings.Builder
		word strings.Builder
	)
	flush := func() {
		if word.Len() > 0 {
			out.WriteString(kanaToRomaji(word.String()))
			word.Reset()
		}
	}

	for _, u := range units {
		switch {
		case u.particle:
			flush()
			r, _ := utf8.DecodeRuneInString(u.text)
			p, ok := particleRomaji[r]
			if !ok {
				p = kanaToRomaji(u.text)
			}
			out.WriteString(" " + p + " ")
		case u.kind == kindOther:
			flush()
			r, _ := utf8.DecodeRuneInString(u.text)
			if p, ok := punct[r]; ok {
				out.WriteString(p)
			} else {
				out.WriteString(u.text)
			}
		default:
			word.WriteString(u.text)
		}
	}
	flush()

	s := multiSpace.ReplaceAllString(out.String(), " ")
	s = spaceBefore.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}
