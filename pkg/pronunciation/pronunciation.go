// Package pronunciation scores a transcribed utterance against the phrase the
// learner was asked to repeat.
//
// Both strings are normalized (whitespace and sentence punctuation removed,
// case folded) and compared by Levenshtein distance over code points. The
// similarity percentage gets a small forgiveness boost, is mapped to a
// feedback tier, and a fixed battery of marker checks explains which easily
// dropped grammatical pieces are missing.
//
// Scoring is pure computation and never fails.
package pronunciation

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Tier is a coarse feedback bucket derived from a score.
type Tier string

const (
	TierExcellent    Tier = "excellent"
	TierVeryGood     Tier = "very good"
	TierGood         Tier = "good, keep practicing"
	TierGettingThere Tier = "getting there"
	TierKeepPractice Tier = "keep practicing"
)

// Tier thresholds, inclusive lower bounds.
const (
	thresholdExcellent    = 85
	thresholdVeryGood     = 70
	thresholdGood         = 50
	thresholdGettingThere = 30
)

// Fixed diagnostic messages.
const (
	MsgNoAudio          = "No audio detected"
	MsgLengthDiffers    = "Sentence length differs from the target"
	MsgMinorDifferences = "Minor differences from the target"
)

const (
	DefaultForgiveness     = 1.1
	DefaultLengthTolerance = 2
)

// TierFor maps a score to its tier.
func TierFor(score int) Tier {
	switch {
	case score >= thresholdExcellent:
		return TierExcellent
	case score >= thresholdVeryGood:
		return TierVeryGood
	case score >= thresholdGood:
		return TierGood
	case score >= thresholdGettingThere:
		return TierGettingThere
	default:
		return TierKeepPractice
	}
}

// Marker is a grammatical marker that learners tend to drop. A diagnostic
// fires when the marker occurs in the target but not in what was heard.
type Marker struct {
	Text    string `yaml:"text" json:"text"`
	Message string `yaml:"message" json:"message"`
}

// DefaultMarkers returns the built-in marker battery in evaluation order.
func DefaultMarkers() []Marker {
	return []Marker{
		{Text: "ます", Message: "Missing polite ending ます (masu)"},
		{Text: "ている", Message: "Missing progressive form ている (te iru)"},
		{Text: "を", Message: "Missing object particle を (o)"},
		{Text: "は", Message: "Missing topic particle は (wa)"},
		{Text: "が", Message: "Missing subject particle が (ga)"},
		{Text: "に", Message: "Missing target particle に (ni)"},
		{Text: "へ", Message: "Missing direction particle へ (e)"},
		{Text: "で", Message: "Missing location particle で (de)"},
	}
}

// Result is the outcome of scoring one utterance.
type Result struct {
	TargetText    string   `json:"target_text"`
	Transcription string   `json:"transcription"`
	Score         int      `json:"score"`
	Tier          Tier     `json:"tier"`
	Diagnostics   []string `json:"diagnostics"`
}

// Option is a functional option for configuring a Scorer.
type Option func(*Scorer)

// WithForgiveness sets the multiplier applied to the raw similarity.
func WithForgiveness(f float64) Option {
	return func(s *Scorer) { s.forgiveness = f }
}

// WithLengthTolerance sets how many characters the normalized lengths may
// differ before the length diagnostic fires.
func WithLengthTolerance(n int) Option {
	return func(s *Scorer) { s.lengthTolerance = n }
}

// WithMarkers replaces the marker battery.
func WithMarkers(m []Marker) Option {
	return func(s *Scorer) { s.markers = append([]Marker(nil), m...) }
}

// Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	forgiveness     float64
	lengthTolerance int
	markers         []Marker
}

// New returns a Scorer with the default parameters, overridden by opts.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		forgiveness:     DefaultForgiveness,
		lengthTolerance: DefaultLengthTolerance,
		markers:         DefaultMarkers(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score compares heard against target.
func (s *Scorer) Score(target, heard string) Result {
	res := Result{TargetText: target, Transcription: heard}
	t, h := Normalize(target), Normalize(heard)

	// Silence scores zero even against an empty target.
	if h == "" {
		res.Tier = TierFor(0)
		res.Diagnostics = []string{MsgNoAudio}
		return res
	}
	if t == h {
		res.Score = 100
		res.Tier = TierFor(100)
		res.Diagnostics = []string{}
		return res
	}

	tl, hl := utf8.RuneCountInString(t), utf8.RuneCountInString(h)
	maxLen := max(tl, hl)
	dist := matchr.Levenshtein(t, h)

	raw := math.Round(float64(maxLen-dist) / float64(maxLen) * 100)
	score := int(math.Round(raw * s.forgiveness))
	score = min(100, max(0, score))

	res.Score = score
	res.Tier = TierFor(score)
	res.Diagnostics = s.diagnose(t, h, tl, hl)
	return res
}

func (s *Scorer) diagnose(t, h string, tl, hl int) []string {
	var out []string
	for _, m := range s.markers {
		if m.Text == "" {
			continue
		}
		if strings.Contains(t, m.Text) && !strings.Contains(h, m.Text) {
			out = append(out, m.Message)
		}
	}
	if abs(tl-hl) > s.lengthTolerance {
		out = append(out, MsgLengthDiffers)
	}
	if len(out) == 0 {
		out = append(out, MsgMinorDifferences)
	}
	return out
}

// Normalize removes whitespace and sentence punctuation and folds case.
func Normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || isSentencePunct(r) {
			return -1
		}
		return r
	}, s)
	return strings.ToLower(s)
}

func isSentencePunct(r rune) bool {
	switch r {
	case '。', '．', '、', '，', '？', '！', '.', ',', '?', '!':
		return true
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
