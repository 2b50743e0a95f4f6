// Package ruby reads and writes the HTML ruby markup used for furigana:
//
//	<ruby>漢字<rt>かんじ</rt></ruby>
//
// Parsing is tolerant of attributes and of <rp> fallback parentheses, which
// browsers and other annotators commonly emit.
package ruby

import (
	"html"
	"regexp"
	"strings"
)

var (
	rubyRe = regexp.MustCompile(`(?is)<ruby\b[^>]*>(.*?)</ruby>`)
	rtRe   = regexp.MustCompile(`(?is)<rt\b[^>]*>(.*?)</rt>`)
	rpRe   = regexp.MustCompile(`(?is)<rp\b[^>]*>.*?</rp>`)
	tagRe  = regexp.MustCompile(`<[^>]*>`)
)

// Segment is either a run of plain text or a single ruby element.
type Segment struct {
	// Text is the plain text, or the base text of a ruby element.
	Text string

	// Reading is the gloss of a ruby element. Empty for plain text.
	Reading string

	// Ruby reports whether the segment was a ruby element.
	Ruby bool

	// Raw is the segment exactly as it appeared in the input.
	Raw string
}

// Format renders base annotated with reading.
func Format(base, reading string) string {
	return "<ruby>" + base + "<rt>" + html.EscapeString(reading) + "</rt></ruby>"
}

// Parse splits s into plain and ruby segments. Concatenating the Raw field of
// every segment reproduces s.
func Parse(s string) []Segment {
	var segs []Segment
	last := 0
	for _, m := range rubyRe.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > last {
			segs = append(segs, Segment{Text: s[last:m[0]], Raw: s[last:m[0]]})
		}
		inner := s[m[2]:m[3]]
		segs = append(segs, Segment{
			Text:    baseOf(inner),
			Reading: readingOf(inner),
			Ruby:    true,
			Raw:     s[m[0]:m[1]],
		})
		last = m[1]
	}
	if last < len(s) {
		segs = append(segs, Segment{Text: s[last:], Raw: s[last:]})
	}
	return segs
}

// Strip replaces every ruby element in s with its reading.
func Strip(s string) string {
	var b strings.Builder
	for _, seg := range Parse(s) {
		if seg.Ruby {
			b.WriteString(seg.Reading)
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

// Base replaces every ruby element in s with its base text, undoing
// annotation.
func Base(s string) string {
	var b strings.Builder
	for _, seg := range Parse(s) {
		b.WriteString(seg.Text)
	}
	return b.String()
}

func baseOf(inner string) string {
	inner = rtRe.ReplaceAllString(inner, "")
	inner = rpRe.ReplaceAllString(inner, "")
	return html.UnescapeString(tagRe.ReplaceAllString(inner, ""))
}

func readingOf(inner string) string {
	var parts []string
	for _, m := range rtRe.FindAllStringSubmatch(inner, -1) {
		parts = append(parts, tagRe.ReplaceAllString(m[1], ""))
	}
	return html.UnescapeString(strings.Join(parts, ""))
}
