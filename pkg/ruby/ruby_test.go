package ruby

import (
	"strings"
	"testing"
)

func TestFormat(t *testing.T) {
	t.Parallel()

	got := Format("日本", "にほん")
	want := "<ruby>日本<rt>にほん</rt></ruby>"
	if got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}

func TestFormat_EscapesReading(t *testing.T) {
	t.Parallel()

	got := Format("字", "<b>")
	if strings.Contains(got, "<b>") {
		t.Errorf("Format did not escape reading: %q", got)
	}
}

func TestParse_RoundTripsRaw(t *testing.T) {
	t.Parallel()

	in := "今日は<ruby>日本<rt>にほん</rt></ruby>へ<ruby>行<rp>(</rp><rt>い</rt><rp>)</rp></ruby>きます"
	segs := Parse(in)

	var raw strings.Builder
	for _, s := range segs {
		raw.WriteString(s.Raw)
	}
	if raw.String() != in {
		t.Errorf("raw concat = %q, want %q", raw.String(), in)
	}

	if len(segs) != 5 {
		t.Fatalf("len(segs) = %d, want 5", len(segs))
	}
	if segs[0].Ruby || segs[0].Text != "今日は" {
		t.Errorf("segs[0] = %+v, want plain 今日は", segs[0])
	}
	if !segs[1].Ruby || segs[1].Text != "日本" || segs[1].Reading != "にほん" {
		t.Errorf("segs[1] = %+v, want ruby 日本/にほん", segs[1])
	}
	if !segs[3].Ruby || segs[3].Text != "行" || segs[3].Reading != "い" {
		t.Errorf("segs[3] = %+v, want ruby 行/い", segs[3])
	}
}

func TestStripAndBase(t *testing.T) {
	t.Parallel()

	in := "<ruby>私<rt>わたし</rt></ruby>は<ruby>学生<rt>がくせい</rt></ruby>です"
	if got, want := Strip(in), "わたしはがくせいです"; got != want {
		t.Errorf("Strip = %q, want %q", got, want)
	}
	if got, want := Base(in), "私は学生です"; got != want {
		t.Errorf("Base = %q, want %q", got, want)
	}
}

func TestParse_NoMarkup(t *testing.T) {
	t.Parallel()

	segs := Parse("ねこです")
	if len(segs) != 1 || segs[0].Ruby || segs[0].Text != "ねこです" {
		t.Errorf("Parse = %+v, want single plain segment", segs)
	}
	if segs := Parse(""); len(segs) != 0 {
		t.Errorf("Parse(\"\") = %+v, want empty", segs)
	}
}
