package kana

import "testing"

func TestToHiragana(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"カタカナ", "かたかな"},
		{"ニホンゴ", "にほんご"},
		{"コーヒー", "こーひー"},
		{"ひらがな", "ひらがな"},
		{"漢字とカナ", "漢字とかな"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ToHiragana(tt.in); got != tt.want {
			t.Errorf("ToHiragana(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsIdeograph(t *testing.T) {
	t.Parallel()

	for _, r := range "日本語々" {
		if !IsIdeograph(r) {
			t.Errorf("IsIdeograph(%q) = false, want true", r)
		}
	}
	for _, r := range "にカA。" {
		if IsIdeograph(r) {
			t.Errorf("IsIdeograph(%q) = true, want false", r)
		}
	}
}

func TestAllKana(t *testing.T) {
	t.Parallel()

	if !AllKana("べる") {
		t.Error("AllKana(べる) = false, want true")
	}
	if !AllKana("コーヒー") {
		t.Error("AllKana(コーヒー) = false, want true")
	}
	if AllKana("") {
		t.Error("AllKana(\"\") = true, want false")
	}
	if AllKana("食べる") {
		t.Error("AllKana(食べる) = true, want false")
	}
}

func TestHasIdeograph(t *testing.T) {
	t.Parallel()

	if !HasIdeograph("ねこは猫") {
		t.Error("HasIdeograph = false, want true")
	}
	if HasIdeograph("ねこです") {
		t.Error("HasIdeograph = true, want false")
	}
}
