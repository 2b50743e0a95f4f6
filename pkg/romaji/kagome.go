package romaji

import (
	"strings"
	"unicode/utf8"

	"github.com/ikawaha/kagome/v2/tokenizer"
)

// posParticle is the IPA dictionary part-of-speech tag for particles.
const posParticle = "助詞"

// KagomeTagger finds particles with morphological analysis. It is safe for
// concurrent use.
type KagomeTagger struct {
	t *tokenizer.Tokenizer
}

var _ Tagger = (*KagomeTagger)(nil)

// NewKagomeTagger wraps an existing tokenizer.
func NewKagomeTagger(t *tokenizer.Tokenizer) *KagomeTagger {
	return &KagomeTagger{t: t}
}

// Particles implements [Tagger]. Only single-kana particle tokens are
// reported.
func (k *KagomeTagger) Particles(base string) map[int]bool {
	marks := make(map[int]bool)
	pos := 0
	for _, tok := range k.t.Tokenize(base) {
		start := pos
		pos += len(tok.Surface)
		if tok.Class == tokenizer.DUMMY || utf8.RuneCountInString(tok.Surface) != 1 {
			continue
		}
		if !strings.Contains(particleSet, tok.Surface) {
			continue
		}
		if f := tok.Features(); len(f) > 0 && f[0] == posParticle {
			marks[start] = true
		}
	}
	return marks
}
