package chunker

import "strings"

// Tokenizer turns text into discrete tokens and back. The same
// tokenizer must be used for counting and for windowing, otherwise the
// overlap guarantee between forced windows breaks.
type Tokenizer interface {
	Encode(text string) []string
	Decode(tokens []string) string
	Count(text string) int
}

// WordTokenizer tokenizes on whitespace. Deterministic and cheap;
// counts differ from subword tokenizers by a constant-ish factor, which
// is fine as long as chunk budgets are expressed in the same units.
type WordTokenizer struct{}

func (WordTokenizer) Encode(text string) []string { return strings.Fields(text) }

func (WordTokenizer) Decode(tokens []string) string { return strings.Join(tokens, " ") }

func (WordTokenizer) Count(text string) int { return len(strings.Fields(text)) }
