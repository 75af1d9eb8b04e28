package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"ragtutor/internal/domain"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// SentenceChunker splits text into token-bounded chunks along sentence
// boundaries. Sentences are packed greedily up to maxTokens; a single
// sentence larger than maxTokens is force-split into sliding windows of
// maxTokens advancing by maxTokens-overlapTokens.
type SentenceChunker struct {
	maxTokens     int
	overlapTokens int
	tokenizer     Tokenizer
}

// NewSentenceChunker validates the chunking parameters. overlapTokens
// must be strictly smaller than maxTokens so every window makes forward
// progress.
func NewSentenceChunker(maxTokens, overlapTokens int, tokenizer Tokenizer) (*SentenceChunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max_tokens must be positive, got %d", domain.ErrInvalidConfig, maxTokens)
	}
	if overlapTokens < 0 {
		return nil, fmt.Errorf("%w: overlap_tokens must not be negative, got %d", domain.ErrInvalidConfig, overlapTokens)
	}
	if overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: overlap_tokens %d must be smaller than max_tokens %d", domain.ErrInvalidConfig, overlapTokens, maxTokens)
	}
	if tokenizer == nil {
		tokenizer = WordTokenizer{}
	}
	return &SentenceChunker{maxTokens: maxTokens, overlapTokens: overlapTokens, tokenizer: tokenizer}, nil
}

// TokenCount reports the token count of text under the chunker's
// tokenizer.
func (c *SentenceChunker) TokenCount(text string) int { return c.tokenizer.Count(text) }

// Chunk splits text into ordered chunk strings. Empty input yields nil.
func (c *SentenceChunker) Chunk(text string) []string {
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	if text == "" {
		return nil
	}
	sentences := splitSentences(text)

	var chunks []string
	var current []string
	currentTokens := 0
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.TrimSpace(strings.Join(current, " ")))
			current = nil
			currentTokens = 0
		}
	}
	for _, sent := range sentences {
		sentTokens := c.tokenizer.Count(sent)
		if currentTokens+sentTokens <= c.maxTokens {
			current = append(current, sent)
			currentTokens += sentTokens
			continue
		}
		flush()
		if sentTokens > c.maxTokens {
			chunks = append(chunks, c.splitWindows(sent)...)
			continue
		}
		current = []string{sent}
		currentTokens = sentTokens
	}
	flush()
	return chunks
}

// splitWindows force-splits an oversized sentence at the token level.
// Consecutive windows share exactly overlapTokens tokens.
func (c *SentenceChunker) splitWindows(sent string) []string {
	tokens := c.tokenizer.Encode(sent)
	step := c.maxTokens - c.overlapTokens
	var out []string
	for start := 0; start < len(tokens); start += step {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, strings.TrimSpace(c.tokenizer.Decode(tokens[start:end])))
	}
	return out
}

// splitSentences splits whitespace-normalized text at `.`, `!` or `?`
// followed by a space, keeping the punctuation with the sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if (text[i] == '.' || text[i] == '!' || text[i] == '?') && text[i+1] == ' ' {
			sentences = append(sentences, text[start:i+1])
			start = i + 2
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}
