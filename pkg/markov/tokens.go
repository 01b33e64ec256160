package markov

import (
	"io"
	"strings"
)

// Tokenizer is an interface that defines the contract for splitting input text
// into tokens. This allows the chain and generation logic to be independent of
// the specific tokenization strategy.
type Tokenizer interface {
	// Tokenize splits text into an ordered slice of tokens. Empty input yields
	// an empty slice.
	Tokenize(text string) []string
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
	// Separator returns the string that should be used to join tokens
	// when building a final generated string, using the previous and next
	// tokens.
	Separator(prev, next string) string
	// IsTerminal reports whether a token marks the end of a sentence.
	IsTerminal(token string) bool
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of data, returning one token at a time.
type StreamTokenizer interface {
	// Next returns the next token from the stream. It returns io.EOF as the
	// error when the stream is fully consumed.
	Next() (string, error)
}

// Join renders tokens back into text using the tokenizer's separator rules.
func Join(t Tokenizer, tokens []string) string {
	var builder strings.Builder
	for i, token := range tokens {
		if i > 0 {
			builder.WriteString(t.Separator(tokens[i-1], token))
		}
		builder.WriteString(token)
	}
	return builder.String()
}
