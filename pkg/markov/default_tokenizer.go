package markov

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultTokenizer is a default implementation of the Tokenizer interface.
//
// It applies a fixed rule-set instead of a pattern engine:
//   - input is normalized to Unicode NFC, and optionally lowercased;
//   - words are split on Unicode whitespace;
//   - the trailing run of punctuation characters of each word is split off,
//     one token per character, in order ("wait?!" -> "wait", "?", "!");
//   - leading and inner punctuation stays part of the word ("don't", "e.g").
//
// Terminal punctuation ('.', '!', '?' by default) marks the end of a sentence.
// Its behavior can be customized with functional options.
type DefaultTokenizer struct {
	separator   string
	punctuation string
	terminals   string
	lowercase   bool
	lang        language.Tag
}

// Option Is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithSeparator Sets the string used for joining tokens during generation.
// Default: " "
func WithSeparator(sep string) Option {
	return func(t *DefaultTokenizer) {
		t.separator = sep
	}
}

// WithPunctuation sets the characters that are split off the end of words and
// joined without a separator before them.
// Default: ".,!?;:"
func WithPunctuation(chars string) Option {
	return func(t *DefaultTokenizer) {
		t.punctuation = chars
	}
}

// WithTerminals sets the punctuation characters that end a sentence.
// Default: ".!?"
func WithTerminals(chars string) Option {
	return func(t *DefaultTokenizer) {
		t.terminals = chars
	}
}

// WithLowercase folds all input to lower case using the casing rules of tag.
func WithLowercase(tag language.Tag) Option {
	return func(t *DefaultTokenizer) {
		t.lowercase = true
		t.lang = tag
	}
}

// NewDefaultTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{
		separator:   " ",
		punctuation: ".,!?;:",
		terminals:   ".!?",
		lang:        language.Und,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Tokenize splits text according to the tokenizer's rule-set.
func (t *DefaultTokenizer) Tokenize(text string) []string {
	text = norm.NFC.String(text)
	if t.lowercase {
		// Casers carry state and are not shared between calls.
		text = cases.Lower(t.lang).String(text)
	}

	tokens := make([]string, 0)
	for _, word := range strings.FieldsFunc(text, unicode.IsSpace) {
		tokens = t.appendWord(tokens, word)
	}
	return tokens
}

// appendWord appends word and its split-off trailing punctuation to tokens.
func (t *DefaultTokenizer) appendWord(tokens []string, word string) []string {
	cut := len(word)
	for cut > 0 {
		r, size := utf8.DecodeLastRuneInString(word[:cut])
		if !strings.ContainsRune(t.punctuation, r) {
			break
		}
		cut -= size
	}

	if cut > 0 {
		tokens = append(tokens, word[:cut])
	}
	for _, r := range word[cut:] {
		tokens = append(tokens, string(r))
	}
	return tokens
}

// Separator returns "" before punctuation and the configured separator otherwise.
func (t *DefaultTokenizer) Separator(_, next string) string {
	r := []rune(next)
	if len(r) == 1 && strings.ContainsRune(t.punctuation, r[0]) {
		return ""
	}
	return t.separator
}

// IsTerminal reports whether token is a single sentence-ending character.
func (t *DefaultTokenizer) IsTerminal(token string) bool {
	r := []rune(token)
	return len(r) == 1 && strings.ContainsRune(t.terminals, r[0])
}

// NewStream Returns the stream processor.
func (t *DefaultTokenizer) NewStream(r io.Reader) StreamTokenizer {
	return &DefaultStreamTokenizer{
		reader:    bufio.NewReader(r),
		tokenizer: t,
	}
}

// DefaultStreamTokenizer is the default implementation of the StreamTokenizer interface.
// It reads a stream line by line and tokenizes each line with its DefaultTokenizer.
// Lines have no length limit.
type DefaultStreamTokenizer struct {
	reader    *bufio.Reader
	buffer    []string
	tokenizer *DefaultTokenizer
	eof       bool
}

// Next returns the next token from the stream. When the stream is exhausted,
// it returns an empty string and io.EOF. Any other error indicates a problem
// reading from the underlying stream.
func (s *DefaultStreamTokenizer) Next() (string, error) {
	for len(s.buffer) == 0 { // Loop until we have tokens
		if s.eof {
			return "", io.EOF
		}
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", err
			}
			s.eof = true
		}
		s.buffer = s.tokenizer.Tokenize(line)
	}

	token := s.buffer[0]
	s.buffer = s.buffer[1:]
	return token, nil
}
