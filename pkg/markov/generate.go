package markov

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
)

// RandSource is the source of uniform randomness used by Generate. A
// *rand.Rand from math/rand/v2 satisfies it.
type RandSource interface {
	// IntN returns a uniform int in [0, n). n is always positive.
	IntN(n int) int
	// Float64 returns a uniform float64 in [0.0, 1.0).
	Float64() float64
}

// NewRand returns a deterministic RandSource seeded with seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// StopReason tells why a generation run ended.
type StopReason int

const (
	// StopLength means the output reached the maximum length.
	StopLength StopReason = iota
	// StopStalled means the current context had no observed continuations.
	StopStalled
	// StopTerminal means a sentence-terminal token was drawn.
	StopTerminal
)

func (r StopReason) String() string {
	switch r {
	case StopLength:
		return "length"
	case StopStalled:
		return "stalled"
	case StopTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Result is the output of a generation run.
type Result struct {
	Tokens []string
	Reason StopReason
}

// candidate represents a potential next token in a chain, along with its
// frequency of occurrence after the current context.
type candidate struct {
	Token string
	Freq  int
}

// generateOptions Is used by the generate functions to configure default options.
type generateOptions struct {
	isTerminal  func(string) bool
	temperature float64
	topK        int
}

// GenerateOption is a function that configures generation parameters.
type GenerateOption func(*generateOptions)

// WithEarlyTermination stops generation right after a token for which
// isTerminal returns true has been drawn. Tokens from the seed never stop
// generation. A nil function disables early termination, which is the default.
func WithEarlyTermination(isTerminal func(token string) bool) GenerateOption {
	return func(o *generateOptions) { o.isTerminal = isTerminal }
}

// WithTemperature adjusts the randomness of the token selection.
// A value of 1.0 is standard weighted random selection.
// Values > 1.0 increase randomness (making less frequent tokens more likely).
// Values < 1.0 decrease randomness (making more frequent tokens even more likely).
// A value of 0 or less always chooses among the most frequent tokens.
func WithTemperature(t float64) GenerateOption {
	return func(o *generateOptions) { o.temperature = t }
}

// WithTopK restricts the token selection pool to the top `k` most frequent tokens
// at each step. A value of 0 disables Top-K sampling.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// Generate extends seed by repeatedly drawing a next token from c, conditioned
// on the last order-1 tokens, and returns the whole sequence including the seed.
// See GenerateResult for the stopping rules.
func Generate(c *Chain, seed []string, maxLength int, rng RandSource, opts ...GenerateOption) ([]string, error) {
	res, err := GenerateResult(c, seed, maxLength, rng, opts...)
	if err != nil {
		return nil, err
	}
	return res.Tokens, nil
}

// GenerateResult is Generate, also reporting why generation stopped.
//
// The seed must hold at least order-1 tokens, otherwise ErrInsufficientSeed is
// returned. A seed longer than maxLength is truncated to maxLength. Generation
// stops when the output holds maxLength tokens, when the current context has
// no observed continuations (the tokens produced so far are returned), or
// after drawing a terminal token if WithEarlyTermination is set. The output
// never exceeds maxLength tokens.
func GenerateResult(c *Chain, seed []string, maxLength int, rng RandSource, opts ...GenerateOption) (Result, error) {
	if maxLength < 0 {
		return Result{}, fmt.Errorf("%w: max length must not be negative, got %d", ErrInvalidConfiguration, maxLength)
	}
	if rng == nil {
		return Result{}, fmt.Errorf("%w: nil random source", ErrInvalidConfiguration)
	}
	n := c.ContextLen()
	if len(seed) < n {
		return Result{}, fmt.Errorf("%w: need %d tokens, got %d", ErrInsufficientSeed, n, len(seed))
	}

	options := &generateOptions{
		temperature: 1.0,
		topK:        0,
	}
	for _, opt := range opts {
		opt(options)
	}

	output := make([]string, 0, maxLength)
	output = append(output, seed[:min(len(seed), maxLength)]...)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var choices []candidate
	for len(output) < maxLength {
		e := c.lookup(output[len(output)-n:])
		if e == nil || len(e.next) == 0 { // Dead end in chain
			return Result{Tokens: output, Reason: StopStalled}, nil
		}

		choices = choices[:0]
		for token, freq := range e.next {
			choices = append(choices, candidate{Token: token, Freq: freq})
		}
		// Map order is random; a fixed order makes a fixed rng reproducible.
		slices.SortFunc(choices, func(a, b candidate) int {
			return strings.Compare(a.Token, b.Token)
		})

		next := chooseNextToken(choices, e.total, options, rng)
		output = append(output, next)

		if options.isTerminal != nil && options.isTerminal(next) {
			return Result{Tokens: output, Reason: StopTerminal}, nil
		}
	}

	return Result{Tokens: output, Reason: StopLength}, nil
}

// chooseNextToken abstracts the token selection logic from the generation loop.
// choices must be non-empty and sorted by token.
func chooseNextToken(choices []candidate, totalFreq int, options *generateOptions, rng RandSource) string {
	// topK filtering
	if options.topK > 0 && options.topK < len(choices) {
		slices.SortStableFunc(choices, func(a, b candidate) int {
			return b.Freq - a.Freq
		})
		choices = choices[:options.topK]
		totalFreq = 0
		for _, choice := range choices {
			totalFreq += choice.Freq
		}
	}

	// temperature selection
	if options.temperature <= 0 { // Most frequent, ties broken by a draw
		maxFreq := 0
		var best []string
		for _, choice := range choices {
			switch {
			case choice.Freq > maxFreq:
				maxFreq = choice.Freq
				best = append(best[:0], choice.Token)
			case choice.Freq == maxFreq:
				best = append(best, choice.Token)
			}
		}
		return best[rng.IntN(len(best))]
	}

	if options.temperature == 1.0 { // Standard weighted random
		randChoice := rng.IntN(totalFreq)
		for _, choice := range choices {
			randChoice -= choice.Freq
			if randChoice < 0 {
				return choice.Token
			}
		}
		return choices[len(choices)-1].Token
	}

	// Temperature-based sampling
	logProbabilities := make([]float64, len(choices))
	epsilon := math.Inf(-1)
	for i, choice := range choices {
		lp := math.Log(float64(choice.Freq)) / options.temperature
		logProbabilities[i] = lp
		if lp > epsilon {
			epsilon = lp
		}
	}
	var totalWeight float64
	weights := make([]float64, len(choices))
	for i, lp := range logProbabilities {
		w := math.Exp(lp - epsilon)
		weights[i] = w
		totalWeight += w
	}
	randChoice := rng.Float64() * totalWeight
	for i, choice := range choices {
		randChoice -= weights[i]
		if randChoice < 0 {
			return choice.Token
		}
	}
	return choices[len(choices)-1].Token
}
