package markov

import "errors"

var (
	// ErrInvalidConfiguration is returned for an order below 1, a negative
	// maximum length, or a missing source of randomness.
	ErrInvalidConfiguration = errors.New("markov: invalid configuration")
	// ErrInsufficientSeed is returned when a generation seed holds fewer than
	// order-1 tokens.
	ErrInsufficientSeed = errors.New("markov: seed shorter than context length")
	// ErrNotFound is returned when no persisted chain exists for an order.
	// Callers usually recover by starting with an empty chain.
	ErrNotFound = errors.New("markov: chain not found")
	// ErrCorruptData is returned when a persisted record cannot be parsed.
	ErrCorruptData = errors.New("markov: corrupt chain data")
	// ErrIoFailure is returned when a chain cannot be fully written.
	ErrIoFailure = errors.New("markov: i/o failure")
)
