package markov

import "context"

// Store persists chains keyed by their order. Implementations must either
// persist a chain completely or report an error; a failed Save never leaves a
// truncated chain behind.
type Store interface {
	// Save persists c, replacing any chain previously saved for its order.
	Save(ctx context.Context, c *Chain) error
	// Load reconstructs the chain saved for order. It returns an error
	// wrapping ErrNotFound if nothing was saved for that order, and one
	// wrapping ErrCorruptData if the stored data cannot be parsed.
	Load(ctx context.Context, order int) (*Chain, error)
}
