package markov

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Config holds the only configuration surface of a Model: the chain order and
// where its chains are stored.
type Config struct {
	Order     int    `json:"order"`
	Directory string `json:"directory"`
	Extension string `json:"extension"`
}

// DefaultConfig returns an order-2 configuration storing chains as
// "markov/<order>.markov".
func DefaultConfig() Config {
	return Config{
		Order:     2,
		Directory: "markov/",
		Extension: ".markov",
	}
}

// Model is the main entry point for interacting with the library. It owns a
// single Chain and binds it to a tokenizer and a store.
type Model struct {
	config    Config
	chain     *Chain
	tokenizer Tokenizer
	store     Store
	logger    *slog.Logger
}

// ModelOption is a function that configures a Model.
type ModelOption func(*Model)

// WithTokenizer sets the tokenizer used for learning and seeding.
// Default: NewDefaultTokenizer()
func WithTokenizer(t Tokenizer) ModelOption {
	return func(m *Model) { m.tokenizer = t }
}

// WithStore sets where chains are saved and loaded.
// Default: a FileStore on the config's directory and extension.
func WithStore(s Store) ModelOption {
	return func(m *Model) { m.store = s }
}

// WithLogger sets the model's logger. By default, all logs are discarded.
func WithLogger(logger *slog.Logger) ModelOption {
	return func(m *Model) { m.SetLogger(logger) }
}

// New creates a Model holding an empty chain without touching its store.
func New(cfg Config, opts ...ModelOption) (*Model, error) {
	chain, err := NewChain(cfg.Order)
	if err != nil {
		return nil, err
	}

	m := &Model{
		config: cfg,
		chain:  chain,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tokenizer == nil {
		m.tokenizer = NewDefaultTokenizer()
	}
	if m.store == nil {
		m.store = NewFileStore(cfg.Directory, cfg.Extension)
	}
	return m, nil
}

// Open creates a Model and loads its chain from the store. A chain that was
// never saved is not an error: the model starts empty.
func Open(ctx context.Context, cfg Config, opts ...ModelOption) (*Model, error) {
	m, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	chain, err := m.store.Load(ctx, cfg.Order)
	switch {
	case errors.Is(err, ErrNotFound):
		m.logger.InfoContext(ctx, "No saved chain, starting empty",
			slog.Int("order", cfg.Order),
		)
		return m, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load chain: %w", err)
	}

	m.chain = chain
	m.logger.InfoContext(ctx, "Chain loaded",
		slog.Int("order", cfg.Order),
		slog.Int("contexts", chain.Len()),
	)
	return m, nil
}

// SetLogger sets the logger for the Model. Providing a `log/slog.Logger` will
// enable logging for loading, training, generation, and other operations.
func (m *Model) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Config returns the configuration the model was created with.
func (m *Model) Config() Config {
	return m.config
}

// Chain returns the model's chain.
func (m *Model) Chain() *Chain {
	return m.chain
}

// Tokenizer returns the model's tokenizer.
func (m *Model) Tokenizer() Tokenizer {
	return m.tokenizer
}

// Learn tokenizes text and learns it as one corpus. It returns the number of
// tokens learned.
func (m *Model) Learn(text string) int {
	tokens := m.tokenizer.Tokenize(text)
	m.chain.Learn(tokens)
	return len(tokens)
}

// Train streams r through the tokenizer and learns it as one corpus.
func (m *Model) Train(ctx context.Context, r io.Reader) error {
	tokens, err := m.chain.Train(m.tokenizer.NewStream(r))
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "Training completed",
		slog.Int("order", m.config.Order),
		slog.Int("tokens_processed", tokens),
	)
	return nil
}

// GenerateTokens tokenizes seed and continues it with Generate. An empty seed
// on a chain of order 2 or more starts from a random observed context.
func (m *Model) GenerateTokens(ctx context.Context, seed string, maxLength int, rng RandSource, opts ...GenerateOption) ([]string, error) {
	seedTokens := m.tokenizer.Tokenize(seed)
	if len(seedTokens) == 0 && rng != nil {
		if start, ok := m.chain.RandomContext(rng); ok {
			seedTokens = start
		}
	}

	res, err := GenerateResult(m.chain, seedTokens, maxLength, rng, opts...)
	if err != nil {
		return nil, err
	}
	m.logger.DebugContext(ctx, "Generation terminated",
		slog.String("reason", res.Reason.String()),
		slog.Int("seed_length", len(seedTokens)),
		slog.Int("generated_length", len(res.Tokens)),
	)
	return res.Tokens, nil
}

// Generate is GenerateTokens, rendering the tokens back into text.
func (m *Model) Generate(ctx context.Context, seed string, maxLength int, rng RandSource, opts ...GenerateOption) (string, error) {
	tokens, err := m.GenerateTokens(ctx, seed, maxLength, rng, opts...)
	if err != nil {
		return "", err
	}
	return Join(m.tokenizer, tokens), nil
}

// Save persists the chain to the model's store.
func (m *Model) Save(ctx context.Context) error {
	if err := m.store.Save(ctx, m.chain); err != nil {
		return err
	}
	stats := m.chain.Stats()
	m.logger.InfoContext(ctx, "Chain saved",
		slog.Int("order", stats.Order),
		slog.Int("contexts", stats.Contexts),
		slog.Int("chains", stats.TotalChains),
	)
	return nil
}

// Prune removes rare links from the chain. See Chain.Prune.
func (m *Model) Prune(ctx context.Context, minFreq int) int {
	removed := m.chain.Prune(minFreq)
	m.logger.InfoContext(ctx, "Model pruned",
		slog.Int("order", m.config.Order),
		slog.Int("min_frequency", minFreq),
		slog.Int("chains_removed", removed),
	)
	return removed
}

// Stats returns a snapshot of the chain's statistics.
func (m *Model) Stats() ChainStats {
	return m.chain.Stats()
}

// Export writes the chain as JSON to w. See Export.
func (m *Model) Export(w io.Writer) error {
	return Export(w, m.chain)
}

// Import reads a chain exported as JSON and merges it into the model's
// chain, adding frequencies. The imported chain must share the model's order.
func (m *Model) Import(ctx context.Context, r io.Reader) error {
	imported, err := Import(r)
	if err != nil {
		return err
	}
	if err = m.chain.Merge(imported); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "Model imported successfully",
		slog.Int("order", m.config.Order),
		slog.Int("contexts_merged", imported.Len()),
	)
	return nil
}
