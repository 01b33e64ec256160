package markov

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// SetupSchema initializes the tables used by SQLStore in the provided
// database. It is idempotent and safe to call on an already-initialized
// database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_order INTEGER PRIMARY KEY
);
`
		schemaChains = `
CREATE TABLE IF NOT EXISTS markov_chains (
    model_order INTEGER NOT NULL,
    context_text TEXT NOT NULL,
    next_token TEXT NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (model_order, context_text, next_token)
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}

	if _, err = tx.Exec(schemaChains); err != nil {
		return fmt.Errorf("could not create chains schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// SQLStore persists chains in a SQL database, one model row per order. The
// schema must have been created with SetupSchema. Contexts are stored as JSON
// arrays, with tokens that are not valid UTF-8 written as base64 objects, so
// any token text round-trips.
type SQLStore struct {
	db               *sql.DB
	stmtGetModel     *sql.Stmt
	stmtGetChains    *sql.Stmt
	stmtAddModel     *sql.Stmt
	stmtDeleteChains *sql.Stmt
	stmtInsertLink   *sql.Stmt
	logger           *slog.Logger
}

// NewSQLStore creates a store on db. It pre-compiles all necessary SQL
// statements, returning an error if any preparation fails.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	stmtGetModel, err := db.Prepare(`SELECT model_order FROM markov_models WHERE model_order = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetChains, err := db.Prepare(`SELECT context_text, next_token, frequency FROM markov_chains WHERE model_order = ?;`)
	if err != nil {
		return nil, err
	}

	stmtAddModel, err := db.Prepare(`INSERT OR IGNORE INTO markov_models (model_order) VALUES (?);`)
	if err != nil {
		return nil, err
	}

	stmtDeleteChains, err := db.Prepare(`DELETE FROM markov_chains WHERE model_order = ?;`)
	if err != nil {
		return nil, err
	}

	stmtInsertLink, err := db.Prepare(`INSERT INTO markov_chains (model_order, context_text, next_token, frequency) VALUES (?, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}

	return &SQLStore{
		db:               db,
		stmtGetModel:     stmtGetModel,
		stmtGetChains:    stmtGetChains,
		stmtAddModel:     stmtAddModel,
		stmtDeleteChains: stmtDeleteChains,
		stmtInsertLink:   stmtInsertLink,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the store. The database
// itself stays open.
func (s *SQLStore) Close() {
	_ = s.stmtGetModel.Close()
	_ = s.stmtGetChains.Close()
	_ = s.stmtAddModel.Close()
	_ = s.stmtDeleteChains.Close()
	_ = s.stmtInsertLink.Close()
}

// SetLogger sets the logger for the store. By default, all logs are discarded.
func (s *SQLStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Save replaces every link stored for c's order with the contents of c.
// The operation is performed within a single transaction.
func (s *SQLStore) Save(ctx context.Context, c *Chain) error {
	records := c.Records()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: could not begin transaction: %v", ErrIoFailure, err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.StmtContext(ctx, s.stmtAddModel).ExecContext(ctx, c.Order()); err != nil {
		return fmt.Errorf("%w: failed to insert model %d: %v", ErrIoFailure, c.Order(), err)
	}
	if _, err = tx.StmtContext(ctx, s.stmtDeleteChains).ExecContext(ctx, c.Order()); err != nil {
		return fmt.Errorf("%w: failed to clear chains for model %d: %v", ErrIoFailure, c.Order(), err)
	}

	stmtInsertLink := tx.StmtContext(ctx, s.stmtInsertLink)
	for _, r := range records {
		contextText, err := json.Marshal(toWire(r.Context))
		if err != nil {
			return fmt.Errorf("%w: could not encode context: %v", ErrIoFailure, err)
		}
		if _, err = stmtInsertLink.ExecContext(ctx, c.Order(), string(contextText), r.Token, r.Count); err != nil {
			return fmt.Errorf("%w: failed to insert chain link (%s -> %q): %v", ErrIoFailure, contextText, r.Token, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: could not commit transaction: %v", ErrIoFailure, err)
	}

	s.logger.InfoContext(ctx, "Chain saved",
		slog.Int("model_order", c.Order()),
		slog.Int("chains_saved", len(records)),
	)
	return nil
}

// Load reconstructs the chain saved for order.
func (s *SQLStore) Load(ctx context.Context, order int) (*Chain, error) {
	c, err := NewChain(order)
	if err != nil {
		return nil, err
	}

	var found int
	err = s.stmtGetModel.QueryRowContext(ctx, order).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no model of order %d", ErrNotFound, order)
		}
		return nil, fmt.Errorf("%w: could not query model %d: %v", ErrIoFailure, order, err)
	}

	rows, err := s.stmtGetChains.QueryContext(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("%w: could not query chains for model %d: %v", ErrIoFailure, order, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	for rows.Next() {
		var contextText, token string
		var freq int
		if err = rows.Scan(&contextText, &token, &freq); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		var chainContext []wireToken
		if err = json.Unmarshal([]byte(contextText), &chainContext); err != nil {
			return nil, fmt.Errorf("%w: invalid context %q: %v", ErrCorruptData, contextText, err)
		}
		if len(chainContext) != c.ContextLen() {
			return nil, fmt.Errorf("%w: context %q has %d tokens, want %d", ErrCorruptData, contextText, len(chainContext), c.ContextLen())
		}
		if freq < 0 {
			return nil, fmt.Errorf("%w: negative frequency %d for context %q", ErrCorruptData, freq, contextText)
		}
		if freq > 0 {
			c.add(fromWire(chainContext), token, freq)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIoFailure, err)
	}

	s.logger.InfoContext(ctx, "Chain loaded",
		slog.Int("model_order", order),
		slog.Int("contexts_loaded", c.Len()),
	)
	return c, nil
}
