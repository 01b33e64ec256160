package markov

import (
	"context"
	"database/sql"
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const fishCorpus = "one fish two fish. red fish blue fish."

// newTestChain creates a chain of the given order and learns tokens into it.
func newTestChain(t testing.TB, order int, tokens ...string) *Chain {
	t.Helper()
	c, err := NewChain(order)
	if err != nil {
		t.Fatalf("NewChain(%d) error = %v", order, err)
	}
	c.Learn(tokens)
	return c
}

// setupTestModel creates a Model of the given order backed by a FileStore in
// a temporary directory.
func setupTestModel(t *testing.T, order int) (context.Context, *Model) {
	t.Helper()
	cfg := Config{Order: order, Directory: t.TempDir(), Extension: ".markov"}
	m, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return context.Background(), m
}

// setupTestModelWithTraining is a convenience helper that also trains the model.
func setupTestModelWithTraining(t *testing.T) (context.Context, *Model) {
	t.Helper()
	ctx, m := setupTestModel(t, 2)
	if err := m.Train(ctx, strings.NewReader(fishCorpus)); err != nil {
		t.Fatalf("setup: Train() failed: %v", err)
	}
	return ctx, m
}

// setupTestDB creates a new SQLite database with the chain schema and a
// SQLStore on it. It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *SQLStore) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewSQLStore(db)
	if err != nil {
		t.Fatalf("NewSQLStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// tally counts every (context, next) pair of tokens by hand, keyed by the
// context joined with spaces.
func tally(tokens []string, order int) map[string]map[string]int {
	n := order - 1
	out := make(map[string]map[string]int)
	for i := n; i < len(tokens); i++ {
		key := strings.Join(tokens[i-n:i], " ")
		if out[key] == nil {
			out[key] = make(map[string]int)
		}
		out[key][tokens[i]]++
	}
	return out
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go source files to create a corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/server.go"),
			filepath.Join(goRoot, "src/go/parser/parser.go"),
			filepath.Join(goRoot, "src/encoding/json/encode.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "this is a fallback corpus for benchmarking. it is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
