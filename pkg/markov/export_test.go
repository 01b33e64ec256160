package markov

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestExportImportRoundTrip(t *testing.T) {
	c := newTestChain(t, 3, NewDefaultTokenizer().Tokenize(fishCorpus)...)

	var buf bytes.Buffer
	if err := Export(&buf, c); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	imported, err := Import(&buf)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if !imported.Equal(c) {
		t.Errorf("imported %+v, want %+v", imported.Records(), c.Records())
	}
}

func TestExportImportInvalidUTF8(t *testing.T) {
	c := newTestChain(t, 2, NewDefaultTokenizer().Tokenize("caf\xe9 x caf\xe8 y")...)

	var buf bytes.Buffer
	if err := Export(&buf, c); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	imported, err := Import(&buf)
	if err != nil {
		t.Fatalf("Import() failed: %v", err)
	}
	if !imported.Equal(c) {
		t.Errorf("imported %q, want %q", imported.Records(), c.Records())
	}
}

func TestImportCorrupt(t *testing.T) {
	testCases := map[string]string{
		"Not json":         "this is not json",
		"Invalid order":    `{"order":0,"chains":[]}`,
		"Wrong context":    `{"order":2,"chains":[{"context":["a","b"],"next_token":"c","frequency":1}]}`,
		"Negative count":   `{"order":2,"chains":[{"context":["a"],"next_token":"b","frequency":-2}]}`,
		"Truncated object": `{"order":2,"chains":[`,
		"Bad token":        `{"order":2,"chains":[{"context":[7],"next_token":"b","frequency":1}]}`,
	}
	for name, input := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := Import(strings.NewReader(input)); !errors.Is(err, ErrCorruptData) {
				t.Errorf("Import() error = %v, want ErrCorruptData", err)
			}
		})
	}
}

func TestModelImportMerges(t *testing.T) {
	ctx, m := setupTestModelWithTraining(t)
	before := m.Chain().Transitions([]string{"fish"})

	var buf bytes.Buffer
	if err := m.Export(&buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if err := m.Import(ctx, &buf); err != nil {
		t.Fatalf("Import() failed: %v", err)
	}

	after := m.Chain().Transitions([]string{"fish"})
	for token, count := range before {
		if after[token] != 2*count {
			t.Errorf("count for fish->%s = %d, want %d", token, after[token], 2*count)
		}
	}

	_, other := setupTestModel(t, 3)
	buf.Reset()
	_ = other.Export(&buf)
	if err := m.Import(ctx, &buf); !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("importing an order 3 chain error = %v, want ErrInvalidConfiguration", err)
	}
}
