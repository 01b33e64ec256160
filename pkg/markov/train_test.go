package markov

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// failingStream yields its tokens and then a read error.
type failingStream struct {
	tokens []string
}

var errStreamBroken = errors.New("stream broken")

func (s *failingStream) Next() (string, error) {
	if len(s.tokens) == 0 {
		return "", errStreamBroken
	}
	token := s.tokens[0]
	s.tokens = s.tokens[1:]
	return token, nil
}

func TestTrainMatchesLearn(t *testing.T) {
	tokenizer := NewDefaultTokenizer()
	corpus := "a b c.\nA b c!\n\nsome more words, and a b c."

	for order := 1; order <= 4; order++ {
		trained, _ := NewChain(order)
		n, err := trained.Train(tokenizer.NewStream(strings.NewReader(corpus)))
		if err != nil {
			t.Fatalf("order %d: Train() failed: %v", order, err)
		}

		tokens := tokenizer.Tokenize(corpus)
		if n != len(tokens) {
			t.Errorf("order %d: Train() read %d tokens, want %d", order, n, len(tokens))
		}

		learned := newTestChain(t, order, tokens...)
		if !trained.Equal(learned) {
			t.Errorf("order %d: streamed training differs from Learn", order)
		}
	}
}

func TestTrainLongLine(t *testing.T) {
	tokenizer := NewDefaultTokenizer()
	corpus := "a " + strings.Repeat("w", 2<<20) + " b\nc d"

	trained, _ := NewChain(2)
	if _, err := trained.Train(tokenizer.NewStream(strings.NewReader(corpus))); err != nil {
		t.Fatalf("Train() failed: %v", err)
	}
	if !trained.Equal(newTestChain(t, 2, tokenizer.Tokenize(corpus)...)) {
		t.Error("streamed training of a 2 MiB line differs from Learn")
	}
}

func TestTrainEmptyStream(t *testing.T) {
	c, _ := NewChain(2)
	n, err := c.Train(NewDefaultTokenizer().NewStream(strings.NewReader("")))
	if err != nil {
		t.Fatalf("Train() failed: %v", err)
	}
	if n != 0 || c.Len() != 0 {
		t.Errorf("expected nothing learned, got %d tokens and %d contexts", n, c.Len())
	}
}

func TestTrainErrorLeavesChainUntouched(t *testing.T) {
	c := newTestChain(t, 2, "x", "y")
	before := c.Records()

	_, err := c.Train(&failingStream{tokens: []string{"a", "b", "c"}})
	if !errors.Is(err, errStreamBroken) {
		t.Fatalf("Train() error = %v, want errStreamBroken", err)
	}
	if errors.Is(err, io.EOF) {
		t.Fatal("unexpected io.EOF")
	}

	after := newTestChain(t, 2)
	after.Learn([]string{"x", "y"})
	if !c.Equal(after) || len(c.Records()) != len(before) {
		t.Error("failed training modified the chain")
	}
}

func BenchmarkTrain(b *testing.B) {
	corpus := createBenchmarkCorpus()
	tokenizer := NewDefaultTokenizer()
	b.ReportAllocs()
	b.SetBytes(int64(len(corpus)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c, _ := NewChain(3)
		if _, err := c.Train(tokenizer.NewStream(strings.NewReader(corpus))); err != nil {
			b.Fatalf("Train() failed: %v", err)
		}
	}
}
