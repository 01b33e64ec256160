package markov

import (
	"errors"
	"fmt"
	"io"
)

// Train reads every token of stream as a single corpus and learns it the same
// way Learn does, without holding the whole corpus in memory. Counts are
// collected in a scratch table and merged only once the stream is fully
// consumed, so a read error leaves the chain untouched. It returns the number
// of tokens read.
func (c *Chain) Train(stream StreamTokenizer) (int, error) {
	n := c.ContextLen()
	scratch := &Chain{order: c.order, table: make(map[string]*entry)}
	window := make([]string, 0, n)

	tokensRead := 0
	for {
		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return tokensRead, fmt.Errorf("tokenizer error: %w", err)
		}
		tokensRead++

		if len(window) < n {
			window = append(window, token)
			continue
		}
		scratch.add(window, token, 1)
		if n > 0 {
			copy(window, window[1:])
			window[n-1] = token
		}
	}

	if err := c.Merge(scratch); err != nil {
		return tokensRead, err
	}
	return tokensRead, nil
}
