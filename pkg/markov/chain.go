package markov

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Record is a single link in a chain: a context, a token observed after it, and
// how often that happened.
type Record struct {
	Context []string
	Token   string
	Count   int
}

// ChainStats holds aggregated statistics for a single chain.
type ChainStats struct {
	Order          int // The order of the chain.
	Contexts       int // The number of unique contexts.
	TotalChains    int // The number of unique context->next_token links.
	TotalFrequency int // The sum of all counts; the total number of trained transitions.
	VocabSize      int // The number of unique tokens seen as a continuation.
}

type entry struct {
	context []string
	next    map[string]int
	total   int
}

// Chain is an order-N transition table mapping each context of order-1 tokens
// to the counts of the tokens observed after it.
//
// A single RWMutex guards the table: mutations take the write lock, lookups
// and whole generation runs take the read lock.
type Chain struct {
	order int
	mu    sync.RWMutex
	table map[string]*entry
}

// NewChain creates an empty chain of the given order.
func NewChain(order int) (*Chain, error) {
	if order < 1 {
		return nil, fmt.Errorf("%w: order must be at least 1, got %d", ErrInvalidConfiguration, order)
	}
	return &Chain{
		order: order,
		table: make(map[string]*entry),
	}, nil
}

// Order returns the order the chain was created with.
func (c *Chain) Order() int {
	return c.order
}

// ContextLen returns the number of tokens in a context, order-1.
func (c *Chain) ContextLen() int {
	return c.order - 1
}

// Len returns the number of distinct contexts in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.table)
}

// contextKey encodes context as a map key. Each token is prefixed with its
// byte length, so two contexts share a key only if their tokens are equal
// one by one, whatever bytes the tokens hold.
func contextKey(context []string) string {
	var sb strings.Builder
	for _, token := range context {
		sb.WriteString(strconv.Itoa(len(token)))
		sb.WriteByte(':')
		sb.WriteString(token)
	}
	return sb.String()
}

// Learn slides a window of order tokens over tokens and increments the count of
// every (context, next token) pair it sees. Sequences shorter than the order
// are ignored. Learning is cumulative: learning the same tokens twice doubles
// every affected count.
func (c *Chain) Learn(tokens []string) {
	if len(tokens) < c.order {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.ContextLen()
	for i := n; i < len(tokens); i++ {
		c.add(tokens[i-n:i], tokens[i], 1)
	}
}

// add increments a link by count. Callers hold the write lock.
func (c *Chain) add(context []string, token string, count int) {
	key := contextKey(context)
	e, ok := c.table[key]
	if !ok {
		e = &entry{
			context: slices.Clone(context),
			next:    make(map[string]int),
		}
		c.table[key] = e
	}
	e.next[token] += count
	e.total += count
}

// lookup returns the entry for context, or nil. Callers hold a lock.
func (c *Chain) lookup(context []string) *entry {
	if len(context) != c.ContextLen() {
		return nil
	}
	return c.table[contextKey(context)]
}

// Transitions returns a copy of the counts of every token observed after
// context. An unseen context, or one of the wrong length, yields an empty map.
func (c *Chain) Transitions(context []string) map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int)
	if e := c.lookup(context); e != nil {
		for token, count := range e.next {
			out[token] = count
		}
	}
	return out
}

// TotalCount returns the sum of all counts recorded for context.
func (c *Chain) TotalCount(context []string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e := c.lookup(context); e != nil {
		return e.total
	}
	return 0
}

// Probability returns count(context, token) / TotalCount(context), or 0 when
// the context is unseen.
func (c *Chain) Probability(context []string, token string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.lookup(context)
	if e == nil || e.total == 0 {
		return 0
	}
	return float64(e.next[token]) / float64(e.total)
}

// RandomContext draws one observed context uniformly at random. It reports
// false when the chain is empty.
func (c *Chain) RandomContext(rng RandSource) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.table) == 0 {
		return nil, false
	}

	// Sorted keys keep the draw reproducible for a fixed rng.
	keys := make([]string, 0, len(c.table))
	for key := range c.table {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return slices.Clone(c.table[keys[rng.IntN(len(keys))]].context), true
}

// Prune removes every link with a count less than or equal to minFreq and
// drops contexts left without continuations. It returns the number of links
// removed.
func (c *Chain) Prune(minFreq int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.table {
		for token, count := range e.next {
			if count <= minFreq {
				delete(e.next, token)
				e.total -= count
				removed++
			}
		}
		if len(e.next) == 0 {
			delete(c.table, key)
		}
	}
	return removed
}

// Merge adds every count of other into c. Both chains must share an order.
func (c *Chain) Merge(other *Chain) error {
	if other == nil {
		return fmt.Errorf("%w: cannot merge a nil chain", ErrInvalidConfiguration)
	}
	if other.order != c.order {
		return fmt.Errorf("%w: cannot merge order %d chain into order %d chain", ErrInvalidConfiguration, other.order, c.order)
	}
	records := other.Records()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		c.add(r.Context, r.Token, r.Count)
	}
	return nil
}

// Records returns every link in the chain, sorted by context then token.
func (c *Chain) Records() []Record {
	c.mu.RLock()
	records := make([]Record, 0, len(c.table))
	for _, e := range c.table {
		for token, count := range e.next {
			records = append(records, Record{
				Context: slices.Clone(e.context),
				Token:   token,
				Count:   count,
			})
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(records, func(a, b Record) int {
		if n := slices.Compare(a.Context, b.Context); n != 0 {
			return n
		}
		return strings.Compare(a.Token, b.Token)
	})
	return records
}

// Equal reports whether two chains have the same order and identical tables.
func (c *Chain) Equal(other *Chain) bool {
	if other == nil || c.order != other.order {
		return false
	}
	a, b := c.Records(), other.Records()
	return slices.EqualFunc(a, b, func(x, y Record) bool {
		return x.Token == y.Token && x.Count == y.Count && slices.Equal(x.Context, y.Context)
	})
}

// Stats returns a snapshot of statistics for the chain.
func (c *Chain) Stats() ChainStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := ChainStats{Order: c.order, Contexts: len(c.table)}
	vocab := make(map[string]struct{})
	for _, e := range c.table {
		stats.TotalChains += len(e.next)
		stats.TotalFrequency += e.total
		for token := range e.next {
			vocab[token] = struct{}{}
		}
	}
	stats.VocabSize = len(vocab)
	return stats
}
