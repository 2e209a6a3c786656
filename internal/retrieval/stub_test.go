package retrieval

import (
	"context"
	"errors"

	"github.com/fernwehlabs/mnema/internal/vault"
)

// scriptedModel returns canned responses in call order and records the
// prompts it saw.
type scriptedModel struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (m *scriptedModel) Invoke(_ context.Context, prompt string) (string, error) {
	i := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", errors.New("no scripted response left")
}

// countingStore tracks reads per path on top of any Store.
type countingStore struct {
	vault.Store
	reads map[string]int
}

func newCountingStore(inner vault.Store) *countingStore {
	return &countingStore{Store: inner, reads: make(map[string]int)}
}

func (c *countingStore) Read(path string) (string, error) {
	c.reads[path]++
	return c.Store.Read(path)
}

func (c *countingStore) readsUnder(prefix string) int {
	total := 0
	for path, n := range c.reads {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			total += n
		}
	}
	return total
}

type fixedTopics []string

func (f fixedTopics) Topics() []string { return f }
