package testutil

import (
	"fmt"
	"sync"
)

// SequentialTokens generates pass tokens "<prefix>-1", "<prefix>-2", ...
//
// Unlike reconcile.FixedGenerator it never runs out, so scenarios with any
// number of passes produce the same tokens on every run.
//
// Thread-safety: SequentialTokens is safe for concurrent use via internal mutex.
type SequentialTokens struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialTokens creates a generator. An empty prefix means "pass".
func NewSequentialTokens(prefix string) *SequentialTokens {
	if prefix == "" {
		prefix = "pass"
	}
	return &SequentialTokens{prefix: prefix}
}

// Generate returns the next token.
func (g *SequentialTokens) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequentialTokens) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
