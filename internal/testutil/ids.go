package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs hands out predictable sweep ids for tests: "<prefix>-0001",
// "<prefix>-0002", and so on. It implements store.IDGenerator.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "sweep".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "sweep"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}

// Reset starts the sequence over, so a scenario can be replayed with the
// same ids.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
