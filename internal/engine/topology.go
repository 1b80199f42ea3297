package engine

import (
	"fmt"
	"slices"
)

// Topology decides which processes a node sends to each round.
//
// Neighbors returns process ids in 1..n. The engine sorts and deduplicates
// the result and drops node itself.
type Topology interface {
	Neighbors(node, n int) []int
	String() string
}

// Complete connects every process to every other process.
type Complete struct{}

// Neighbors returns every process except node.
func (Complete) Neighbors(node, n int) []int {
	out := make([]int, 0, n-1)
	for j := 1; j <= n; j++ {
		if j != node {
			out = append(out, j)
		}
	}
	return out
}

// String returns the command-line name.
func (Complete) String() string { return "complete" }

// Ring connects each process to its predecessor and successor, wrapping
// around at the ends.
type Ring struct{}

// Neighbors returns node's predecessor and successor on the ring.
func (Ring) Neighbors(node, n int) []int {
	if n < 2 {
		return nil
	}
	prev := (node-2+n)%n + 1
	next := node%n + 1
	return []int{prev, next}
}

// String returns the command-line name.
func (Ring) String() string { return "ring" }

// Star connects Center to every other process; leaves only talk to Center.
type Star struct {
	Center int
}

// Neighbors returns every leaf for the centre and the centre for a leaf.
func (s Star) Neighbors(node, n int) []int {
	if node == s.Center {
		return Complete{}.Neighbors(node, n)
	}
	return []int{s.Center}
}

// String names the topology together with its centre.
func (s Star) String() string { return fmt.Sprintf("star(center=%d)", s.Center) }

// ParseTopology resolves a topology name as used on the command line and in
// experiment files: "complete", "ring" or "star". A star is centred on
// process 1.
func ParseTopology(name string) (Topology, error) {
	switch name {
	case "", "complete":
		return Complete{}, nil
	case "ring":
		return Ring{}, nil
	case "star":
		return Star{Center: 1}, nil
	}
	return nil, fmt.Errorf("unknown topology %q", name)
}

// links returns the sorted neighbor list of every node, index id-1.
func links(t Topology, n int) ([][]int, error) {
	out := make([][]int, n)
	for node := 1; node <= n; node++ {
		var ns []int
		for _, j := range t.Neighbors(node, n) {
			if j < 1 || j > n {
				return nil, &RuntimeError{
					Code:    ErrCodeTopology,
					Message: fmt.Sprintf("%s gave neighbor %d of node %d outside 1..%d", t, j, node, n),
				}
			}
			if j != node {
				ns = append(ns, j)
			}
		}
		slices.Sort(ns)
		out[node-1] = slices.Compact(ns)
	}
	return out, nil
}
