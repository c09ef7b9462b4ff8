// Package paths precomputes all-pairs shortest paths over the substrate
// network under the combined capacity/delay link weight. The table is built
// once per request and shared read-only by the builder and the objective.
package paths

import (
	"math"

	"netembed/internal/model"
)

// Pair is an ordered node pair.
type Pair struct {
	Src string
	Dst string
}

// Entry is the shortest path between a node pair together with its total
// weight and delay.
type Entry struct {
	Path   []string
	Weight float64
	Delay  float64
}

// Table maps every ordered node pair to its shortest path entry.
type Table map[Pair]Entry

// Delay returns the total delay of a node sequence. Consecutive equal nodes
// are connections between co-located instances and contribute nothing.
func Delay(links *model.Links, path []string) float64 {
	var delay float64
	for i := 0; i < len(path)-1; i++ {
		if path[i] != path[i+1] {
			delay += links.Delay[model.LinkID{Src: path[i], Dst: path[i+1]}]
		}
	}
	return delay
}

// AllPairs runs Floyd–Warshall on the link weights and returns the complete
// table. Intermediate nodes are tried in Nodes.IDs order, so the result is
// deterministic for identical inputs.
func AllPairs(nodes *model.Nodes, links *model.Links) Table {
	type partial struct {
		path   []string
		weight float64
	}
	shortest := make(map[Pair]partial, len(nodes.IDs)*len(nodes.IDs))

	for _, v1 := range nodes.IDs {
		for _, v2 := range nodes.IDs {
			p := Pair{v1, v2}
			switch {
			case v1 == v2:
				shortest[p] = partial{path: []string{v1, v2}, weight: 0}
			case links.Contains(model.LinkID{Src: v1, Dst: v2}):
				shortest[p] = partial{path: []string{v1, v2}, weight: links.Weight(model.LinkID{Src: v1, Dst: v2})}
			default:
				shortest[p] = partial{path: []string{v1, v2}, weight: math.Inf(1)}
			}
		}
	}

	for _, k := range nodes.IDs {
		for _, v1 := range nodes.IDs {
			for _, v2 := range nodes.IDs {
				direct := shortest[Pair{v1, v2}]
				head := shortest[Pair{v1, k}]
				tail := shortest[Pair{k, v2}]
				if direct.weight > head.weight+tail.weight {
					// concatenate, excluding k from the second half
					newPath := make([]string, 0, len(head.path)+len(tail.path)-1)
					newPath = append(newPath, head.path...)
					newPath = append(newPath, tail.path[1:]...)
					shortest[Pair{v1, v2}] = partial{path: newPath, weight: head.weight + tail.weight}
				}
			}
		}
	}

	table := make(Table, len(shortest))
	for p, entry := range shortest {
		table[p] = Entry{
			Path:   entry.path,
			Weight: entry.weight,
			Delay:  Delay(links, entry.path),
		}
	}
	return table
}
