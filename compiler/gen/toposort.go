package gen

import (
	"fmt"
	"slices"
	"sort"
)

// cycleError reports the nodes left unscheduled by a topological sort.
type cycleError struct {
	nodes []int
}

func (e *cycleError) Error() string {
	return fmt.Sprintf("cycle detected among %d nodes", len(e.nodes))
}

// topoSort returns node indices in execution order.
//
// Nodes are by index in [0, n). depsFn(i) yields indices that must be executed
// before i; duplicates are ignored.
//
// The result is deterministic: when multiple nodes are available, the
// smallest index is picked. If a cycle exists, a *cycleError listing the
// nodes on or behind the cycle is returned.
func topoSort(n int, depsFn func(i int) []int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}

	indeg := make([]int, n)
	out := make([][]int, n)

	for i := range n {
		deps := slices.Clone(depsFn(i))
		sort.Ints(deps)
		deps = slices.Compact(deps)
		for _, d := range deps {
			if d < 0 || d >= n {
				return nil, fmt.Errorf("dependency index out of range: %d depends on %d", i, d)
			}
			indeg[i]++
			out[d] = append(out[d], i)
		}
	}

	for i := range out {
		sort.Ints(out[i])
	}

	var ready []int
	for i := range n {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]int, 0, n)
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]

		order = append(order, i)
		for _, j := range out[i] {
			indeg[j]--
			if indeg[j] == 0 {
				// Insert while keeping ready sorted.
				k := sort.SearchInts(ready, j)
				ready = append(ready, 0)
				copy(ready[k+1:], ready[k:])
				ready[k] = j
			}
		}
	}

	if len(order) != n {
		var rest []int
		for i := range n {
			if indeg[i] > 0 {
				rest = append(rest, i)
			}
		}
		return nil, &cycleError{nodes: rest}
	}
	return order, nil
}
