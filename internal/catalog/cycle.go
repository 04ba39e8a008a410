package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports a cycle in the static automation-rule graph. A cycle is
// a configuration error: the runtime relies on load-time rejection (plus
// idempotent no-op starts) to guarantee every cascade terminates.
type CycleError struct {
	// Path is one traversal of the cycle, e.g. [12, 14, 12].
	Path []int
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, n := range e.Path {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("automation rule cycle: %s", strings.Join(parts, " -> "))
}

// checkCycles performs static cycle analysis over the automation rules.
//
// The graph has one node per step and an edge from a rule's source to each
// step it could start; branch rules contribute both arms, since either may
// fire. Strongly connected components are found with Tarjan's algorithm; any
// SCC larger than one node, or a self-loop, is rejected.
func checkCycles(rules []AutomationRule) error {
	if len(rules) == 0 {
		return nil
	}

	graph := make(map[int][]int)
	for _, rule := range rules {
		if graph[rule.From] == nil {
			graph[rule.From] = []int{}
		}
		graph[rule.From] = append(graph[rule.From], rule.Targets()...)
	}

	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 {
			return &CycleError{Path: reconstructCyclePath(scc, graph)}
		}
		if len(scc) == 1 && hasSelfLoop(scc[0], graph) {
			return &CycleError{Path: []int{scc[0], scc[0]}}
		}
	}
	return nil
}

func hasSelfLoop(node int, graph map[int][]int) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Single-node SCCs without
// self-loops are not cycles. Nodes are visited in ascending order so the
// reported cycle is deterministic.
func tarjanSCC(graph map[int][]int) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make(map[int]int)
		lowlink = make(map[int]int)
		onStack = make(map[int]bool)
		sccs    [][]int
	)

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]int, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Ints(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath walks edges within an SCC until it returns to the
// starting node, yielding a readable cycle like [12, 14, 12].
func reconstructCyclePath(scc []int, graph map[int][]int) []int {
	if len(scc) == 0 {
		return nil
	}

	inSCC := make(map[int]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	start := scc[0]
	current := start
	path := []int{current}
	visited := make(map[int]bool)

	for {
		visited[current] = true

		next := 0
		found := false
		for _, neighbor := range graph[current] {
			if inSCC[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				found = true
				break
			}
		}
		if !found {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
