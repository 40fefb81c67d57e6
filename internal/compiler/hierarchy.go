package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/swizzle/internal/ir"
)

// InheritanceCycle is a superclass chain that loops back on itself.
type InheritanceCycle struct {
	Path    []string `json:"path"`    // ["A", "B", "A"]
	Message string   `json:"message"` // Human-readable description
}

// InheritanceCycles detects superclass cycles.
//
// The algorithm:
//  1. Build a class → superclass graph (edges to unknown classes are dropped)
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle
//
// Output order is deterministic: nodes are visited in sorted order.
func InheritanceCycles(classes []ir.ClassSpec) []InheritanceCycle {
	graph := buildSuperGraph(classes)

	var cycles []InheritanceCycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	return cycles
}

// HierarchyOrder returns classes ordered so that every superclass precedes
// its subclasses. Among ready classes, declaration order is kept. Unknown
// superclasses and cycles are errors.
func HierarchyOrder(classes []ir.ClassSpec) ([]ir.ClassSpec, error) {
	known := make(map[string]bool, len(classes))
	for _, c := range classes {
		known[c.Name] = true
	}
	for _, c := range classes {
		if c.Super != "" && !known[c.Super] {
			return nil, fmt.Errorf("class %q: unknown superclass %q", c.Name, c.Super)
		}
	}
	if cycles := InheritanceCycles(classes); len(cycles) > 0 {
		return nil, fmt.Errorf("%s", cycles[0].Message)
	}

	ordered := make([]ir.ClassSpec, 0, len(classes))
	placed := make(map[string]bool, len(classes))
	for len(ordered) < len(classes) {
		for _, c := range classes {
			if placed[c.Name] {
				continue
			}
			if c.Super == "" || placed[c.Super] {
				ordered = append(ordered, c)
				placed[c.Name] = true
			}
		}
	}
	return ordered, nil
}

// dependencyGraph maps class → superclass (at most one edge per node).
type dependencyGraph map[string][]string

func buildSuperGraph(classes []ir.ClassSpec) dependencyGraph {
	graph := make(dependencyGraph)
	known := make(map[string]bool)
	for _, c := range classes {
		known[c.Name] = true
	}
	for _, c := range classes {
		if graph[c.Name] == nil {
			graph[c.Name] = []string{}
		}
		if c.Super != "" && known[c.Super] {
			graph[c.Name] = append(graph[c.Name], c.Super)
		}
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of class names.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
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

		// Root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
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

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// sccToCycle converts an SCC to an InheritanceCycle, walking superclass
// edges from the alphabetically first member.
func sccToCycle(scc []string, graph dependencyGraph) InheritanceCycle {
	start := slices.Min(scc)
	path := []string{start}
	for current := start; ; {
		next := graph[current][0]
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return InheritanceCycle{
		Path:    path,
		Message: fmt.Sprintf("superclass cycle: %s", strings.Join(path, " → ")),
	}
}
