package task

import "fmt"

// Edge represents a dependency: To depends on From.
type Edge struct {
	From string
	To   string
}

// Graph declares tasks and the dependency edges between them.
type Graph struct {
	Nodes map[string]Task
	Edges []Edge

	inputs map[string][]string // to -> [from...]
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:  make(map[string]Task),
		inputs: make(map[string][]string),
	}
}

// AddNode registers a task, rejecting duplicate ids.
func (g *Graph) AddNode(t Task) error {
	if _, ok := g.Nodes[t.ID()]; ok {
		return fmt.Errorf("task: duplicate id %q in graph", t.ID())
	}
	g.Nodes[t.ID()] = t
	return nil
}

// AddEdge declares that to depends on from.
func (g *Graph) AddEdge(from, to string) {
	g.Edges = append(g.Edges, Edge{From: from, To: to})
	g.inputs[to] = append(g.inputs[to], from)
}

// Inputs returns the ids a task depends on.
func (g *Graph) Inputs(id string) []string {
	return g.inputs[id]
}

// Levels uses Kahn's algorithm to group tasks by dependency level. Tasks
// within the same level can execute in parallel. Returns an error if an
// edge references an unknown task or a cycle is detected.
func (g *Graph) Levels() ([][]string, error) {
	inDegree := make(map[string]int)
	dependents := make(map[string][]string) // from -> [to...]

	for id := range g.Nodes {
		inDegree[id] = 0
	}

	for _, e := range g.Edges {
		if _, ok := g.Nodes[e.From]; !ok {
			return nil, fmt.Errorf("task: edge references unknown task %q", e.From)
		}
		if _, ok := g.Nodes[e.To]; !ok {
			return nil, fmt.Errorf("task: edge references unknown task %q", e.To)
		}
		inDegree[e.To]++
		dependents[e.From] = append(dependents[e.From], e.To)
	}

	// Collect tasks with no incoming edges (level 0)
	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	var levels [][]string
	visited := 0

	for len(queue) > 0 {
		levels = append(levels, queue)
		visited += len(queue)

		var next []string
		for _, id := range queue {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if visited != len(g.Nodes) {
		return nil, fmt.Errorf("task: cycle detected, processed %d of %d tasks", visited, len(g.Nodes))
	}

	return levels, nil
}
