package depcheck

import "sort"

// Cycles returns the strongly connected components of the edge graph that
// contain more than one node. Members of each cycle are sorted and cycles are
// ordered by their first member. Self-edges are ignored.
func Cycles(edges []Edge) [][]string {
	adj := map[string][]string{}
	var nodes []string
	addNode := func(n string) {
		if _, ok := adj[n]; !ok {
			adj[n] = nil
			nodes = append(nodes, n)
		}
	}
	for _, e := range edges {
		if e.From == "" || e.To == "" {
			continue
		}
		addNode(e.From)
		addNode(e.To)
		if e.From != e.To {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}
	sort.Strings(nodes)
	for n := range adj {
		sort.Strings(adj[n])
	}

	t := tarjan{adj: adj, index: map[string]int{}, low: map[string]int{}, onStack: map[string]bool{}}
	for _, n := range nodes {
		if _, visited := t.index[n]; !visited {
			t.connect(n)
		}
	}
	sort.Slice(t.components, func(i, j int) bool { return t.components[i][0] < t.components[j][0] })
	return t.components
}

type tarjan struct {
	adj        map[string][]string
	index      map[string]int
	low        map[string]int
	onStack    map[string]bool
	stack      []string
	next       int
	components [][]string
}

func (t *tarjan) connect(v string) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, visited := t.index[w]; !visited {
			t.connect(w)
			if t.low[w] < t.low[v] {
				t.low[v] = t.low[w]
			}
		} else if t.onStack[w] && t.index[w] < t.low[v] {
			t.low[v] = t.index[w]
		}
	}

	if t.low[v] != t.index[v] {
		return
	}
	var component []string
	for {
		n := len(t.stack) - 1
		w := t.stack[n]
		t.stack = t.stack[:n]
		t.onStack[w] = false
		component = append(component, w)
		if w == v {
			break
		}
	}
	if len(component) > 1 {
		sort.Strings(component)
		t.components = append(t.components, component)
	}
}
