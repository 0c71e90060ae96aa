package resolver

// cyclePath finds the strongly connected component containing id and walks
// it back to id. References to ids outside the graph are ignored.
func cyclePath(id string, ids []string, graph map[string][]string) []string {
	for _, scc := range tarjanSCC(ids, graph) {
		for _, member := range scc {
			if member == id {
				return reconstructCyclePath(id, scc, graph)
			}
		}
	}
	return []string{id}
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in ids order so the result is deterministic.
func tarjanSCC(ids []string, graph map[string][]string) [][]string {
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
			if _, inGraph := graph[w]; !inGraph {
				continue
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

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

	for _, v := range ids {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

// reconstructCyclePath returns the shortest walk inside the SCC from start
// back to start, found breadth first in reference order.
func reconstructCyclePath(start string, scc []string, graph map[string][]string) []string {
	members := make(map[string]bool, len(scc))
	for _, m := range scc {
		members[m] = true
	}

	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, w := range graph[current] {
			if w == start {
				path := []string{start}
				for at := current; at != start; at = parent[at] {
					path = append(path, at)
				}
				path = append(path, start)
				// the inner segment was collected backwards
				for i, j := 1, len(path)-2; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			if _, seen := parent[w]; seen || !members[w] {
				continue
			}
			parent[w] = current
			queue = append(queue, w)
		}
	}
	return []string{start}
}
