package audiochain

import (
	"container/heap"
	"sort"
	"strings"

	"pipelined.dev/audiochain/fault"
)

// sortNodes sorts nodes in creation order.
func sortNodes(nodes []*node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].index < nodes[j].index
	})
}

// ready is a min-heap of nodes by creation index.
type ready []*node

func (r ready) Len() int           { return len(r) }
func (r ready) Less(i, j int) bool { return r[i].index < r[j].index }
func (r ready) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r *ready) Push(x any)        { *r = append(*r, x.(*node)) }
func (r *ready) Pop() any {
	old := *r
	n := old[len(old)-1]
	*r = old[:len(old)-1]
	return n
}

// executionOrder sorts nodes topologically: a writer of chunk precedes
// all its readers. Nodes without dependency relation keep creation order.
// Loop in the graph returns Inconsistent error.
func executionOrder(nodes []*node) ([]*node, error) {
	indegree := make(map[*node]int, len(nodes))
	downstream := make(map[*node][]*node, len(nodes))
	for _, n := range nodes {
		indegree[n] += 0
		upstream := map[*node]struct{}{}
		for _, c := range n.in {
			if c == nil || c.writer == nil {
				continue
			}
			if _, ok := upstream[c.writer]; ok {
				continue
			}
			upstream[c.writer] = struct{}{}
			downstream[c.writer] = append(downstream[c.writer], n)
			indegree[n]++
		}
	}

	r := make(ready, 0, len(nodes))
	for _, n := range nodes {
		if indegree[n] == 0 {
			r = append(r, n)
		}
	}
	heap.Init(&r)
	order := make([]*node, 0, len(nodes))
	for r.Len() > 0 {
		n := heap.Pop(&r).(*node)
		order = append(order, n)
		for _, d := range downstream[n] {
			indegree[d]--
			if indegree[d] == 0 {
				heap.Push(&r, d)
			}
		}
	}

	if len(order) != len(nodes) {
		var loop []string
		for _, n := range nodes {
			if indegree[n] > 0 {
				loop = append(loop, n.name)
			}
		}
		return nil, fault.New(fault.Inconsistent, "execution order", strings.Join(loop, ","), "graph has a loop")
	}
	return order, nil
}
