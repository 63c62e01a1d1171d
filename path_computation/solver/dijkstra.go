package solver

import (
	"container/heap"

	"pce/path_computation/model"
)

// path is one A to Z route as an ordered list of link ids.
type path struct {
	Links    []string
	Distance uint64
	Latency  uint64
}

// view restricts a graph to the nodes admit accepts. A nil admit keeps all.
type view struct {
	graph *model.Graph
	admit func(*model.Node) bool
}

func fullView(g *model.Graph) view {
	return view{graph: g}
}

// restrictedView keeps only the nodes advertising wavelength.
func restrictedView(g *model.Graph, wavelength int) view {
	return view{graph: g, admit: func(n *model.Node) bool {
		return n.Wavelengths.Contains(wavelength)
	}}
}

func (v view) node(id string) (*model.Node, bool) {
	n, ok := v.graph.Nodes.Get(id)
	if !ok || (v.admit != nil && !v.admit(n)) {
		return nil, false
	}
	return n, true
}

type queueItem struct {
	id   string
	dist uint64
}

// queue orders by distance, then node id.
type queue []queueItem

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].id < q[j].id
}
func (q queue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x interface{}) { *q = append(*q, x.(queueItem)) }
func (q *queue) Pop() interface{} {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}

// shortestPath runs Dijkstra from the graph's A end to its Z end. Outgoing
// links are relaxed in id order and only a strictly shorter distance replaces
// a predecessor, so equal-cost ties always resolve the same way. Transponders
// other than the source never relay traffic.
func shortestPath(v view, weigh Weigher) (*path, bool) {
	g := v.graph
	source, target := g.AEnd, g.ZEnd
	if source == nil || target == nil {
		return nil, false
	}
	if _, ok := v.node(source.ID); !ok {
		return nil, false
	}

	dist := map[string]uint64{source.ID: 0}
	via := make(map[string]string) // node id -> link id reaching it
	done := make(map[string]bool)

	q := &queue{{id: source.ID}}
	for q.Len() > 0 {
		item := heap.Pop(q).(queueItem)
		if done[item.id] || item.dist > dist[item.id] {
			continue
		}
		done[item.id] = true
		if item.id == target.ID {
			break
		}

		node, _ := g.Nodes.Get(item.id)
		if node.Kind() == model.RoleXponder && node.ID != source.ID {
			continue
		}
		for _, linkID := range node.OutgoingLinks {
			link, ok := g.Links.Get(linkID)
			if !ok || done[link.Dest] {
				continue
			}
			if _, ok := v.node(link.Dest); !ok {
				continue
			}
			nd := item.dist + weigh(link)
			if old, seen := dist[link.Dest]; seen && nd >= old {
				continue
			}
			dist[link.Dest] = nd
			via[link.Dest] = linkID
			heap.Push(q, queueItem{id: link.Dest, dist: nd})
		}
	}

	if !done[target.ID] {
		return nil, false
	}

	p := &path{Distance: dist[target.ID]}
	for at := target.ID; at != source.ID; {
		linkID := via[at]
		link, _ := g.Links.Get(linkID)
		p.Links = append(p.Links, linkID)
		p.Latency += uint64(link.Latency)
		at = link.Source
	}
	for i, j := 0, len(p.Links)-1; i < j; i, j = i+1, j-1 {
		p.Links[i], p.Links[j] = p.Links[j], p.Links[i]
	}
	return p, true
}

// visits reports whether the path goes through every node in ids, matching
// node ids or their supporting devices.
func (p *path) visits(g *model.Graph, ids []string) bool {
	if len(ids) == 0 {
		return true
	}
	var nodes []*model.Node
	for i, linkID := range p.Links {
		link, _ := g.Links.Get(linkID)
		if i == 0 {
			n, _ := g.Nodes.Get(link.Source)
			nodes = append(nodes, n)
		}
		n, _ := g.Nodes.Get(link.Dest)
		nodes = append(nodes, n)
	}
	for _, id := range ids {
		found := false
		for _, n := range nodes {
			if n.Matches(id) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sharedWavelength returns the lowest wavelength every link source on the
// path advertises, or 0.
func (p *path) sharedWavelength(g *model.Graph) int {
	for w := 1; w <= model.MaxWavelength; w++ {
		free := true
		for _, linkID := range p.Links {
			src, ok := g.LinkSource(linkID)
			if !ok || !src.Wavelengths.Contains(w) {
				free = false
				break
			}
		}
		if free {
			return w
		}
	}
	return 0
}
