package vectorindex

import (
	"container/heap"
	"math"
	"sort"

	"github.com/viant/vec/search"
)

const noChild int32 = -1

// vpNode is one vantage point. Points in the inner subtree are no further
// from the vantage point than Threshold; points in the outer subtree are no
// closer.
type vpNode struct {
	Point     int32   `msgpack:"p"`
	Threshold float64 `msgpack:"t"`
	Inner     int32   `msgpack:"i"`
	Outer     int32   `msgpack:"o"`
}

type vpTree struct {
	Root  int32    `msgpack:"root"`
	Nodes []vpNode `msgpack:"nodes"`
}

func l2(buf, a, b []float32) float32 {
	for i := range a {
		buf[i] = a[i] - b[i]
	}
	return search.Float32s(buf).Magnitude()
}

func buildTree(vectors [][]float32) *vpTree {
	t := &vpTree{Nodes: make([]vpNode, 0, len(vectors))}
	points := make([]int, len(vectors))
	for i := range points {
		points[i] = i
	}

	var buf []float32
	if len(vectors) > 0 {
		buf = make([]float32, len(vectors[0]))
	}
	t.Root = t.build(vectors, points, buf)
	return t
}

func (t *vpTree) build(vectors [][]float32, points []int, buf []float32) int32 {
	if len(points) == 0 {
		return noChild
	}

	// Last point as vantage keeps the build deterministic.
	vp := points[len(points)-1]
	rest := points[:len(points)-1]

	id := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, vpNode{Point: int32(vp), Inner: noChild, Outer: noChild})
	if len(rest) == 0 {
		return id
	}

	type ranked struct {
		point int
		dist  float64
	}
	order := make([]ranked, len(rest))
	for i, p := range rest {
		order[i] = ranked{point: p, dist: float64(l2(buf, vectors[vp], vectors[p]))}
	}
	sort.Slice(order, func(a, b int) bool {
		if order[a].dist != order[b].dist {
			return order[a].dist < order[b].dist
		}
		return order[a].point < order[b].point
	})

	mid := len(order) / 2
	inner := make([]int, 0, mid+1)
	outer := make([]int, 0, len(order)-mid-1)
	for rank, r := range order {
		if rank <= mid {
			inner = append(inner, r.point)
		} else {
			outer = append(outer, r.point)
		}
	}
	// Children keep ascending point order so rebuilding is reproducible.
	sort.Ints(inner)
	sort.Ints(outer)

	t.Nodes[id].Threshold = order[mid].dist
	innerID := t.build(vectors, inner, buf)
	outerID := t.build(vectors, outer, buf)
	t.Nodes[id].Inner = innerID
	t.Nodes[id].Outer = outerID
	return id
}

// candidates is a max-heap on (distance, index): the worst kept hit is on top.
type candidates []Neighbor

func (h candidates) Len() int { return len(h) }
func (h candidates) Less(i, j int) bool {
	if h[i].Distance != h[j].Distance {
		return h[i].Distance > h[j].Distance
	}
	return h[i].Index > h[j].Index
}
func (h candidates) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidates) Push(x any) {
	*h = append(*h, x.(Neighbor))
}

func (h *candidates) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func worse(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.Index > b.Index
}

func (t *vpTree) search(vectors [][]float32, query []float32, k int) []Neighbor {
	if t.Root == noChild || k <= 0 {
		return []Neighbor{}
	}

	buf := make([]float32, len(query))
	h := make(candidates, 0, k)
	tau := math.Inf(1)

	var visit func(id int32)
	visit = func(id int32) {
		if id == noChild {
			return
		}
		n := t.Nodes[id]
		d32 := l2(buf, query, vectors[n.Point])
		cand := Neighbor{Index: int(n.Point), Distance: d32}

		if len(h) < k {
			heap.Push(&h, cand)
		} else if worse(h[0], cand) {
			h[0] = cand
			heap.Fix(&h, 0)
		}
		if len(h) == k {
			tau = float64(h[0].Distance)
		}

		d := float64(d32)
		// Float32 distances are not exactly metric; the slack keeps pruning
		// conservative so ties and near-ties are still examined.
		slack := 1e-4 * (1 + d + n.Threshold)
		if d <= n.Threshold {
			visit(n.Inner)
			if n.Threshold-d <= tau+slack {
				visit(n.Outer)
			}
		} else {
			visit(n.Outer)
			if d-n.Threshold <= tau+slack {
				visit(n.Inner)
			}
		}
	}
	visit(t.Root)

	out := make([]Neighbor, len(h))
	copy(out, h)
	sort.Slice(out, func(a, b int) bool { return worse(out[b], out[a]) })
	return out
}

// validate checks that the tree references every point in [0, n) exactly once.
func (t *vpTree) validate(n int) bool {
	if len(t.Nodes) != n {
		return false
	}
	if n == 0 {
		return t.Root == noChild
	}
	if t.Root < 0 || int(t.Root) >= n {
		return false
	}

	seen := make([]bool, n)
	for _, node := range t.Nodes {
		p := int(node.Point)
		if p < 0 || p >= n || seen[p] {
			return false
		}
		seen[p] = true
		for _, child := range []int32{node.Inner, node.Outer} {
			if child != noChild && (child < 0 || int(child) >= n) {
				return false
			}
		}
	}
	return true
}
