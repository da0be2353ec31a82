package matcher

import (
	"math"
	"math/rand"

	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/emirpasic/gods/utils"
	"golang.org/x/exp/slices"

	"github.com/high-horse/fingerprint-server/internal/features"
)

const (
	// Split dimensions are drawn at random from the randDims dimensions with
	// the highest variance, estimated over at most sampleMean points.
	randDims   = 5
	sampleMean = 100
)

type kdNode struct {
	dim         int
	split       float32
	left, right *kdNode
	points      []int // set on leaves only
}

func (n *kdNode) leaf() bool { return n.left == nil }

// forest is a set of randomized kd-trees over one descriptor set, searched
// together best-bin-first.
type forest struct {
	data   []features.Descriptor
	roots  []*kdNode
	checks int
}

func newForest(data []features.Descriptor, trees, checks int, rng *rand.Rand) *forest {
	f := &forest{data: data, checks: checks}
	if len(data) == 0 {
		return f
	}
	for t := 0; t < trees; t++ {
		idx := rng.Perm(len(data))
		f.roots = append(f.roots, f.build(idx, rng))
	}
	return f
}

func (f *forest) build(idx []int, rng *rand.Rand) *kdNode {
	if len(idx) <= 1 {
		return &kdNode{points: idx}
	}
	dim, split := f.chooseSplit(idx, rng)

	// Partition in place: values below split go left.
	lo, hi := 0, len(idx)-1
	for lo <= hi {
		if f.data[idx[lo]][dim] < split {
			lo++
		} else {
			idx[lo], idx[hi] = idx[hi], idx[lo]
			hi--
		}
	}
	if lo == 0 || lo == len(idx) {
		// Every point falls on one side, all remaining values agree.
		return &kdNode{points: idx}
	}
	return &kdNode{
		dim:   dim,
		split: split,
		left:  f.build(idx[:lo], rng),
		right: f.build(idx[lo:], rng),
	}
}

func (f *forest) chooseSplit(idx []int, rng *rand.Rand) (int, float32) {
	dims := len(f.data[idx[0]])
	n := len(idx)
	if n > sampleMean {
		n = sampleMean
	}

	mean := make([]float64, dims)
	for _, i := range idx[:n] {
		for d, v := range f.data[i] {
			mean[d] += float64(v)
		}
	}
	for d := range mean {
		mean[d] /= float64(n)
	}
	variance := make([]float64, dims)
	for _, i := range idx[:n] {
		for d, v := range f.data[i] {
			diff := float64(v) - mean[d]
			variance[d] += diff * diff
		}
	}

	order := make([]int, dims)
	for d := range order {
		order[d] = d
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case variance[a] > variance[b]:
			return -1
		case variance[a] < variance[b]:
			return 1
		}
		return 0
	})
	top := randDims
	if top > dims {
		top = dims
	}
	dim := order[rng.Intn(top)]
	return dim, float32(mean[dim])
}

type branch struct {
	node *kdNode
	dist float64
}

func byDist(a, b interface{}) int {
	return utils.Float64Comparator(a.(branch).dist, b.(branch).dist)
}

type neighbor struct {
	index int
	dist  float64 // squared
}

// knnResult keeps the k closest points seen so far, ascending.
type knnResult struct {
	k     int
	items []neighbor
}

func (r *knnResult) full() bool { return len(r.items) == r.k }

func (r *knnResult) worst() float64 { return r.items[len(r.items)-1].dist }

func (r *knnResult) add(index int, dist float64) {
	if r.full() && dist >= r.worst() {
		return
	}
	pos := len(r.items)
	for pos > 0 && r.items[pos-1].dist > dist {
		pos--
	}
	if !r.full() {
		r.items = append(r.items, neighbor{})
	}
	copy(r.items[pos+1:], r.items[pos:len(r.items)-1])
	r.items[pos] = neighbor{index: index, dist: dist}
}

type search struct {
	f       *forest
	q       features.Descriptor
	res     knnResult
	checked []bool
	checks  int
	heap    *priorityqueue.Queue
}

// knn returns up to k approximate nearest neighbours of q with squared
// distances, closest first.
func (f *forest) knn(q features.Descriptor, k int) []neighbor {
	if len(f.roots) == 0 || k <= 0 {
		return nil
	}
	s := &search{
		f:       f,
		q:       q,
		res:     knnResult{k: k, items: make([]neighbor, 0, k)},
		checked: make([]bool, len(f.data)),
		heap:    priorityqueue.NewWith(byDist),
	}
	for _, root := range f.roots {
		s.descend(root, 0)
	}
	for !s.heap.Empty() && (s.checks < f.checks || !s.res.full()) {
		v, _ := s.heap.Dequeue()
		b := v.(branch)
		s.descend(b.node, b.dist)
	}
	return s.res.items
}

func (s *search) descend(n *kdNode, mindist float64) {
	if s.res.full() && mindist >= s.res.worst() {
		return
	}
	for !n.leaf() {
		diff := float64(s.q[n.dim]) - float64(n.split)
		near, far := n.left, n.right
		if diff >= 0 {
			near, far = n.right, n.left
		}
		s.heap.Enqueue(branch{node: far, dist: math.Max(mindist, diff*diff)})
		n = near
	}
	for _, i := range n.points {
		if s.checked[i] {
			continue
		}
		s.checked[i] = true
		s.checks++
		s.res.add(i, sqDist(s.q, s.f.data[i]))
	}
}

func sqDist(a, b features.Descriptor) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
