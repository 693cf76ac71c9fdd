// Package nn provides the nearest-neighbour service used by the LLAH engine to
// find the local arrangement around each landmark.
//
// The engine only depends on the Index interface, so alternative backends can be
// injected through a Factory. The default backend is a k-d tree built with
// gonum's spatial/kdtree package.
package nn

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r2"
)

// Index finds the nearest points of a fixed point set.
type Index interface {
	// SetPoints replaces the searchable set. The slice is not retained.
	SetPoints(points []r2.Vec)
	// FindNearest appends to dst the indices of up to k points closest to target,
	// ordered by ascending distance, and returns the extended slice.
	FindNearest(target r2.Vec, k int, dst []int) []int
}

// Factory creates a fresh Index. Each LLAH call builds its own index so that
// concurrent lookups never share search state.
type Factory func() Index

// indexedPoint is a kdtree.Comparable that remembers its position in the input.
type indexedPoint struct {
	p   r2.Vec
	idx int
}

func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	if d == 0 {
		return p.p.X - q.p.X
	}
	return p.p.Y - q.p.Y
}

func (p indexedPoint) Dims() int { return 2 }

func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	dx := p.p.X - q.p.X
	dy := p.p.Y - q.p.Y
	return dx*dx + dy*dy
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p indexedPoints) Len() int                              { return len(p) }
func (p indexedPoints) Pivot(d kdtree.Dim) int                { return plane{Dim: d, indexedPoints: p}.Pivot() }
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane pivots an indexedPoints slice on one dimension.
type plane struct {
	kdtree.Dim
	indexedPoints
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.indexedPoints[i].p.X < p.indexedPoints[j].p.X
	}
	return p.indexedPoints[i].p.Y < p.indexedPoints[j].p.Y
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.indexedPoints = p.indexedPoints[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}

// KDTree is an Index backed by a gonum k-d tree.
type KDTree struct {
	tree *kdtree.Tree
	n    int
}

// NewKDTree returns an empty k-d tree index. It satisfies Factory.
func NewKDTree() Index {
	return &KDTree{}
}

// SetPoints rebuilds the tree over points.
func (t *KDTree) SetPoints(points []r2.Vec) {
	data := make(indexedPoints, len(points))
	for i, p := range points {
		data[i] = indexedPoint{p: p, idx: i}
	}
	t.n = len(points)
	if len(data) == 0 {
		t.tree = nil
		return
	}
	t.tree = kdtree.New(data, false)
}

// FindNearest implements Index.
func (t *KDTree) FindNearest(target r2.Vec, k int, dst []int) []int {
	if t.tree == nil || k <= 0 {
		return dst
	}
	if k > t.n {
		k = t.n
	}
	keeper := kdtree.NewNKeeper(k)
	t.tree.NearestSet(keeper, indexedPoint{p: target, idx: -1})

	found := make([]kdtree.ComparableDist, 0, len(keeper.Heap))
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		found = append(found, cd)
	}
	// Equal distances fall back to input order so results are reproducible.
	sort.Slice(found, func(i, j int) bool {
		if found[i].Dist != found[j].Dist {
			return found[i].Dist < found[j].Dist
		}
		return found[i].Comparable.(indexedPoint).idx < found[j].Comparable.(indexedPoint).idx
	})
	for _, cd := range found {
		dst = append(dst, cd.Comparable.(indexedPoint).idx)
	}
	return dst
}

// Exhaustive is a linear-scan Index. It is exact and mostly useful as a
// reference for small point sets.
type Exhaustive struct {
	points []r2.Vec
	dists  []float64
	order  []int
}

// NewExhaustive returns an empty linear-scan index. It satisfies Factory.
func NewExhaustive() Index {
	return &Exhaustive{}
}

// SetPoints implements Index.
func (e *Exhaustive) SetPoints(points []r2.Vec) {
	e.points = append(e.points[:0], points...)
}

// FindNearest implements Index.
func (e *Exhaustive) FindNearest(target r2.Vec, k int, dst []int) []int {
	if k <= 0 || len(e.points) == 0 {
		return dst
	}
	e.dists = e.dists[:0]
	e.order = e.order[:0]
	for i, p := range e.points {
		e.dists = append(e.dists, r2.Norm2(r2.Sub(p, target)))
		e.order = append(e.order, i)
	}
	sort.SliceStable(e.order, func(a, b int) bool {
		return e.dists[e.order[a]] < e.dists[e.order[b]]
	})
	if k > len(e.order) {
		k = len(e.order)
	}
	return append(dst, e.order[:k]...)
}
