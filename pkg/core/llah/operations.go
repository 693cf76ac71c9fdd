// Package llah implements Locally Likely Arrangement Hashing: a geometric
// hashing scheme that recognises a registered 2D arrangement of landmarks
// (a "document") from an observed, partially visible, rotated or deformed set
// of dots, and recovers which dot corresponds to which landmark.
//
// For every point the N nearest neighbours are found and sorted by angle. Every
// combination of M of those neighbours is taken in all M cyclic rotations, and
// each resulting tuple (the point followed by the rotated combination) is
// turned into discretized geometric invariants and a hash code. Registering a
// document stores those features in a shared HashTable; looking up a point set
// regenerates the features and lets matching stored features vote for their
// document and landmark.
//
// Basic usage:
//
//	ops, err := llah.New(llah.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = ops.LearnHashing(corpus, 16, 0, 25)
//	doc, _ := ops.CreateDocument(points)
//	found, _ := ops.LookupDocuments(observed, 0, nil)
package llah

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/sanonone/llahdb/pkg/core/nn"
	"gonum.org/v1/gonum/stat/combin"
)

// Document is a registered arrangement of landmarks.
type Document struct {
	ID int32
	// Landmarks in the order they were registered. A landmark's id is its index.
	Landmarks []Point
	// Features generated from the landmarks, as ids in the HashTable arena.
	Features []FeatureID
}

// Option customises Operations.
type Option func(*Operations)

// WithNeighborIndex replaces the default k-d tree nearest-neighbour backend.
func WithNeighborIndex(factory nn.Factory) Option {
	return func(o *Operations) { o.newIndex = factory }
}

// WithHasher replaces the hasher built from the configuration.
func WithHasher(h Hasher) Option {
	return func(o *Operations) { o.hasher = h }
}

// Operations owns the documents and the hash table, and runs feature
// generation for learning and lookup.
//
// Learning methods (LearnHashing, CreateDocument, ClearDocuments) take the
// write lock; lookups take the read lock and keep all mutable state in
// per-call scratch, so any number of lookups can run concurrently.
type Operations struct {
	mu sync.RWMutex

	cfg                Config
	numberOfInvariants int
	hasher             Hasher
	newIndex           nn.Factory

	// All C(N, M) index combinations, shared read-only by every generator.
	combinations [][]int

	hashTable *HashTable
	documents []*Document

	scratchPool sync.Pool
}

// New validates cfg and returns an empty Operations.
func New(cfg Config, opts ...Option) (*Operations, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Operations{
		cfg:          cfg,
		newIndex:     nn.NewKDTree,
		combinations: combin.Combinations(cfg.NumberOfNeighbors, cfg.SizeOfCombination),
		hashTable:    NewHashTable(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.hasher == nil {
		h, err := NewHasher(cfg)
		if err != nil {
			return nil, err
		}
		o.hasher = h
	}
	// Tuples are the landmark followed by M neighbours.
	o.numberOfInvariants = o.hasher.NumberOfInvariants(cfg.SizeOfCombination + 1)
	if o.numberOfInvariants < 1 {
		return nil, fmt.Errorf("%w: a tuple of %d points is too small for the hasher",
			ErrInvalidConfig, cfg.SizeOfCombination+1)
	}
	o.scratchPool = sync.Pool{
		New: func() any { return o.newScratch() },
	}
	return o, nil
}

// Config returns the configuration Operations was built with.
func (o *Operations) Config() Config { return o.cfg }

// NumberOfNeighbors is N.
func (o *Operations) NumberOfNeighbors() int { return o.cfg.NumberOfNeighbors }

// SizeOfCombination is M.
func (o *Operations) SizeOfCombination() int { return o.cfg.SizeOfCombination }

// NumberOfInvariants is the length of every Feature's invariant slice.
func (o *Operations) NumberOfInvariants() int { return o.numberOfInvariants }

// Hasher returns the hasher in use.
func (o *Operations) Hasher() Hasher { return o.hasher }

// HashTable exposes the feature index. It must not be modified while other
// goroutines use Operations.
func (o *Operations) HashTable() *HashTable { return o.hashTable }

// ComputeMaxUniqueHashPerPoint is the number of features a single landmark
// produces, C(N, M)·M. A perfectly matched dot collects at most this many votes.
func (o *Operations) ComputeMaxUniqueHashPerPoint() int64 {
	return o.cfg.MaxUniqueHashPerPoint()
}

// Documents returns the registered documents ordered by id.
func (o *Operations) Documents() []*Document {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]*Document(nil), o.documents...)
}

// Document returns the document with the given id.
func (o *Operations) Document(id int32) (*Document, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if id < 0 || int(id) >= len(o.documents) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDocument, id)
	}
	return o.documents[id], nil
}

// ClearDocuments forgets every document and feature. Learned breakpoints are kept.
func (o *Operations) ClearDocuments() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.documents = nil
	o.hashTable.Reset()
}

// CheckPoints reports ErrTooFewPoints when points cannot form a document or a
// query: every point needs N neighbours besides itself.
func (o *Operations) CheckPoints(points []Point) error {
	return o.checkListSize(points)
}

func (o *Operations) checkListSize(points []Point) error {
	if need := o.cfg.NumberOfNeighbors + 1; len(points) < need {
		return fmt.Errorf("%w: need at least %d, got %d", ErrTooFewPoints, need, len(points))
	}
	return nil
}

// LearnHashing learns the discretization from a corpus of point sets, one per
// document. Every raw invariant is binned into a histogram of
// Config.HistogramLength bins over [0, maxValue); at most maxHistogramSamples
// invariants are collected (0 uses Config.MaxHistogramSamples, negative means
// no cap). It must run before any document is created.
func (o *Operations) LearnHashing(pointSets [][]Point, numBuckets int, maxHistogramSamples int, maxValue float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.documents) > 0 {
		return ErrLearnAfterDocuments
	}
	if maxHistogramSamples == 0 {
		maxHistogramSamples = o.cfg.MaxHistogramSamples
	}
	for i, set := range pointSets {
		if err := o.checkListSize(set); err != nil {
			return fmt.Errorf("point set %d: %w", i, err)
		}
	}

	histogram := make([]uint32, o.cfg.HistogramLength)
	raw := make([]float64, o.numberOfInvariants)
	var total uint64
	full := func() bool { return maxHistogramSamples > 0 && total >= uint64(maxHistogramSamples) }

	s := o.getScratch()
	defer o.putScratch(s)
	for _, set := range pointSets {
		if full() {
			break
		}
		s.gen.walk(set, func(_ int, tuple []Point) {
			if full() {
				return
			}
			o.hasher.ComputeInvariants(tuple, raw)
			for _, v := range raw {
				histogram[histogramBin(v, maxValue, len(histogram))]++
				total++
			}
		}, nil)
	}

	last := float64(histogram[len(histogram)-1])
	if total > 0 {
		endFraction := last / float64(total)
		if maxAllowed := 0.5 / float64(numBuckets); endFraction > maxAllowed {
			slog.Warn("[LLAH] Last histogram bin holds a significant share, max invariant value should be increased",
				"fraction", endFraction, "max_allowed", maxAllowed, "max_value", maxValue)
		}
	}

	if err := o.hasher.LearnDiscretization(histogram, total, maxValue, numBuckets); err != nil {
		return err
	}
	slog.Info("[LLAH] Discretization learned",
		"point_sets", len(pointSets), "samples", total, "buckets", numBuckets, "max_value", maxValue)
	return nil
}

// Breakpoints returns the discretization table currently in use.
func (o *Operations) Breakpoints() []float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.hasher.Breakpoints()
}

// RestoreDiscretization installs a table previously returned by Breakpoints.
// Like LearnHashing it is refused once documents exist.
func (o *Operations) RestoreDiscretization(samples []float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.documents) > 0 {
		return ErrLearnAfterDocuments
	}
	return o.hasher.SetBreakpoints(samples)
}

func histogramBin(v, maxValue float64, length int) int {
	if math.IsNaN(v) || v >= maxValue {
		return length - 1
	}
	j := int(float64(length) * v / maxValue)
	if j < 0 {
		return 0
	}
	if j >= length {
		return length - 1
	}
	return j
}

// CreateDocument registers a new document made of the given landmarks and
// adds its features to the hash table. Nothing is modified when the point set
// is too small.
func (o *Operations) CreateDocument(points []Point) (*Document, error) {
	if err := o.checkListSize(points); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	doc := &Document{
		ID:        int32(len(o.documents)),
		Landmarks: append([]Point(nil), points...),
		Features:  make([]FeatureID, 0, int64(len(points))*o.cfg.MaxUniqueHashPerPoint()),
	}

	s := o.getScratch()
	defer o.putScratch(s)
	feature := NewFeature(o.numberOfInvariants)
	s.gen.walk(doc.Landmarks, func(landmark int, tuple []Point) {
		o.hasher.ComputeHash(tuple, &feature)
		feature.DocumentID = doc.ID
		feature.LandmarkID = int32(landmark)
		doc.Features = append(doc.Features, o.hashTable.Add(&feature))
	}, nil)

	o.documents = append(o.documents, doc)
	slog.Debug("[LLAH] Document created", "document_id", doc.ID,
		"landmarks", len(doc.Landmarks), "features", len(doc.Features))
	return doc, nil
}

// ComputeAllFeatures calls fn once per generated tuple: for each point, every
// combination of M of its N nearest neighbours in every cyclic rotation. The
// tuple starts with the point itself and is only valid during the call.
func (o *Operations) ComputeAllFeatures(points []Point, fn func(landmark int, tuple []Point)) error {
	if err := o.checkListSize(points); err != nil {
		return err
	}
	s := o.getScratch()
	defer o.putScratch(s)
	s.gen.walk(points, fn, nil)
	return nil
}

// generator enumerates the tuples of a point set. Each generator is used by a
// single goroutine at a time.
type generator struct {
	n, m         int
	combinations [][]int

	index   nn.Index
	nearest []int
	ring    []polar
	setM    []Point
	tuple   []Point
}

// polar is a neighbour with its angle around the current landmark.
type polar struct {
	p     Point
	angle float64
}

func newGenerator(n, m int, combinations [][]int, index nn.Index) *generator {
	return &generator{
		n:            n,
		m:            m,
		combinations: combinations,
		index:        index,
		nearest:      make([]int, 0, n+1),
		ring:         make([]polar, 0, n+1),
		setM:         make([]Point, m),
		tuple:        make([]Point, m+1),
	}
}

// walk visits every tuple of points. finish, when set, runs after the last
// tuple of each point.
func (g *generator) walk(points []Point, visit func(dot int, tuple []Point), finish func(dot int)) {
	g.index.SetPoints(points)
	for dot, target := range points {
		g.findNeighbors(points, dot)
		if len(g.ring) == g.n {
			g.tuple[0] = target
			for _, combo := range g.combinations {
				for i, c := range combo {
					g.setM[i] = g.ring[c].p
				}
				// The starting neighbour of an observed arrangement is unknown,
				// so every cyclic rotation is produced.
				for r := 0; r < g.m; r++ {
					for j := 0; j < g.m; j++ {
						g.tuple[1+j] = g.setM[(r+j)%g.m]
					}
					visit(dot, g.tuple)
				}
			}
		}
		if finish != nil {
			finish(dot)
		}
	}
}

// findNeighbors fills ring with the N nearest neighbours of points[dot],
// sorted by their angle around it.
func (g *generator) findNeighbors(points []Point, dot int) {
	target := points[dot]
	g.nearest = g.index.FindNearest(target, g.n+1, g.nearest[:0])
	g.ring = g.ring[:0]
	for _, idx := range g.nearest {
		if idx == dot || len(g.ring) == g.n {
			continue
		}
		p := points[idx]
		g.ring = append(g.ring, polar{p: p, angle: math.Atan2(p.Y-target.Y, p.X-target.X)})
	}
	sort.Slice(g.ring, func(i, j int) bool { return g.ring[i].angle < g.ring[j].angle })
}
