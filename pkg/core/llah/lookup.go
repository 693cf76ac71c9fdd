package llah

import "fmt"

// NoDot marks a landmark without a corresponding observed dot.
const NoDot int32 = -1

// FoundDocument is the per-query result for one registered document.
type FoundDocument struct {
	Document *Document
	// Votes received by each landmark, indexed by landmark id.
	LandmarkHits []uint32
	// Observed dot index assigned to each landmark, or NoDot.
	LandmarkToDots []int32
}

func newFoundDocument(doc *Document) *FoundDocument {
	fd := &FoundDocument{
		Document:       doc,
		LandmarkHits:   make([]uint32, len(doc.Landmarks)),
		LandmarkToDots: make([]int32, len(doc.Landmarks)),
	}
	for i := range fd.LandmarkToDots {
		fd.LandmarkToDots[i] = NoDot
	}
	return fd
}

// CountHits is the total number of votes the document received.
func (fd *FoundDocument) CountHits() uint64 {
	var total uint64
	for _, h := range fd.LandmarkHits {
		total += uint64(h)
	}
	return total
}

// CountSeenLandmarks is the number of landmarks matched to a dot. A landmark
// can receive votes without being matched (too few votes, a tie, or its best
// dot already claimed), so this is at most CountVotedLandmarks.
func (fd *FoundDocument) CountSeenLandmarks() int {
	n := 0
	for _, dot := range fd.LandmarkToDots {
		if dot != NoDot {
			n++
		}
	}
	return n
}

// CountVotedLandmarks is the number of landmarks that received at least one vote.
func (fd *FoundDocument) CountVotedLandmarks() int {
	n := 0
	for _, h := range fd.LandmarkHits {
		if h > 0 {
			n++
		}
	}
	return n
}

// SeenLandmark reports whether landmark i was matched to a dot.
func (fd *FoundDocument) SeenLandmark(i int) bool {
	return i >= 0 && i < len(fd.LandmarkToDots) && fd.LandmarkToDots[i] != NoDot
}

// LandmarkMatch pairs a registered landmark with the observed dot found for it.
type LandmarkMatch struct {
	Landmark int32
	Location Point
	Dot      int32
}

// LookupMatches lists the matched landmarks in landmark order.
func (fd *FoundDocument) LookupMatches() []LandmarkMatch {
	matches := make([]LandmarkMatch, 0, fd.CountSeenLandmarks())
	for i, dot := range fd.LandmarkToDots {
		if dot == NoDot {
			continue
		}
		matches = append(matches, LandmarkMatch{
			Landmark: int32(i),
			Location: fd.Document.Landmarks[i],
			Dot:      dot,
		})
	}
	return matches
}

// scratch is the mutable state of one call. It is pooled and never shared
// between goroutines while in use.
type scratch struct {
	gen   *generator
	query Feature
	voted *bitSet

	found map[int32]*FoundDocument
	// Votes the current dot gave to each (document, landmark) pair.
	dotVotes map[landmarkKey]uint32
	best     map[int32]dotClaim
}

type landmarkKey struct {
	document, landmark int32
}

// dotClaim is the strongest landmark a dot voted for inside one document.
type dotClaim struct {
	landmark int32
	votes    uint32
	tied     bool
}

func (o *Operations) newScratch() *scratch {
	return &scratch{
		gen:      newGenerator(o.cfg.NumberOfNeighbors, o.cfg.SizeOfCombination, o.combinations, o.newIndex()),
		query:    NewFeature(o.numberOfInvariants),
		voted:    newBitSet(0),
		found:    make(map[int32]*FoundDocument),
		dotVotes: make(map[landmarkKey]uint32),
		best:     make(map[int32]dotClaim),
	}
}

func (o *Operations) getScratch() *scratch {
	return o.scratchPool.Get().(*scratch)
}

func (o *Operations) putScratch(s *scratch) {
	s.voted.clear()
	clear(s.found)
	clear(s.dotVotes)
	clear(s.best)
	o.scratchPool.Put(s)
}

// LookupDocuments searches the registered documents for the arrangement formed
// by points and returns one FoundDocument per document that received a vote,
// in the order the documents were first hit. Results are unranked; callers
// compare CountHits.
//
// A stored feature votes when its invariants equal those of a query tuple, and
// it votes at most once per call. At most maxHitsPerPoint votes are counted per
// observed dot (0 means ComputeMaxUniqueHashPerPoint). Once a dot has cast its
// votes, it is assigned, in each document, to the landmark it voted for most,
// provided that landmark has no dot yet, the winner is unique and it received
// at least Config.MinDotVotes votes. Earlier dots win.
//
// out is truncated and reused as the result slice.
func (o *Operations) LookupDocuments(points []Point, maxHitsPerPoint uint32, out []*FoundDocument) ([]*FoundDocument, error) {
	out = out[:0]
	if err := o.checkListSize(points); err != nil {
		return out, err
	}
	if maxHitsPerPoint == 0 {
		maxHitsPerPoint = uint32(o.cfg.MaxUniqueHashPerPoint())
	}
	minVotes := max(o.cfg.MinDotVotes, 1)

	o.mu.RLock()
	defer o.mu.RUnlock()

	s := o.getScratch()
	defer o.putScratch(s)
	s.voted.grow(uint32(o.hashTable.Len()))

	var dotHits uint32
	visit := func(_ int, tuple []Point) {
		if dotHits >= maxHitsPerPoint {
			return
		}
		o.hasher.ComputeHash(tuple, &s.query)
		for id, f := range o.hashTable.Chain(s.query.HashCode) {
			if s.voted.has(uint32(id)) || !f.InvariantsMatch(&s.query) {
				continue
			}
			s.voted.add(uint32(id))

			fd, ok := s.found[f.DocumentID]
			if !ok {
				fd = newFoundDocument(o.documents[f.DocumentID])
				s.found[f.DocumentID] = fd
				out = append(out, fd)
			}
			fd.LandmarkHits[f.LandmarkID]++
			s.dotVotes[landmarkKey{f.DocumentID, f.LandmarkID}]++

			dotHits++
			if dotHits >= maxHitsPerPoint {
				return
			}
		}
	}
	finish := func(dot int) {
		dotHits = 0
		if len(s.dotVotes) == 0 {
			return
		}
		for key, votes := range s.dotVotes {
			c, ok := s.best[key.document]
			switch {
			case !ok || votes > c.votes:
				s.best[key.document] = dotClaim{landmark: key.landmark, votes: votes}
			case votes == c.votes:
				c.tied = true
				s.best[key.document] = c
			}
		}
		for docID, c := range s.best {
			if c.tied || c.votes < minVotes {
				continue
			}
			if fd := s.found[docID]; fd.LandmarkToDots[c.landmark] == NoDot {
				fd.LandmarkToDots[c.landmark] = int32(dot)
			}
		}
		clear(s.dotVotes)
		clear(s.best)
	}
	s.gen.walk(points, visit, finish)
	return out, nil
}

// BestDocument returns the result with the most votes, or nil.
func BestDocument(found []*FoundDocument) *FoundDocument {
	var best *FoundDocument
	var bestHits uint64
	for _, fd := range found {
		if h := fd.CountHits(); best == nil || h > bestHits {
			best, bestHits = fd, h
		}
	}
	return best
}

// String implements fmt.Stringer.
func (fd *FoundDocument) String() string {
	return fmt.Sprintf("document %d: %d hits, %d/%d landmarks",
		fd.Document.ID, fd.CountHits(), fd.CountSeenLandmarks(), len(fd.LandmarkToDots))
}
