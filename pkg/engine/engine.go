// Package engine provides the high-level, embedded interface for llahdb.
//
// It wraps the LLAH recognition core with named documents, an on-disk
// snapshot plus journal, and automatic snapshots, providing a thread-safe
// instance that can be used directly within Go applications without network
// overhead.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("./data")
//	db, err := engine.Open(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/llahdb/pkg/core/llah"
	"github.com/sanonone/llahdb/pkg/metrics"
	"github.com/sanonone/llahdb/pkg/persistence"
	"github.com/tidwall/btree"
)

var (
	// ErrDocumentExists is returned when registering a name already in use.
	ErrDocumentExists = errors.New("engine: document already exists")
	// ErrDocumentNotFound is returned for unknown document names.
	ErrDocumentNotFound = errors.New("engine: document not found")
	// ErrClosed is returned by operations on a closed Engine.
	ErrClosed = errors.New("engine: closed")
)

// DocumentInfo describes a registered document.
type DocumentInfo struct {
	ID        int32  `json:"id"`
	Name      string `json:"name"`
	Landmarks int    `json:"landmarks"`
	Features  int    `json:"features"`
}

// Match is one document recognised in a lookup.
type Match struct {
	Document DocumentInfo `json:"document"`
	// Hits is the number of votes received.
	Hits uint64 `json:"hits"`
	// Score is Hits divided by the document's feature count.
	Score float64 `json:"score"`
	// SeenLandmarks counts landmarks matched to an observed point,
	// VotedLandmarks those that received any vote.
	SeenLandmarks  int                  `json:"seen_landmarks"`
	VotedLandmarks int                  `json:"voted_landmarks"`
	Matches        []llah.LandmarkMatch `json:"matches"`
}

// Stats summarises the engine state.
type Stats struct {
	Documents int         `json:"documents"`
	Features  int         `json:"features"`
	Buckets   int         `json:"buckets"`
	Dirty     int64       `json:"dirty"`
	LastSave  time.Time   `json:"last_save"`
	Config    llah.Config `json:"config"`
}

// catalogEntry orders documents by name in the catalog.
type catalogEntry struct {
	Name string
	ID   int32
}

func catalogLess(a, b catalogEntry) bool {
	return a.Name < b.Name
}

// Engine is the main entry point for llahdb.
//
// Use Open() to initialize an Engine and Close() to shut it down gracefully.
type Engine struct {
	ops  *llah.Operations
	opts Options

	// mu guards the catalog and serializes changes with lookups, so document
	// ids resolved by a lookup always have a name.
	mu      sync.RWMutex
	catalog *btree.BTreeG[catalogEntry]
	names   []string

	journal     *persistence.Journal
	snapPath    string
	journalPath string

	// dirtyCounter tracks the number of changes since the last save.
	dirtyCounter int64
	lastSaveTime time.Time

	// adminMu serializes Save.
	adminMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open initializes a new Engine instance using the provided options.
//
// It performs the following actions:
// 1. Creates DataDir if missing.
// 2. Loads the latest snapshot if available.
// 3. Replays the journal to recover changes made after it.
// 4. Starts the background auto-save task.
//
// This method blocks until every document has been re-indexed.
func Open(opts Options) (*Engine, error) {
	ops, err := llah.New(opts.LLAH)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		ops:          ops,
		opts:         opts,
		catalog:      btree.NewBTreeG[catalogEntry](catalogLess),
		lastSaveTime: time.Now(),
		closed:       make(chan struct{}),
	}

	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		e.snapPath = filepath.Join(opts.DataDir, cmp.Or(opts.SnapshotFilename, "llah.snap"))
		e.journalPath = filepath.Join(opts.DataDir, cmp.Or(opts.JournalFilename, "llah.journal"))

		if err := e.recover(); err != nil {
			return nil, err
		}
		journal, err := persistence.OpenJournal(e.journalPath)
		if err != nil {
			return nil, err
		}
		e.journal = journal
		size, err := journal.Size()
		if err == nil && size == 0 {
			err = e.writeJournalHeader()
		}
		if err != nil {
			_ = journal.Close()
			return nil, err
		}
	}
	e.updateGauges()

	e.wg.Add(1)
	go e.backgroundTasks()

	return e, nil
}

// recover loads the snapshot and replays the journal.
func (e *Engine) recover() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	frames, err := persistence.ReadSnapshot(e.snapPath)
	switch {
	case errors.Is(err, persistence.ErrNoSnapshot):
	case err != nil:
		return fmt.Errorf("failed to load snapshot: %w", err)
	default:
		if len(frames) == 0 || frames[0].Op != persistence.OpHeader {
			return fmt.Errorf("%w: missing header", ErrIncompatibleSnapshot)
		}
		for i, f := range frames {
			if err := e.apply(f); err != nil {
				return fmt.Errorf("snapshot record %d: %w", i, err)
			}
		}
	}

	replayed := 0
	_, err = persistence.ReplayJournal(e.journalPath, func(f persistence.Frame) error {
		if f.Op != persistence.OpHeader {
			replayed++
		}
		return e.apply(f)
	})
	if err != nil {
		return fmt.Errorf("failed to replay journal: %w", err)
	}
	// Replayed changes are not in the snapshot yet.
	e.dirtyCounter = int64(replayed)

	slog.Info("[Engine] Data loaded",
		"documents", len(e.names),
		"journal_records", replayed,
		"duration", time.Since(start))
	return nil
}

// Close performs a clean shutdown of the Engine.
//
// It stops background tasks, writes a final snapshot when there are unsaved
// changes and closes the journal.
func (e *Engine) Close() error {
	var err error

	e.closeOnce.Do(func() {
		close(e.closed)
		e.wg.Wait()

		if e.journal == nil {
			return
		}
		if atomic.LoadInt64(&e.dirtyCounter) > 0 {
			if saveErr := e.save(); saveErr != nil {
				slog.Error("[Engine] Final snapshot failed", "error", saveErr)
			}
		}
		err = e.journal.Close()
	})
	return err
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}

// Learn learns the discretization from a corpus of point sets. It must be
// called before any document is registered, or after Reset.
func (e *Engine) Learn(pointSets [][]llah.Point) error {
	if e.isClosed() {
		return ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.ops.Config()
	previous := e.ops.Breakpoints()
	if err := e.ops.LearnHashing(pointSets, cfg.NumDiscrete, 0, cfg.MaxInvariantValue); err != nil {
		return err
	}
	if err := e.record(persistence.OpBreakpoints, e.ops.Breakpoints()); err != nil {
		// No document exists while learning, so restoring cannot be refused.
		if restoreErr := e.ops.RestoreDiscretization(previous); restoreErr != nil {
			slog.Error("[Engine] Failed to restore discretization", "error", restoreErr)
		}
		return err
	}
	return nil
}

// Register adds a document. An empty name gets a generated one.
func (e *Engine) Register(name string, points []llah.Point) (DocumentInfo, error) {
	if e.isClosed() {
		return DocumentInfo{}, ErrClosed
	}
	if name == "" {
		name = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Journal first: a failed append leaves nothing indexed.
	if _, exists := e.catalog.Get(catalogEntry{Name: name}); exists {
		return DocumentInfo{}, fmt.Errorf("%w: %q", ErrDocumentExists, name)
	}
	if err := e.ops.CheckPoints(points); err != nil {
		return DocumentInfo{}, err
	}
	if err := e.record(persistence.OpDocument, documentRecord{Name: name, Landmarks: points}); err != nil {
		return DocumentInfo{}, err
	}
	info, err := e.register(name, points)
	if err != nil {
		return DocumentInfo{}, err
	}
	e.updateGauges()
	slog.Debug("[Engine] Document registered", "name", name, "id", info.ID, "landmarks", info.Landmarks)
	return info, nil
}

// register indexes a document without journaling it. Caller holds e.mu.
func (e *Engine) register(name string, points []llah.Point) (DocumentInfo, error) {
	if _, exists := e.catalog.Get(catalogEntry{Name: name}); exists {
		return DocumentInfo{}, fmt.Errorf("%w: %q", ErrDocumentExists, name)
	}
	doc, err := e.ops.CreateDocument(points)
	if err != nil {
		return DocumentInfo{}, err
	}
	e.catalog.Set(catalogEntry{Name: name, ID: doc.ID})
	e.names = append(e.names, name)
	return e.info(doc), nil
}

func (e *Engine) info(doc *llah.Document) DocumentInfo {
	return DocumentInfo{
		ID:        doc.ID,
		Name:      e.names[doc.ID],
		Landmarks: len(doc.Landmarks),
		Features:  len(doc.Features),
	}
}

// record journals a change. A nil v writes an empty payload. Caller holds e.mu.
func (e *Engine) record(op persistence.OpCode, v any) error {
	if e.journal == nil {
		atomic.AddInt64(&e.dirtyCounter, 1)
		return nil
	}
	f := persistence.Frame{Op: op}
	if v != nil {
		var err error
		if f, err = persistence.EncodeFrame(op, v); err != nil {
			return err
		}
	}
	if err := e.journal.Append(f.Op, f.Payload); err != nil {
		return fmt.Errorf("failed to append to journal: %w", err)
	}
	atomic.AddInt64(&e.dirtyCounter, 1)
	return nil
}

// writeJournalHeader opens an empty journal with the configuration its
// records are built under, so replay can reject a changed feature space.
func (e *Engine) writeJournalHeader() error {
	f, err := e.headerFrame()
	if err != nil {
		return err
	}
	if err := e.journal.Append(f.Op, f.Payload); err != nil {
		return fmt.Errorf("failed to write journal header: %w", err)
	}
	return nil
}

// Document returns a registered document and its landmarks.
func (e *Engine) Document(name string) (DocumentInfo, []llah.Point, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.catalog.Get(catalogEntry{Name: name})
	if !ok {
		return DocumentInfo{}, nil, fmt.Errorf("%w: %q", ErrDocumentNotFound, name)
	}
	doc, err := e.ops.Document(entry.ID)
	if err != nil {
		return DocumentInfo{}, nil, err
	}
	return e.info(doc), append([]llah.Point(nil), doc.Landmarks...), nil
}

// Documents lists the registered documents whose name starts with prefix,
// ordered by name.
func (e *Engine) Documents(prefix string) []DocumentInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []DocumentInfo
	e.catalog.Ascend(catalogEntry{Name: prefix}, func(entry catalogEntry) bool {
		if !strings.HasPrefix(entry.Name, prefix) {
			return false
		}
		if doc, err := e.ops.Document(entry.ID); err == nil {
			out = append(out, e.info(doc))
		}
		return true
	})
	return out
}

// Lookup recognises documents in an observed point set. Matches are sorted
// by decreasing hits. maxHitsPerPoint caps the votes per observed point
// (0 = no cap beyond the combinatorial maximum).
func (e *Engine) Lookup(points []llah.Point, maxHitsPerPoint uint32) ([]Match, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := time.Now()
	found, err := e.ops.LookupDocuments(points, maxHitsPerPoint, nil)
	metrics.LookupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Lookups.WithLabelValues("error").Inc()
		return nil, err
	}
	return e.matches(found), nil
}

// LookupBatch runs Lookup for every point set concurrently.
func (e *Engine) LookupBatch(ctx context.Context, queries [][]llah.Point, maxHitsPerPoint uint32) ([][]Match, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := time.Now()
	results, err := e.ops.LookupBatch(ctx, queries, maxHitsPerPoint, e.opts.LookupWorkers)
	if err != nil {
		metrics.Lookups.WithLabelValues("error").Inc()
		return nil, err
	}
	out := make([][]Match, len(results))
	for i, found := range results {
		out[i] = e.matches(found)
	}
	metrics.LookupDuration.Observe(time.Since(start).Seconds())
	return out, nil
}

// matches converts lookup results and updates the lookup counters. Caller
// holds e.mu.
func (e *Engine) matches(found []*llah.FoundDocument) []Match {
	out := make([]Match, 0, len(found))
	var votes uint64
	for _, fd := range found {
		hits := fd.CountHits()
		votes += hits
		info := e.info(fd.Document)
		m := Match{
			Document:      info,
			Hits:          hits,
			SeenLandmarks:  fd.CountSeenLandmarks(),
			VotedLandmarks: fd.CountVotedLandmarks(),
			Matches:       fd.LookupMatches(),
		}
		if info.Features > 0 {
			m.Score = float64(hits) / float64(info.Features)
		}
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b Match) int {
		return cmp.Compare(b.Hits, a.Hits)
	})

	outcome := "miss"
	if len(out) > 0 {
		outcome = "match"
	}
	metrics.Lookups.WithLabelValues(outcome).Inc()
	metrics.Votes.Add(float64(votes))
	return out
}

// Reset removes every document. The learned discretization is kept.
func (e *Engine) Reset() error {
	if e.isClosed() {
		return ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.record(persistence.OpReset, nil); err != nil {
		return err
	}
	e.reset()
	e.updateGauges()
	slog.Info("[Engine] All documents removed")
	return nil
}

// reset clears the in-memory state. Caller holds e.mu.
func (e *Engine) reset() {
	e.ops.ClearDocuments()
	e.catalog.Clear()
	e.names = nil
}

// Save writes a snapshot and truncates the journal.
func (e *Engine) Save() error {
	if e.isClosed() {
		return ErrClosed
	}
	return e.save()
}

func (e *Engine) save() error {
	if e.journal == nil {
		return nil
	}
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	// Changes are blocked while the snapshot is built so that the journal
	// truncation does not drop anything the snapshot misses.
	e.mu.Lock()
	defer e.mu.Unlock()

	frames, err := e.snapshotFrames()
	if err != nil {
		return err
	}
	if err := persistence.WriteSnapshot(e.snapPath, frames); err != nil {
		return err
	}
	if err := e.journal.Truncate(); err != nil {
		return fmt.Errorf("failed to truncate journal: %w", err)
	}
	if err := e.writeJournalHeader(); err != nil {
		return err
	}
	atomic.StoreInt64(&e.dirtyCounter, 0)
	e.lastSaveTime = time.Now()

	slog.Info("[Engine] Snapshot saved", "path", e.snapPath, "documents", len(e.names))
	return nil
}

// Stats returns a summary of the engine state.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	table := e.ops.HashTable()
	return Stats{
		Documents: len(e.names),
		Features:  table.Len(),
		Buckets:   table.NumBuckets(),
		Dirty:     atomic.LoadInt64(&e.dirtyCounter),
		LastSave:  e.lastSaveTime,
		Config:    e.ops.Config(),
	}
}

// updateGauges publishes the document and feature counts. Caller holds e.mu
// or has exclusive access.
func (e *Engine) updateGauges() {
	metrics.Documents.Set(float64(len(e.names)))
	metrics.Features.Set(float64(e.ops.HashTable().Len()))
}

// backgroundTasks handles automatic saving.
func (e *Engine) backgroundTasks() {
	defer e.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.checkMaintenance()
		}
	}
}

// checkMaintenance evaluates if a snapshot is needed.
func (e *Engine) checkMaintenance() {
	if e.journal == nil || e.opts.AutoSaveThreshold <= 0 || e.opts.AutoSaveInterval <= 0 {
		return
	}
	dirty := atomic.LoadInt64(&e.dirtyCounter)

	e.adminMu.Lock()
	due := time.Since(e.lastSaveTime) >= e.opts.AutoSaveInterval
	e.adminMu.Unlock()

	if dirty >= e.opts.AutoSaveThreshold && due {
		if err := e.save(); err != nil {
			// Log error but continue (background task)
			slog.Error("[Engine] Background snapshot failed", "error", err)
		}
	}
}
