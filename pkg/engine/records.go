package engine

import (
	"errors"
	"fmt"

	"github.com/sanonone/llahdb/pkg/core/llah"
	"github.com/sanonone/llahdb/pkg/persistence"
)

// snapshotVersion is bumped whenever the record layout changes.
const snapshotVersion = 1

// ErrIncompatibleSnapshot is returned by Open when the snapshot or journal was
// built with different LLAH parameters or by an unknown format version.
var ErrIncompatibleSnapshot = errors.New("engine: snapshot incompatible with configuration")

type headerRecord struct {
	Version int
	Config  llah.Config
}

type documentRecord struct {
	Name      string
	Landmarks []llah.Point
}

// headerFrame records the format version and configuration. It opens every
// snapshot and every journal.
func (e *Engine) headerFrame() (persistence.Frame, error) {
	return persistence.EncodeFrame(persistence.OpHeader, headerRecord{Version: snapshotVersion, Config: e.ops.Config()})
}

// snapshotFrames serializes the engine state. Features are not stored, they
// are a deterministic function of the breakpoints and the landmarks.
func (e *Engine) snapshotFrames() ([]persistence.Frame, error) {
	frames := make([]persistence.Frame, 0, len(e.names)+2)

	header, err := e.headerFrame()
	if err != nil {
		return nil, err
	}
	frames = append(frames, header)

	breakpoints, err := persistence.EncodeFrame(persistence.OpBreakpoints, e.ops.Breakpoints())
	if err != nil {
		return nil, err
	}
	frames = append(frames, breakpoints)

	for _, doc := range e.ops.Documents() {
		f, err := persistence.EncodeFrame(persistence.OpDocument, documentRecord{
			Name:      e.names[doc.ID],
			Landmarks: doc.Landmarks,
		})
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// apply replays one snapshot or journal record. Caller holds e.mu.
func (e *Engine) apply(f persistence.Frame) error {
	switch f.Op {
	case persistence.OpHeader:
		var h headerRecord
		if err := persistence.DecodeFrame(f, &h); err != nil {
			return err
		}
		if h.Version != snapshotVersion {
			return fmt.Errorf("%w: version %d", ErrIncompatibleSnapshot, h.Version)
		}
		if !sameFeatureSpace(h.Config, e.ops.Config()) {
			return fmt.Errorf("%w: stored %+v, configured %+v", ErrIncompatibleSnapshot, h.Config, e.ops.Config())
		}
	case persistence.OpBreakpoints:
		var samples []float64
		if err := persistence.DecodeFrame(f, &samples); err != nil {
			return err
		}
		return e.ops.RestoreDiscretization(samples)
	case persistence.OpDocument:
		var rec documentRecord
		if err := persistence.DecodeFrame(f, &rec); err != nil {
			return err
		}
		_, err := e.register(rec.Name, rec.Landmarks)
		return err
	case persistence.OpReset:
		e.reset()
	default:
		return fmt.Errorf("unknown record opcode %#x", f.Op)
	}
	return nil
}

// sameFeatureSpace reports whether two configurations produce identical
// features. Learning and voting parameters may differ.
func sameFeatureSpace(a, b llah.Config) bool {
	return a.NumberOfNeighbors == b.NumberOfNeighbors &&
		a.SizeOfCombination == b.SizeOfCombination &&
		a.Hasher == b.Hasher &&
		a.NumDiscrete == b.NumDiscrete &&
		a.HashK == b.HashK &&
		a.HashTableSize == b.HashTableSize
}
