package persistence

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sanonone/llahdb/pkg/storage/mmap"
)

// ErrNoSnapshot is returned by ReadSnapshot when no snapshot exists yet.
var ErrNoSnapshot = errors.New("snapshot not found")

// WriteSnapshot writes frames to path atomically: the data goes to a
// temporary file in the same directory, is synced, and then renamed over path.
func WriteSnapshot(path string, frames []Frame) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	// Removing after a successful rename is a no-op error we ignore.
	defer os.Remove(tmpPath)

	buf := bufio.NewWriter(tmp)
	fw := NewFrameWriter(buf)
	for _, f := range frames {
		if err := fw.WriteFrame(f.Op, f.Payload); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot reads every frame of the snapshot at path. Unlike the journal,
// a snapshot is written atomically, so any damage is reported as an error.
func ReadSnapshot(path string) ([]Frame, error) {
	file, err := mmap.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	// ReadFrame copies payloads, so frames outlive the mapping.
	r := bytes.NewReader(file.Bytes())
	var frames []Frame
	for {
		frame, _, err := ReadFrame(r)
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot %s frame %d: %w", path, len(frames), err)
		}
		frames = append(frames, frame)
	}
}

// EncodeFrame gob-encodes v into a frame with the given opcode.
func EncodeFrame(op OpCode, v any) (Frame, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return Frame{}, fmt.Errorf("failed to encode frame %#x: %w", op, err)
	}
	return Frame{Op: op, Payload: buf.Bytes()}, nil
}

// DecodeFrame gob-decodes the payload of f into v.
func DecodeFrame(f Frame, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(f.Payload)).Decode(v); err != nil {
		return fmt.Errorf("failed to decode frame %#x: %w", f.Op, err)
	}
	return nil
}
