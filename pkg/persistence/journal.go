package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Journal is an append-only file of frames recording every change made since
// the last snapshot.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	fw   *FrameWriter
	path string
	// size is the length of the last successfully synced content.
	size int64
}

// OpenJournal opens or creates a journal at the given path.
func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat journal: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &Journal{
		file: file,
		buf:  buf,
		fw:   NewFrameWriter(buf),
		path: path,
		size: info.Size(),
	}, nil
}

// Append writes one frame and forces it to disk. On failure the journal is
// cut back to its previous content, so a frame that was not acknowledged is
// never replayed.
func (j *Journal) Append(op OpCode, payload []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.fw.WriteFrame(op, payload)
	if err == nil {
		err = j.buf.Flush()
	}
	if err == nil {
		err = j.file.Sync()
	}
	if err != nil {
		j.buf.Reset(j.file)
		// Best effort: the file may be the very thing failing.
		_ = j.file.Truncate(j.size)
		return err
	}
	j.size += int64(HeaderSize + len(payload))
	return nil
}

// Truncate clears the journal. Called once its content is covered by a snapshot.
func (j *Journal) Truncate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.buf.Reset(j.file)
	if err := j.file.Truncate(0); err != nil {
		return err
	}
	j.size = 0
	_, err := j.file.Seek(0, io.SeekStart)
	return err
}

// Size returns the current journal size in bytes.
func (j *Journal) Size() (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.buf.Flush(); err != nil {
		return 0, err
	}
	info, err := j.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Path returns the file path.
func (j *Journal) Path() string {
	return j.path
}

// Close flushes and closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.buf.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}

// ReplayJournal calls fn for every frame in the journal at path. A missing
// file replays nothing. A torn or corrupted tail, left by a crash during an
// append, ends the replay with a warning and is cut from the file, so frames
// appended afterwards directly follow the last good one.
func ReplayJournal(path string, fn func(Frame) error) (int, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var offset int64
	count := 0
	for {
		frame, n, err := ReadFrame(r)
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			slog.Warn("[Persistence] Journal tail discarded", "path", path, "offset", offset, "error", err)
			if err := file.Truncate(offset); err != nil {
				return count, fmt.Errorf("failed to cut journal tail: %w", err)
			}
			if err := file.Sync(); err != nil {
				return count, fmt.Errorf("failed to sync journal: %w", err)
			}
			return count, nil
		}
		if err := fn(frame); err != nil {
			return count, fmt.Errorf("journal record %d: %w", count, err)
		}
		offset += int64(n)
		count++
	}
}
