package persistence

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	if err := fw.WriteFrame(OpDocument, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := fw.WriteFrame(OpReset, nil); err != nil {
		t.Fatal(err)
	}

	f, n, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if f.Op != OpDocument || string(f.Payload) != "hello" || n != HeaderSize+5 {
		t.Errorf("unexpected first frame: %+v (%d bytes)", f, n)
	}
	f, _, err = ReadFrame(&buf)
	if err != nil || f.Op != OpReset || len(f.Payload) != 0 {
		t.Errorf("unexpected second frame: %+v, %v", f, err)
	}
	if _, _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("expected io.EOF at the end, got %v", err)
	}
}

func TestReadFrameCorruption(t *testing.T) {
	encode := func() []byte {
		var buf bytes.Buffer
		_ = NewFrameWriter(&buf).WriteFrame(OpDocument, []byte("payload"))
		return buf.Bytes()
	}

	tests := []struct {
		name   string
		mangle func([]byte) []byte
		want   error
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 0x00; return b }, ErrInvalidMagic},
		{"flipped payload", func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }, ErrChecksumMismatch},
		{"short header", func(b []byte) []byte { return b[:4] }, ErrIncompleteFrame},
		{"short payload", func(b []byte) []byte { return b[:len(b)-2] }, ErrIncompleteFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mangle(encode())
			if _, _, err := ReadFrame(bytes.NewReader(data)); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

type record struct {
	Name   string
	Values []float64
}

func TestSnapshotWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llah.snap")

	if _, err := ReadSnapshot(path); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}

	first, err := EncodeFrame(OpDocument, record{Name: "a", Values: []float64{1, 2}})
	if err != nil {
		t.Fatal(err)
	}
	second, err := EncodeFrame(OpBreakpoints, []float64{0.5, 1.5})
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteSnapshot(path, []Frame{first, second}); err != nil {
		t.Fatal(err)
	}

	frames, err := ReadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	var got record
	if err := DecodeFrame(frames[0], &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "a" || len(got.Values) != 2 || got.Values[1] != 2 {
		t.Errorf("unexpected record %+v", got)
	}

	// Overwriting leaves no temporary files behind.
	if err := WriteSnapshot(path, []Frame{second}); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the snapshot in the directory, found %d entries", len(entries))
	}
	frames, _ = ReadSnapshot(path)
	if len(frames) != 1 || frames[0].Op != OpBreakpoints {
		t.Errorf("overwrite not visible: %+v", frames)
	}
}

func TestSnapshotCorruptionIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llah.snap")
	f, _ := EncodeFrame(OpHeader, "header")
	if err := WriteSnapshot(path, []Frame{f}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadSnapshot(path); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestJournalAppendReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llah.journal")

	n, err := ReplayJournal(path, func(Frame) error { return nil })
	if err != nil || n != 0 {
		t.Fatalf("missing journal: %d frames, %v", n, err)
	}

	j, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"one", "two", "three"} {
		if err := j.Append(OpDocument, []byte(name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash in the middle of a fourth append.
	file, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = file.Write([]byte{MagicByte, byte(OpDocument), 9, 0})
	_ = file.Close()

	var names []string
	n, err = ReplayJournal(path, func(f Frame) error {
		names = append(names, string(f.Payload))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || len(names) != 3 || names[2] != "three" {
		t.Errorf("expected the three complete frames, got %d: %v", n, names)
	}

	stop := errors.New("stop")
	if _, err := ReplayJournal(path, func(Frame) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("callback error not propagated: %v", err)
	}
}

func TestJournalTornTailIsCut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llah.journal")
	appendFrames := func(names ...string) {
		t.Helper()
		j, err := OpenJournal(path)
		if err != nil {
			t.Fatal(err)
		}
		for _, name := range names {
			if err := j.Append(OpDocument, []byte(name)); err != nil {
				t.Fatal(err)
			}
		}
		if err := j.Close(); err != nil {
			t.Fatal(err)
		}
	}
	replay := func() []string {
		t.Helper()
		var names []string
		if _, err := ReplayJournal(path, func(f Frame) error {
			names = append(names, string(f.Payload))
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		return names
	}

	appendFrames("alpha")
	good := int64(HeaderSize + len("alpha"))

	// Torn append: three bytes of a header.
	file, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = file.Write([]byte{MagicByte, byte(OpDocument), 7})
	_ = file.Close()

	if names := replay(); len(names) != 1 || names[0] != "alpha" {
		t.Fatalf("first recovery: %v", names)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != good {
		t.Fatalf("torn tail not cut: size %d, want %d", info.Size(), good)
	}

	// Frames appended after recovery must survive the next one.
	appendFrames("beta")
	if names := replay(); len(names) != 2 || names[1] != "beta" {
		t.Errorf("second recovery lost frames: %v", names)
	}
}

func TestJournalTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llah.journal")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	_ = j.Append(OpDocument, []byte("x"))
	if size, _ := j.Size(); size != HeaderSize+1 {
		t.Fatalf("unexpected size %d", size)
	}
	if err := j.Truncate(); err != nil {
		t.Fatal(err)
	}
	if size, _ := j.Size(); size != 0 {
		t.Errorf("truncated journal has %d bytes", size)
	}
	_ = j.Append(OpReset, nil)

	n, _ := ReplayJournal(path, func(f Frame) error {
		if f.Op != OpReset {
			t.Errorf("unexpected frame %+v", f)
		}
		return nil
	})
	if n != 1 {
		t.Errorf("expected 1 frame after truncate, got %d", n)
	}
	if j.Path() != path {
		t.Errorf("Path() = %q", j.Path())
	}
}
