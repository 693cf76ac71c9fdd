package persistence

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Constants for the binary record format shared by snapshots and the journal.
const (
	// MagicByte is the marker used to identify the start of a valid frame.
	// It helps in scanning for recovery if the file is heavily corrupted.
	MagicByte = 0xA5

	// HeaderSize is the fixed size of the frame metadata:
	// 1 byte (Magic) + 1 byte (OpCode) + 4 bytes (Length) + 4 bytes (CRC32) = 10 bytes.
	HeaderSize = 10
)

// OpCode tells the reader how to decode a frame payload.
type OpCode byte

const (
	// OpHeader carries the engine configuration. It opens every snapshot.
	OpHeader OpCode = 0x01
	// OpBreakpoints carries the learned discretization table.
	OpBreakpoints OpCode = 0x02
	// OpDocument carries one registered document.
	OpDocument OpCode = 0x03
	// OpReset drops every document registered before it.
	OpReset OpCode = 0x04
)

var (
	// ErrInvalidMagic indicates the file stream lost synchronization or is not a valid record file.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch indicates data corruption within the frame payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the file ended abruptly (e.g., power loss during write).
	ErrIncompleteFrame = errors.New("incomplete frame")
)

// Frame is one decoded record.
type Frame struct {
	Op      OpCode
	Payload []byte
}

// FrameWriter handles the safe writing of binary frames to an io.Writer.
type FrameWriter struct {
	w      io.Writer
	header [HeaderSize]byte
}

// NewFrameWriter creates a writer that wraps an underlying io.Writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes the payload into a binary frame and writes it.
// Frame Format: [Magic(1)][OpCode(1)][Length(4)][CRC(4)][Payload(N)]
func (fw *FrameWriter) WriteFrame(op OpCode, payload []byte) error {
	header := fw.header[:]
	header[0] = MagicByte
	header[1] = byte(op)
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload))

	// 'fw.w' is expected to be a bufio.Writer so header and payload reach the
	// file in a single syscall.
	if _, err := fw.w.Write(header); err != nil {
		return err
	}
	if _, err := fw.w.Write(payload); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads the next frame from the reader, validating the Magic Byte
// and the CRC32 checksum. It returns the frame, the total bytes read
// (header + payload) and an error. io.EOF is returned only at a clean frame
// boundary.
func ReadFrame(r io.Reader) (Frame, int, error) {
	var header [HeaderSize]byte

	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, 0, io.EOF
		}
		// Partial header (e.g. 5 bytes then EOF) means a torn write.
		return Frame{}, 0, ErrIncompleteFrame
	}

	if header[0] != MagicByte {
		return Frame{}, HeaderSize, ErrInvalidMagic
	}

	length := binary.LittleEndian.Uint32(header[2:6])
	expectedCRC := binary.LittleEndian.Uint32(header[6:10])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		// Even if it's EOF here, it's an error because we expected 'length' bytes.
		return Frame{}, HeaderSize, ErrIncompleteFrame
	}

	if crc32.ChecksumIEEE(payload) != expectedCRC {
		return Frame{}, HeaderSize + int(length), ErrChecksumMismatch
	}

	return Frame{Op: OpCode(header[1]), Payload: payload}, HeaderSize + int(length), nil
}
