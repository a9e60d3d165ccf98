// Package mp4 implements the ISO BMFF box parser and writer that back
// spec.md components 4.A (Box parser) and 4.B (Box writer). It reads sample
// tables and codec-config blobs out of a source container and writes
// ftyp/moov/mvex initialization boxes and moof/mdat media-fragment boxes
// byte-exactly per ISO/IEC 14496-12.
package mp4

import (
	"encoding/binary"
	"fmt"
	"io"
)

// boxHeader is a single (size, type) pair read off the wire. size==1 means
// the real size follows as a 64-bit largesize immediately after the header.
type boxHeader struct {
	Size       uint64 // total box size including header
	Type       string // 4-character box type
	HeaderLen  int64  // bytes consumed by (size,type[,largesize])
	BodyOffset int64  // absolute file offset the payload starts at
}

// containerBoxTypes are boxes whose payload is itself a sequence of boxes.
var containerBoxTypes = map[string]bool{
	"moov": true,
	"trak": true,
	"mdia": true,
	"minf": true,
	"stbl": true,
	"dinf": true,
	"mvex": true,
	"edts": true,
	"udta": true,
}

// readBoxHeader reads one box header at the current reader position.
func readBoxHeader(r io.ReadSeeker) (boxHeader, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return boxHeader{}, err
	}

	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return boxHeader{}, io.EOF
		}
		return boxHeader{}, fmt.Errorf("read box header: %w", err)
	}

	size := uint64(binary.BigEndian.Uint32(hdr[0:4]))
	typ := string(hdr[4:8])
	headerLen := int64(8)

	if size == 1 {
		var large [8]byte
		if _, err := io.ReadFull(r, large[:]); err != nil {
			return boxHeader{}, fmt.Errorf("read largesize for box %s: %w", typ, err)
		}
		size = binary.BigEndian.Uint64(large[:])
		headerLen = 16
	}

	if size != 0 && size < uint64(headerLen) {
		return boxHeader{}, invalidMp4f("box %s has size %d smaller than its own header (%d)", typ, size, headerLen)
	}

	return boxHeader{
		Size:       size,
		Type:       typ,
		HeaderLen:  headerLen,
		BodyOffset: start + headerLen,
	}, nil
}

// bodyLen returns the number of payload bytes following the header. A
// size of 0 means "extends to end of file", which box.go callers resolve
// against the known file length.
func (h boxHeader) bodyLen(fileSize int64) int64 {
	if h.Size == 0 {
		return fileSize - h.BodyOffset
	}
	return int64(h.Size) - h.HeaderLen
}

// fullBoxHeader is the 4-byte version+flags prefix ISO BMFF "full boxes"
// (stsd, stsz, stts, ...) carry ahead of their payload.
type fullBoxHeader struct {
	Version uint8
	Flags   uint32 // 24-bit, top byte unused
}

func readFullBoxHeader(r io.Reader) (fullBoxHeader, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return fullBoxHeader{}, err
	}
	return fullBoxHeader{
		Version: b[0],
		Flags:   uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]),
	}, nil
}

func invalidMp4f(format string, args ...interface{}) error {
	return &invalidMp4Error{msg: fmt.Sprintf(format, args...)}
}

// invalidMp4Error is returned (wrapped by apperrors.InvalidMp4 at the
// package boundary callers use) whenever the container violates the
// structural invariants spec.md §4.A requires.
type invalidMp4Error struct{ msg string }

func (e *invalidMp4Error) Error() string { return e.msg }
