// Package stream implements the segment server (spec.md §4.K): it serves the
// variant playlist, init segment, and media segments of a PreparedMedia out
// of internal/hlscache, plus a Range-aware direct passthrough of the source
// file. Segment bodies are written straight from the source file's fd to the
// client socket via sendfile(2) where the connection can be hijacked down to
// a raw fd, falling back to a buffered pread/write loop everywhere else.
package stream

import (
	"errors"
	"io"
	"os"
)

// copyRangeBufferSize is the chunk size for the portable pread/write
// fallback (spec.md §9 "sendfile fallback": "emulate with an 8 MiB
// pread/write loop").
const copyRangeBufferSize = 8 << 20

var errSendfileUnsupported = errors.New("sendfile unsupported on this platform")

// copyRangePread copies length bytes from src starting at offset to w using
// ReadAt+Write, the portable fallback used whenever a raw destination fd
// isn't available for sendfile (non-Linux targets, hijack failures, or test
// doubles that don't expose a socket).
func copyRangePread(w io.Writer, src *os.File, offset, length int64, bufSize int) error {
	if bufSize <= 0 {
		bufSize = copyRangeBufferSize
	}
	buf := make([]byte, bufSize)
	remaining := length
	pos := offset
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := src.ReadAt(buf[:n], pos)
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return werr
			}
			pos += int64(read)
			remaining -= int64(read)
		}
		if err != nil {
			if err == io.EOF && int64(read) == n {
				continue
			}
			return err
		}
	}
	return nil
}
