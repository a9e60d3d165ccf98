//go:build linux

package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

// sendFileFd transfers length bytes starting at offset from src directly to
// dstFd via the sendfile(2) syscall, bypassing userspace entirely (spec.md
// §4.K "sendfile-based zero-copy"). dstFd must be a real socket fd.
func sendFileFd(dstFd int, src *os.File, offset int64, length int64) error {
	remaining := length
	off := offset
	for remaining > 0 {
		n, err := unix.Sendfile(dstFd, int(src.Fd()), &off, int(remaining))
		if n > 0 {
			remaining -= int64(n)
		}
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return err
		}
		if n == 0 {
			break
		}
	}
	return nil
}
