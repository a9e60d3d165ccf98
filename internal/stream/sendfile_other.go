//go:build !linux

package stream

import "os"

// sendFileFd has no native zero-copy path on this platform; callers fall
// back to copyRangePread (spec.md §9 "sendfile fallback").
func sendFileFd(dstFd int, src *os.File, offset int64, length int64) error {
	return errSendfileUnsupported
}
