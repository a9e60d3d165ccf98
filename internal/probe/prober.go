package probe

import (
	"context"
	"path/filepath"
	"strings"
)

// Prober is the capability set spec.md §4.D requires of every probe
// backend: probe a file, report your name, and report whether you can
// handle this particular path.
type Prober interface {
	Name() string
	Supports(path string) bool
	Probe(ctx context.Context, path string) (*MediaInfo, error)
}

// containerFromExt maps a file extension to MediaInfo.Container.
func containerFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mkv":
		return "mkv"
	case ".mp4", ".m4v":
		return "mp4"
	default:
		return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
}
