// Package tools probes, once at startup, which external CLI binaries
// (ffmpeg, ffprobe, mkvmerge, dovi_tool, mediainfo) are actually available,
// following the teacher's mediainfo.Extractor pattern of resolving a binary
// with exec.LookPath and falling back to the bare name on PATH.
package tools

import (
	"os/exec"
	"sync"

	"github.com/tidecast/mediapipe/internal/config"
	"github.com/tidecast/mediapipe/internal/logger"
)

// Name identifies one of the external CLI tools the pipeline shells out to.
type Name string

const (
	FFmpeg    Name = "ffmpeg"
	FFprobe   Name = "ffprobe"
	Mkvmerge  Name = "mkvmerge"
	DoviTool  Name = "dovi_tool"
	Mediainfo Name = "mediainfo"
)

// Registry resolves each tool's on-disk path exactly once at process
// startup and is immutable afterward (spec.md §5 "concurrency shared-state
// policy": tool registry is read-mostly / concurrent-map semantics, and
// in practice never mutates past boot).
type Registry struct {
	mu        sync.RWMutex
	resolved  map[Name]string
	available map[Name]bool
}

// NewRegistry probes every tool named in cfg against the host PATH.
func NewRegistry(cfg config.ToolsConfig) *Registry {
	log := logger.Named("tools")
	r := &Registry{
		resolved:  make(map[Name]string),
		available: make(map[Name]bool),
	}

	candidates := map[Name]string{
		FFmpeg:    cfg.FFmpegPath,
		FFprobe:   cfg.FFprobePath,
		Mkvmerge:  cfg.MkvmergePath,
		DoviTool:  cfg.DoviToolPath,
		Mediainfo: cfg.MediainfoPath,
	}

	for name, configured := range candidates {
		bin := configured
		if bin == "" {
			bin = string(name)
		}
		resolved, err := exec.LookPath(bin)
		if err != nil {
			log.Warn("tool not found on PATH", "tool", name, "configured_path", bin)
			r.resolved[name] = bin
			r.available[name] = false
			continue
		}
		log.Debug("resolved tool", "tool", name, "path", resolved)
		r.resolved[name] = resolved
		r.available[name] = true
	}
	return r
}

// Path returns the resolved (or configured-but-unresolved) path for a tool.
func (r *Registry) Path(name Name) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolved[name]
}

// Available reports whether a tool was found on PATH at startup.
func (r *Registry) Available(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available[name]
}
