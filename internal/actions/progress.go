package actions

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidecast/mediapipe/internal/logger"
)

// ProgressEvent is one coalesced snapshot of ffmpeg's `-progress pipe:2`
// key=value stream (spec.md §4.F "ProfileBEncode").
type ProgressEvent struct {
	OutTimeUs int64
	FPS       float64
	Bitrate   string
	Speed     float64
	TotalSize int64
	Frame     int64
	Done      bool
}

// ProgressCallback receives a throttled stream of ProgressEvent snapshots.
type ProgressCallback func(ProgressEvent)

var progressLineRegex = regexp.MustCompile(`^(\w+)=\s*(.+)$`)

// watchProgress scans ffmpeg's stderr for `-progress pipe:2 -nostats`
// key=value lines, accumulating a running ProgressEvent and invoking cb at
// most once every throttle duration, plus once more on the terminating
// `progress=end` line (spec.md §4.F, §9 "Progress callback throttling").
func watchProgress(stderr io.Reader, throttle time.Duration, cb ProgressCallback) {
	log := logger.Named("actions.progress")
	if cb == nil {
		// Still drain stderr so the child process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, stderr)
		return
	}

	scanner := bufio.NewScanner(stderr)
	var event ProgressEvent
	lastFired := time.Time{}

	for scanner.Scan() {
		line := scanner.Text()
		m := progressLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, value := m[1], strings.TrimSpace(m[2])

		switch key {
		case "out_time_us":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				event.OutTimeUs = v
			}
		case "fps":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				event.FPS = v
			}
		case "bitrate":
			event.Bitrate = value
		case "speed":
			if v, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
				event.Speed = v
			}
		case "total_size":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				event.TotalSize = v
			}
		case "frame":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				event.Frame = v
			}
		case "progress":
			now := time.Now()
			isEnd := value == "end"
			if isEnd || now.Sub(lastFired) >= throttle {
				event.Done = isEnd
				cb(event)
				lastFired = now
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("error reading ffmpeg progress stream", "error", err)
	}
}
