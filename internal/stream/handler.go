package stream

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tidecast/mediapipe/internal/hls"
	"github.com/tidecast/mediapipe/internal/hlscache"
	"github.com/tidecast/mediapipe/internal/logger"
	"github.com/tidecast/mediapipe/internal/mp4"
)

// segmentFilenamePattern is the path-traversal defence named in spec.md §4.K:
// anything that isn't exactly an init segment or a well-formed numbered
// segment is rejected outright.
var segmentFilenamePattern = regexp.MustCompile(`^(init\.mp4|segment_[0-9]+\.m4s)$`)

// Handler serves prepared HLS media out of a hlscache.Cache.
type Handler struct {
	Cache *hlscache.Cache
}

// NewHandler builds a segment-server Handler backed by cache.
func NewHandler(cache *hlscache.Cache) *Handler {
	return &Handler{Cache: cache}
}

// RegisterRoutes wires the public contract of spec.md §4.K under
// <base>/stream/:id/.... Everything past :id is matched by one wildcard and
// dispatched by dispatchPath, rather than leaning on gin's own per-segment
// tree matching — that lets path-traversal attempts (".." segments, stray
// slashes) be rejected explicitly with 400 before the cache is ever touched,
// instead of the router silently 404ing or redirecting on a cleaned path.
func (h *Handler) RegisterRoutes(r gin.IRouter, base string) {
	group := r.Group(base + "/stream/:id")
	group.GET("/*rest", h.dispatchPath)
}

func (h *Handler) resolve(c *gin.Context) (*hls.PreparedMedia, bool) {
	id := c.Param("id")
	media, err := h.Cache.GetOrPopulate(id)
	if err != nil {
		logger.Named("stream").Warn("populate failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "media unavailable"})
		return nil, false
	}
	return media, true
}

// dispatchPath implements spec.md §4.K's public contract and its
// path-traversal defence in one place: rest must be exactly one non-empty
// path segment naming one of the four known endpoints. Anything else —
// embedded "/" or "\", "..", a stray leading ".", or an unrecognized name —
// is rejected with 400 before the cache is ever consulted.
func (h *Handler) dispatchPath(c *gin.Context) {
	rest := strings.TrimPrefix(c.Param("rest"), "/")

	switch {
	case rest == "index.m3u8":
		h.servePlaylist(c)
	case rest == "direct":
		h.serveDirect(c)
	case segmentFilenamePattern.MatchString(rest):
		h.serveSegmentOrInit(c, rest)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request path"})
	}
}

func (h *Handler) servePlaylist(c *gin.Context) {
	media, ok := h.resolve(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "application/vnd.apple.mpegurl")
	c.String(http.StatusOK, media.VariantPlaylist)
}

// serveSegmentOrInit dispatches init.mp4 and segment_N.m4s requests; the
// caller (dispatchPath) has already checked filename against
// segmentFilenamePattern.
func (h *Handler) serveSegmentOrInit(c *gin.Context, filename string) {
	media, ok := h.resolve(c)
	if !ok {
		return
	}

	if filename == "init.mp4" {
		h.writeWholeBody(c, "video/mp4", media.InitSegment)
		return
	}

	index, err := segmentIndex(filename)
	if err != nil || index < 0 || index >= len(media.Segments) {
		c.JSON(http.StatusNotFound, gin.H{"error": "segment not found"})
		return
	}
	h.serveSegment(c, media, &media.Segments[index])
}

// segmentIndex parses the N out of "segment_N.m4s" back into a slice index
// (playlists are written with 0-based segment numbers, spec.md §6).
func segmentIndex(filename string) (int, error) {
	var n int
	_, err := fmt.Sscanf(filename, "segment_%d.m4s", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (h *Handler) writeWholeBody(c *gin.Context, contentType string, body []byte) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Length", strconv.Itoa(len(body)))
	c.Header("Connection", "close")
	c.Data(http.StatusOK, contentType, body)
}

// serveSegment implements the serving algorithm of spec.md §4.K step 3-5:
// headers, then moof bytes, mdat header, and the video/audio data ranges in
// order, the ranges sent straight from the source file's fd where possible.
func (h *Handler) serveSegment(c *gin.Context, media *hls.PreparedMedia, seg *hls.PrecomputedSegment) {
	contentLength := int64(len(seg.MoofBytes)) + int64(len(seg.MdatHeader)) + int64(seg.DataLength)

	f, err := os.Open(media.SourcePath)
	if err != nil {
		logger.Named("stream").Warn("open source failed", "path", media.SourcePath, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	defer f.Close()

	connFile, conn, bufw, hijacked := tryHijack(c, contentLength)
	if !hijacked {
		c.Header("Content-Type", "video/iso.segment")
		c.Header("Content-Length", strconv.FormatInt(contentLength, 10))
		c.Header("Connection", "close")
		c.Header("Accept-Ranges", "none")
		c.Status(http.StatusOK)
		if err := writeSegmentBody(c.Writer, f, seg); err != nil {
			logger.Named("stream").Warn("segment write failed", "error", err)
		}
		return
	}
	defer conn.Close()
	defer connFile.Close()

	if err := writeSegmentBodyFd(bufw, int(connFile.Fd()), f, seg); err != nil {
		logger.Named("stream").Warn("segment sendfile failed", "error", err)
	}
	bufw.Flush()
}

// allRanges orders a segment's data ranges video-then-audio, the sequence
// spec.md §4.K's serving algorithm and §5's ordering guarantee both require.
func allRanges(seg *hls.PrecomputedSegment) []mp4.DataRange {
	return append(append([]mp4.DataRange{}, seg.VideoRanges...), seg.AudioRanges...)
}

func writeSegmentBody(w io.Writer, f *os.File, seg *hls.PrecomputedSegment) error {
	if _, err := w.Write(seg.MoofBytes); err != nil {
		return err
	}
	if _, err := w.Write(seg.MdatHeader); err != nil {
		return err
	}
	for _, r := range allRanges(seg) {
		if err := copyRangePread(w, f, int64(r.FileOffset), int64(r.Length), 0); err != nil {
			return err
		}
	}
	return nil
}

func writeSegmentBodyFd(w *bufio.Writer, dstFd int, f *os.File, seg *hls.PrecomputedSegment) error {
	if _, err := w.Write(seg.MoofBytes); err != nil {
		return err
	}
	if _, err := w.Write(seg.MdatHeader); err != nil {
		return err
	}
	w.Flush() // header bytes must reach the socket before we bypass the buffer
	for _, r := range allRanges(seg) {
		if err := sendFileFd(dstFd, f, int64(r.FileOffset), int64(r.Length)); err != nil {
			// sendfile can't be used for this range (unsupported platform,
			// or the syscall itself failed); fall back to buffered copy and
			// flush immediately so later sendfile calls can't race ahead of
			// bytes still sitting in the bufio buffer.
			if err := copyRangePread(w, f, int64(r.FileOffset), int64(r.Length), 0); err != nil {
				return err
			}
			w.Flush()
		}
	}
	return nil
}

// tryHijack attempts to take over the raw connection so segment data ranges
// can bypass c.Writer via sendfile(2) (spec.md §4.K). It writes the full
// status line and headers itself since once hijacked gin/net-http no longer
// owns the response. Returns hijacked=false (leaving c.Writer untouched) for
// ResponseWriters that don't support hijacking, e.g. httptest recorders.
func tryHijack(c *gin.Context, contentLength int64) (connFile *os.File, conn net.Conn, bufw *bufio.Writer, hijacked bool) {
	hj, ok := c.Writer.(http.Hijacker)
	if !ok {
		return nil, nil, nil, false
	}
	rawConn, rw, err := hj.Hijack()
	if err != nil {
		return nil, nil, nil, false
	}

	fileGetter, ok := rawConn.(interface{ File() (*os.File, error) })
	if !ok {
		rawConn.Close()
		return nil, nil, nil, false
	}
	f, err := fileGetter.File()
	if err != nil {
		rawConn.Close()
		return nil, nil, nil, false
	}

	header := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Type: video/iso.segment\r\nContent-Length: %d\r\nConnection: close\r\nAccept-Ranges: none\r\n\r\n",
		contentLength,
	)
	if _, err := rw.WriteString(header); err != nil {
		f.Close()
		rawConn.Close()
		return nil, nil, nil, false
	}
	return f, rawConn, rw.Writer, true
}

// serveDirect streams the source file with HTTP Range support (spec.md §4.K
// "direct" endpoint). Range parsing and conditional-GET handling is
// delegated to net/http.ServeContent, which implements the Range/If-Range
// contract exactly; nothing in the teacher's or pack's third-party stack
// re-implements RFC 7233 range parsing, so this is the one place this
// package reaches for a standard-library facility instead of an ecosystem
// dependency.
func (h *Handler) serveDirect(c *gin.Context) {
	media, ok := h.resolve(c)
	if !ok {
		return
	}
	f, err := os.Open(media.SourcePath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "source file not found"})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Header("Accept-Ranges", "bytes")
	http.ServeContent(c.Writer, c.Request, fileBaseName(media.SourcePath), modTimeOrZero(info), f)
}

func fileBaseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func modTimeOrZero(info os.FileInfo) time.Time {
	if info == nil {
		return time.Time{}
	}
	return info.ModTime()
}
