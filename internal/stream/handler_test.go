package stream

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidecast/mediapipe/internal/hls"
	"github.com/tidecast/mediapipe/internal/hlscache"
	"github.com/tidecast/mediapipe/internal/mp4"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// writeSourceFile writes content to a temp file and returns its path.
func writeSourceFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mp4")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func newTestHandler(t *testing.T, media *hls.PreparedMedia) *Handler {
	t.Helper()
	cache := hlscache.New(200, 0, func(id string) (*hls.PreparedMedia, error) {
		return media, nil
	})
	return NewHandler(cache)
}

func newTestRouter(h *Handler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r, "")
	return r
}

func TestServePlaylistReturnsCachedVariant(t *testing.T) {
	media := &hls.PreparedMedia{VariantPlaylist: "#EXTM3U\n#EXT-X-ENDLIST\n"}
	r := newTestRouter(newTestHandler(t, media))

	req := httptest.NewRequest(http.MethodGet, "/stream/movie-1/index.m3u8", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Equal(t, media.VariantPlaylist, w.Body.String())
}

func TestServeInitReturnsInitSegmentBytes(t *testing.T) {
	initSegment := []byte{0x00, 0x00, 0x00, 0x10, 'f', 't', 'y', 'p', 'x', 'x', 'x', 'x', 1, 2, 3, 4}
	media := &hls.PreparedMedia{InitSegment: initSegment}
	r := newTestRouter(newTestHandler(t, media))

	req := httptest.NewRequest(http.MethodGet, "/stream/movie-1/init.mp4", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, initSegment, w.Body.Bytes())
}

func TestServeSegmentReturnsExactBytes(t *testing.T) {
	videoPayload := []byte("video-sample-bytes-0123456789")
	audioPayload := []byte("audio-bytes")
	sourcePath := writeSourceFile(t, append(append([]byte{}, videoPayload...), audioPayload...))

	seg := hls.PrecomputedSegment{
		Index:      0,
		MoofBytes:  []byte("MOOFBOX"),
		MdatHeader: []byte{0x00, 0x00, 0x00, 0x08, 'm', 'd', 'a', 't'},
		VideoRanges: []mp4.DataRange{
			{FileOffset: 0, Length: uint64(len(videoPayload))},
		},
		AudioRanges: []mp4.DataRange{
			{FileOffset: uint64(len(videoPayload)), Length: uint64(len(audioPayload))},
		},
		DataLength: uint64(len(videoPayload) + len(audioPayload)),
	}
	media := &hls.PreparedMedia{SourcePath: sourcePath, Segments: []hls.PrecomputedSegment{seg}}
	r := newTestRouter(newTestHandler(t, media))

	req := httptest.NewRequest(http.MethodGet, "/stream/movie-1/segment_0.m4s", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/iso.segment", w.Header().Get("Content-Type"))
	assert.Equal(t, "none", w.Header().Get("Accept-Ranges"))

	expected := append(append(append([]byte{}, seg.MoofBytes...), seg.MdatHeader...), videoPayload...)
	expected = append(expected, audioPayload...)
	assert.Equal(t, expected, w.Body.Bytes())
	assert.Equal(t, len(expected), w.Body.Len())
}

func TestServeSegmentOutOfRangeIndexIsNotFound(t *testing.T) {
	media := &hls.PreparedMedia{Segments: []hls.PrecomputedSegment{{Index: 0}}}
	r := newTestRouter(newTestHandler(t, media))

	req := httptest.NewRequest(http.MethodGet, "/stream/movie-1/segment_9.m4s", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPathTraversalFilenamesAreRejected(t *testing.T) {
	var populateCalls int
	cache := hlscache.New(200, 0, func(id string) (*hls.PreparedMedia, error) {
		populateCalls++
		return &hls.PreparedMedia{Segments: []hls.PrecomputedSegment{{Index: 0}}}, nil
	})
	r := newTestRouter(NewHandler(cache))

	bad := []string{
		"../../../etc/passwd",
		"..%2F..%2F..%2Fetc%2Fpasswd",
		"segment_..%2Fevil.m4s",
		".hidden",
		"segment_0.m4s%2F..",
		"init.mp4.bak",
		"segment_abc.m4s",
	}
	for _, name := range bad {
		req := httptest.NewRequest(http.MethodGet, "/stream/movie-1/"+name, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "filename %q should be rejected", name)
	}
	assert.Zero(t, populateCalls, "path-traversal refusal must not touch the cache")
}

func TestServeDirectSupportsRangeRequests(t *testing.T) {
	content := []byte("0123456789ABCDEFGHIJ")
	sourcePath := writeSourceFile(t, content)
	media := &hls.PreparedMedia{SourcePath: sourcePath}
	r := newTestRouter(newTestHandler(t, media))

	req := httptest.NewRequest(http.MethodGet, "/stream/movie-1/direct", nil)
	req.Header.Set("Range", "bytes=5-9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 5-9/20", w.Header().Get("Content-Range"))
	assert.Equal(t, content[5:10], w.Body.Bytes())
}

func TestServeDirectUnsatisfiableRangeReturns416(t *testing.T) {
	content := []byte("short")
	sourcePath := writeSourceFile(t, content)
	media := &hls.PreparedMedia{SourcePath: sourcePath}
	r := newTestRouter(newTestHandler(t, media))

	req := httptest.NewRequest(http.MethodGet, "/stream/movie-1/direct", nil)
	req.Header.Set("Range", "bytes=1000-2000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
}

func TestServeDirectWholeFileWithoutRange(t *testing.T) {
	content := []byte("entire-file-contents")
	sourcePath := writeSourceFile(t, content)
	media := &hls.PreparedMedia{SourcePath: sourcePath}
	r := newTestRouter(newTestHandler(t, media))

	req := httptest.NewRequest(http.MethodGet, "/stream/movie-1/direct", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
}
