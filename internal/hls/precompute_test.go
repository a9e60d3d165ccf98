package hls

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecast/mediapipe/internal/mp4"
)

// syntheticVideoTrack builds a 24-second, 1-tick-per-second video track with
// a keyframe every 6 samples (mirroring the "HLS precompute on 24-second
// video" scenario): 24 samples, DTS 0..23, keyframes at 0, 6, 12, 18.
func syntheticVideoTrack() *mp4.Track {
	samples := make([]mp4.Sample, 24)
	var offset uint64
	for i := range samples {
		samples[i] = mp4.Sample{
			Index:      i,
			DTS:        uint64(i),
			Size:       1000,
			Offset:     offset,
			IsKeyframe: i%6 == 0,
		}
		offset += 1000
	}
	return &mp4.Track{
		TrackID:   1,
		Kind:      mp4.MediaKindVideo,
		Timescale: 1,
		Duration:  24,
		Codec:     "avc1",
		Samples:   samples,
	}
}

func TestBuildSegmentBoundsFourSegmentsOfSix(t *testing.T) {
	video := syntheticVideoTrack()
	bounds := buildSegmentBounds(video, 6)
	require.Len(t, bounds, 4)

	want := []segmentBounds{
		{startSample: 0, endSample: 6},
		{startSample: 6, endSample: 12},
		{startSample: 12, endSample: 18},
		{startSample: 18, endSample: 24},
	}
	assert.Equal(t, want, bounds)

	// Segments partition the sample table.
	for i := 0; i < len(bounds)-1; i++ {
		assert.Equal(t, bounds[i].endSample, bounds[i+1].startSample)
	}
	assert.Equal(t, 0, bounds[0].startSample)
	assert.Equal(t, len(video.Samples), bounds[len(bounds)-1].endSample)
}

func TestBuildSegmentBoundsNoKeyframesIsEmpty(t *testing.T) {
	video := syntheticVideoTrack()
	for i := range video.Samples {
		video.Samples[i].IsKeyframe = false
	}
	bounds := buildSegmentBounds(video, 6)
	assert.Nil(t, bounds)
}

func TestBuildSegmentVideoOnlyDataLengthAndDuration(t *testing.T) {
	video := syntheticVideoTrack()
	bounds := buildSegmentBounds(video, 6)
	require.Len(t, bounds, 4)

	var totalDuration float64
	for i, b := range bounds {
		seg, err := buildSegment(i, b, video, nil)
		require.NoError(t, err)

		wantLen := mp4.TotalLength(seg.VideoRanges)
		assert.Equal(t, wantLen, seg.DataLength)
		assert.Equal(t, float64(6), seg.DurationSecs)
		assert.Equal(t, b.startSample, seg.StartSample)
		assert.Equal(t, b.endSample, seg.EndSample)
		totalDuration += seg.DurationSecs
	}
	assert.InDelta(t, 24.0, totalDuration, 1.0)
}

func TestBuildVariantPlaylistFormat(t *testing.T) {
	segments := []PrecomputedSegment{
		{Index: 0, DurationSecs: 5.983},
		{Index: 1, DurationSecs: 6.0},
	}
	playlist := buildVariantPlaylist(segments, "/stream/abc")

	assert.Contains(t, playlist, "#EXTM3U\n")
	assert.Contains(t, playlist, "#EXT-X-VERSION:7\n")
	assert.Contains(t, playlist, "#EXT-X-TARGETDURATION:6\n")
	assert.Contains(t, playlist, "#EXT-X-MEDIA-SEQUENCE:0\n")
	assert.Contains(t, playlist, "#EXT-X-PLAYLIST-TYPE:VOD\n")
	assert.Contains(t, playlist, "#EXT-X-INDEPENDENT-SEGMENTS\n")
	assert.Contains(t, playlist, `#EXT-X-MAP:URI="/stream/abc/init.mp4"`+"\n")
	assert.Contains(t, playlist, "#EXTINF:5.983000,\n/stream/abc/segment_0.m4s\n")
	assert.Contains(t, playlist, "#EXTINF:6.000000,\n/stream/abc/segment_1.m4s\n")
	assert.True(t, bytes.HasSuffix([]byte(playlist), []byte("#EXT-X-ENDLIST\n")))
}

// --- full on-disk round trip ---------------------------------------------

// writeSyntheticMp4 builds a real, parseable MP4 file on disk with a single
// video track: sampleCount 1-byte-timescale-second samples of size
// sampleSize, a keyframe every keyframeInterval samples, contiguous chunk
// offsets starting right after the moov box. Exercises mp4.Parse end to end
// so Precompute runs against the same code path a real ffmpeg-produced file
// would.
func writeSyntheticMp4(t *testing.T, sampleCount, keyframeInterval int, sampleSize uint32) string {
	t.Helper()
	avcC := []byte{0x01, 0x64, 0x00, 0x1f, 0xff, 0xe1, 0x00, 0x00, 0x01, 0x00, 0x00}
	ftyp := mp4.WriteFtyp()

	// The writer's WriteVideoTrak always emits an empty stbl, so the moov
	// here is assembled by hand with a real sample table (stts/stsc/stsz/
	// stco/stss) instead, giving mp4.Parse real samples to walk.
	var moov []byte
	stsd := stsdBoxFor(avcC)
	stts := sttsBox(sampleCount)
	stsz := stszBox(sampleSize, sampleCount)
	stsc := stscBox(sampleCount)
	stss := stssBox(sampleCount, keyframeInterval)

	const mdatHeaderLen = 8

	// First build moov with a placeholder stco so we can learn moov's size,
	// then rebuild with the real chunk offset (mdat payload starts right
	// after ftyp+moov+mdatHeader).
	stco := stcoBox(0)
	stbl := rawBox("stbl", concatAll(stsd, stts, stsc, stsz, stco, stss))
	moovSize := len(moovWith(stbl))
	mdatOffset := uint64(len(ftyp) + moovSize + mdatHeaderLen)

	stco = stcoBox(mdatOffset)
	stbl = rawBox("stbl", concatAll(stsd, stts, stsc, stsz, stco, stss))
	moov = moovWith(stbl)

	payload := make([]byte, sampleCount*int(sampleSize))
	mdat := rawBox("mdat", payload)

	var buf bytes.Buffer
	buf.Write(ftyp)
	buf.Write(moov)
	buf.Write(mdat)

	path := filepath.Join(t.TempDir(), "profile_b.mp4")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func moovWith(stbl []byte) []byte {
	minf := rawBox("minf", concatAll(rawFullBox("vmhd", 0, 1, make([]byte, 8)), dinfBox(), stbl))
	mdia := rawBox("mdia", concatAll(mdhdBox(), hdlrBox("vide"), minf))
	tkhd := tkhdBox()
	trak := rawBox("trak", concatAll(tkhd, mdia))
	mvex := mp4.WriteMvex(1)
	return mp4.WriteMoov(1, 24, 2, [][]byte{trak}, mvex)
}

func concatAll(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func rawBox(typ string, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(payload)))
	copy(out[4:8], typ)
	copy(out[8:], payload)
	return out
}

func rawFullBox(typ string, version uint8, flags uint32, payload []byte) []byte {
	head := make([]byte, 4+len(payload))
	head[0] = version
	head[1] = byte(flags >> 16)
	head[2] = byte(flags >> 8)
	head[3] = byte(flags)
	copy(head[4:], payload)
	return rawBox(typ, head)
}

func tkhdBox() []byte {
	p := make([]byte, 84)
	binary.BigEndian.PutUint32(p[8:12], 1)
	binary.BigEndian.PutUint32(p[20:24], 24)
	binary.BigEndian.PutUint32(p[76:80], uint32(1920)<<16)
	binary.BigEndian.PutUint32(p[80:84], uint32(1080)<<16)
	return rawFullBox("tkhd", 0, 7, p)
}

func mdhdBox() []byte {
	p := make([]byte, 20)
	binary.BigEndian.PutUint32(p[8:12], 1)  // timescale
	binary.BigEndian.PutUint32(p[12:16], 24) // duration
	return rawFullBox("mdhd", 0, 0, p)
}

func hdlrBox(handlerType string) []byte {
	p := make([]byte, 21)
	copy(p[4:8], handlerType)
	return rawFullBox("hdlr", 0, 0, p)
}

func dinfBox() []byte {
	urlBox := rawFullBox("url ", 0, 1, nil)
	dref := make([]byte, 4)
	binary.BigEndian.PutUint32(dref, 1)
	dref = append(dref, urlBox...)
	return rawBox("dinf", rawFullBox("dref", 0, 0, dref))
}

func stsdBoxFor(avcC []byte) []byte {
	entry := make([]byte, 78)
	binary.BigEndian.PutUint16(entry[24:26], 1920)
	binary.BigEndian.PutUint16(entry[26:28], 1080)
	binary.BigEndian.PutUint16(entry[74:76], 24)
	entry = append(entry, rawBox("avcC", avcC)...)
	sampleEntry := rawBox("avc1", entry)
	body := make([]byte, 4)
	binary.BigEndian.PutUint32(body, 1)
	body = append(body, sampleEntry...)
	return rawFullBox("stsd", 0, 0, body)
}

func sttsBox(sampleCount int) []byte {
	body := make([]byte, 12)
	binary.BigEndian.PutUint32(body[0:4], 1) // entry count
	binary.BigEndian.PutUint32(body[4:8], uint32(sampleCount))
	binary.BigEndian.PutUint32(body[8:12], 1) // 1 tick per sample
	return rawFullBox("stts", 0, 0, body)
}

func stszBox(sampleSize uint32, sampleCount int) []byte {
	body := make([]byte, 8)
	binary.BigEndian.PutUint32(body[0:4], sampleSize)
	binary.BigEndian.PutUint32(body[4:8], uint32(sampleCount))
	return rawFullBox("stsz", 0, 0, body)
}

func stcoBox(firstChunkOffset uint64) []byte {
	body := make([]byte, 8)
	binary.BigEndian.PutUint32(body[0:4], 1)
	binary.BigEndian.PutUint32(body[4:8], uint32(firstChunkOffset))
	return rawFullBox("stco", 0, 0, body)
}

// stscBox describes a single chunk holding every sample (matches stcoBox's
// single chunk-offset entry).
func stscBox(sampleCount int) []byte {
	body := make([]byte, 16)
	binary.BigEndian.PutUint32(body[0:4], 1) // entry count
	binary.BigEndian.PutUint32(body[4:8], 1) // first_chunk
	binary.BigEndian.PutUint32(body[8:12], uint32(sampleCount))
	binary.BigEndian.PutUint32(body[12:16], 1) // sample_description_index
	return rawFullBox("stsc", 0, 0, body)
}

func stssBox(sampleCount, keyframeInterval int) []byte {
	var indices []uint32
	for i := 0; i < sampleCount; i += keyframeInterval {
		indices = append(indices, uint32(i+1)) // stss is 1-based
	}
	body := make([]byte, 4+4*len(indices))
	binary.BigEndian.PutUint32(body[0:4], uint32(len(indices)))
	for i, idx := range indices {
		binary.BigEndian.PutUint32(body[4+i*4:8+i*4], idx)
	}
	return rawFullBox("stss", 0, 0, body)
}

func TestPrecomputeEndToEndFourSegments(t *testing.T) {
	path := writeSyntheticMp4(t, 24, 6, 1000)

	media, err := Precompute(path, 6, "/stream/abc")
	require.NoError(t, err)
	require.Len(t, media.Segments, 4)

	for i, seg := range media.Segments {
		assert.Equal(t, float64(6), seg.DurationSecs)
		assert.Equal(t, i*6, seg.StartSample)
		assert.Equal(t, (i+1)*6, seg.EndSample)
		wantLen := uint64(6 * 1000)
		assert.Equal(t, wantLen, seg.DataLength)
	}
	for i := 0; i < len(media.Segments)-1; i++ {
		assert.Equal(t, media.Segments[i].EndSample, media.Segments[i+1].StartSample)
	}

	assert.Contains(t, media.VariantPlaylist, "#EXT-X-TARGETDURATION:6\n")
	assert.Contains(t, media.VariantPlaylist, "segment_3.m4s")
	assert.NotEmpty(t, media.InitSegment)
	assert.InDelta(t, 24.0, media.DurationSecs, 0.001)
}

func TestPrecomputeSegmentBytesExactLength(t *testing.T) {
	path := writeSyntheticMp4(t, 24, 6, 1000)
	media, err := Precompute(path, 6, "/stream/abc")
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	for _, seg := range media.Segments {
		var body []byte
		body = append(body, seg.MoofBytes...)
		body = append(body, seg.MdatHeader...)
		for _, r := range seg.VideoRanges {
			buf := make([]byte, r.Length)
			_, err := f.ReadAt(buf, int64(r.FileOffset))
			require.NoError(t, err)
			body = append(body, buf...)
		}
		wantLen := len(seg.MoofBytes) + len(seg.MdatHeader) + int(seg.DataLength)
		assert.Equal(t, wantLen, len(body))
	}
}
