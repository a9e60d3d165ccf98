package mp4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tidecast/mediapipe/internal/apperrors"
)

// Container is the result of parsing an MP4 file: the set of tracks with
// their sample tables and codec-config blobs (spec.md §4.A contract).
type Container struct {
	MovieTimescale uint32
	MovieDuration  uint64
	Tracks         []*Track
}

// VideoTrack returns the first video track, if any.
func (c *Container) VideoTrack() *Track {
	for _, t := range c.Tracks {
		if t.Kind == MediaKindVideo {
			return t
		}
	}
	return nil
}

// AudioTrack returns the first audio track, if any.
func (c *Container) AudioTrack() *Track {
	for _, t := range c.Tracks {
		if t.Kind == MediaKindAudio {
			return t
		}
	}
	return nil
}

// Parse reads ftyp+moov from r (which must also support Seek, e.g. *os.File)
// and returns the track sample tables. It never reads mdat's payload bytes;
// sample data is later served directly from disk at fixed byte offsets.
func Parse(r io.ReadSeeker) (*Container, error) {
	fileSize, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, apperrors.Internal("seek to end", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, apperrors.Internal("seek to start", err)
	}

	var sawFtyp, sawMoov bool
	var moovPayload []byte

	pos := int64(0)
	for pos < fileSize {
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return nil, apperrors.Internal("seek", err)
		}
		hdr, err := readBoxHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapInvalid(err)
		}

		bodyLen := hdr.bodyLen(fileSize)
		if bodyLen < 0 {
			return nil, apperrors.InvalidMp4(fmt.Sprintf("box %s has negative body length", hdr.Type))
		}

		switch hdr.Type {
		case "ftyp":
			sawFtyp = true
		case "moov":
			sawMoov = true
			buf := make([]byte, bodyLen)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, apperrors.InvalidMp4("truncated moov box")
			}
			moovPayload = buf
		}

		if hdr.Size == 0 {
			break // box extended to EOF
		}
		pos = hdr.BodyOffset + bodyLen
	}

	if !sawFtyp {
		return nil, apperrors.InvalidMp4("missing ftyp box")
	}
	if !sawMoov {
		return nil, apperrors.InvalidMp4("missing moov box")
	}

	return parseMoov(moovPayload)
}

func wrapInvalid(err error) error {
	if _, ok := err.(*invalidMp4Error); ok {
		return apperrors.InvalidMp4(err.Error())
	}
	return apperrors.InvalidMp4(err.Error())
}

// childBox is one box found while walking a container payload held in memory.
type childBox struct {
	Type    string
	Payload []byte
}

// walkChildren splits a container box's payload into its immediate children.
func walkChildren(payload []byte) ([]childBox, error) {
	var out []childBox
	r := bytes.NewReader(payload)
	total := int64(len(payload))

	for {
		pos, _ := r.Seek(0, io.SeekCurrent)
		if pos >= total {
			break
		}
		hdr, err := readBoxHeader(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		bodyLen := hdr.bodyLen(total)
		if bodyLen < 0 || hdr.BodyOffset+bodyLen > total {
			return nil, invalidMp4f("box %s payload overruns parent", hdr.Type)
		}
		buf := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, invalidMp4f("truncated box %s", hdr.Type)
		}
		out = append(out, childBox{Type: hdr.Type, Payload: buf})
	}
	return out, nil
}

func parseMoov(payload []byte) (*Container, error) {
	children, err := walkChildren(payload)
	if err != nil {
		return nil, wrapInvalid(err)
	}

	c := &Container{}
	for _, ch := range children {
		switch ch.Type {
		case "mvhd":
			ts, dur, err := parseMvhd(ch.Payload)
			if err != nil {
				return nil, wrapInvalid(err)
			}
			c.MovieTimescale, c.MovieDuration = ts, dur
		case "trak":
			track, err := parseTrak(ch.Payload)
			if err != nil {
				return nil, wrapInvalid(err)
			}
			if track != nil {
				c.Tracks = append(c.Tracks, track)
			}
		}
	}
	return c, nil
}

func parseMvhd(payload []byte) (timescale uint32, duration uint64, err error) {
	if len(payload) < 4 {
		return 0, 0, invalidMp4f("truncated mvhd")
	}
	full, err := readFullBoxHeader(bytes.NewReader(payload))
	if err != nil {
		return 0, 0, err
	}
	body := payload[4:]
	if full.Version == 1 {
		if len(body) < 28 {
			return 0, 0, invalidMp4f("truncated mvhd v1")
		}
		timescale = binary.BigEndian.Uint32(body[16:20])
		duration = binary.BigEndian.Uint64(body[20:28])
	} else {
		if len(body) < 16 {
			return 0, 0, invalidMp4f("truncated mvhd v0")
		}
		timescale = binary.BigEndian.Uint32(body[8:12])
		duration = uint64(binary.BigEndian.Uint32(body[12:16]))
	}
	return timescale, duration, nil
}

func parseTrak(payload []byte) (*Track, error) {
	children, err := walkChildren(payload)
	if err != nil {
		return nil, err
	}

	var mdiaPayload []byte
	var trackID uint32
	for _, ch := range children {
		switch ch.Type {
		case "mdia":
			mdiaPayload = ch.Payload
		case "tkhd":
			id, err := parseTkhdTrackID(ch.Payload)
			if err != nil {
				return nil, err
			}
			trackID = id
		}
	}
	if mdiaPayload == nil {
		return nil, invalidMp4f("trak missing mdia")
	}

	mdiaChildren, err := walkChildren(mdiaPayload)
	if err != nil {
		return nil, err
	}

	track := &Track{TrackID: trackID}
	var stblPayload []byte
	var handlerType string

	for _, ch := range mdiaChildren {
		switch ch.Type {
		case "mdhd":
			ts, dur, err := parseMdhd(ch.Payload)
			if err != nil {
				return nil, err
			}
			track.Timescale, track.Duration = ts, dur
		case "hdlr":
			handlerType = parseHdlr(ch.Payload)
		case "minf":
			minfChildren, err := walkChildren(ch.Payload)
			if err != nil {
				return nil, err
			}
			for _, mc := range minfChildren {
				if mc.Type == "stbl" {
					stblPayload = mc.Payload
				}
			}
		}
	}

	switch handlerType {
	case "vide":
		track.Kind = MediaKindVideo
	case "soun":
		track.Kind = MediaKindAudio
	default:
		return nil, nil // subtitle/other tracks are outside this core's scope
	}

	if stblPayload == nil {
		return nil, invalidMp4f("track missing stbl")
	}
	if err := parseStbl(stblPayload, track); err != nil {
		return nil, err
	}
	return track, nil
}

func parseMdhd(payload []byte) (timescale uint32, duration uint64, err error) {
	full, err := readFullBoxHeader(bytes.NewReader(payload))
	if err != nil {
		return 0, 0, err
	}
	body := payload[4:]
	if full.Version == 1 {
		if len(body) < 28 {
			return 0, 0, invalidMp4f("truncated mdhd v1")
		}
		timescale = binary.BigEndian.Uint32(body[16:20])
		duration = binary.BigEndian.Uint64(body[20:28])
	} else {
		if len(body) < 16 {
			return 0, 0, invalidMp4f("truncated mdhd v0")
		}
		timescale = binary.BigEndian.Uint32(body[8:12])
		duration = uint64(binary.BigEndian.Uint32(body[12:16]))
	}
	return timescale, duration, nil
}

// parseTkhdTrackID extracts track_id from a tkhd box payload (version 0 or
// 1). The two versions differ in the width of the preceding
// creation/modification time fields (32-bit vs 64-bit), so track_id sits at
// body offset 8 in version 0 and at body offset 16 in version 1.
func parseTkhdTrackID(payload []byte) (uint32, error) {
	full, err := readFullBoxHeader(bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	body := payload[4:]
	if full.Version == 1 {
		if len(body) < 20 {
			return 0, invalidMp4f("truncated tkhd v1")
		}
		return binary.BigEndian.Uint32(body[16:20]), nil
	}
	if len(body) < 12 {
		return 0, invalidMp4f("truncated tkhd v0")
	}
	return binary.BigEndian.Uint32(body[8:12]), nil
}

func parseHdlr(payload []byte) string {
	if len(payload) < 12 {
		return ""
	}
	// full box header (4) + pre_defined (4) + handler_type (4)
	return string(payload[8:12])
}

// parseStbl decodes stts/stss/stsc/stsz/stco|co64/ctts/stsd into the
// track's sample table per spec.md §4.A.
func parseStbl(payload []byte, track *Track) error {
	children, err := walkChildren(payload)
	if err != nil {
		return err
	}

	var sttsEntries []runEntry
	var stscEntries []stscEntry
	var chunkOffsets []uint64
	var sizes []uint32
	var uniformSize uint32
	var sampleCount int
	var syncSamples map[int]bool // nil means "every sample is a sync sample"
	var cttsEntries []runEntry

	for _, ch := range children {
		switch ch.Type {
		case "stsd":
			if err := parseStsd(ch.Payload, track); err != nil {
				return err
			}
		case "stts":
			sttsEntries, err = parseRunTable(ch.Payload)
			if err != nil {
				return err
			}
		case "ctts":
			cttsEntries, err = parseRunTable(ch.Payload)
			if err != nil {
				return err
			}
		case "stss":
			syncSamples, err = parseStss(ch.Payload)
			if err != nil {
				return err
			}
		case "stsc":
			stscEntries, err = parseStsc(ch.Payload)
			if err != nil {
				return err
			}
		case "stsz":
			uniformSize, sizes, sampleCount, err = parseStsz(ch.Payload)
			if err != nil {
				return err
			}
		case "stco":
			chunkOffsets, err = parseStco(ch.Payload)
			if err != nil {
				return err
			}
		case "co64":
			chunkOffsets, err = parseCo64(ch.Payload)
			if err != nil {
				return err
			}
		}
	}

	dts := expandRunTableU64(sttsEntries, sampleCount)
	ctsOffsets := expandRunTableI32(cttsEntries, sampleCount)
	offsets, err := expandSampleOffsets(stscEntries, chunkOffsets, sizes, uniformSize, sampleCount)
	if err != nil {
		return err
	}

	track.Samples = make([]Sample, sampleCount)
	for i := 0; i < sampleCount; i++ {
		size := uniformSize
		if uniformSize == 0 && i < len(sizes) {
			size = sizes[i]
		}
		isKey := syncSamples == nil || syncSamples[i]
		track.Samples[i] = Sample{
			Index:      i,
			DTS:        dts[i],
			CTSOffset:  ctsOffsets[i],
			Size:       size,
			Offset:     offsets[i],
			IsKeyframe: isKey,
		}
	}
	return nil
}

// runEntry is a (count, value) pair as used by stts/ctts.
type runEntry struct {
	Count uint32
	Value int64
}

func parseRunTable(payload []byte) ([]runEntry, error) {
	full, err := readFullBoxHeader(bytes.NewReader(payload))
	_ = full
	if err != nil {
		return nil, err
	}
	body := payload[4:]
	if len(body) < 4 {
		return nil, invalidMp4f("truncated run table")
	}
	count := binary.BigEndian.Uint32(body[0:4])
	body = body[4:]
	entries := make([]runEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(body) < 8 {
			return nil, invalidMp4f("truncated run table entry")
		}
		c := binary.BigEndian.Uint32(body[0:4])
		v := int32(binary.BigEndian.Uint32(body[4:8]))
		entries = append(entries, runEntry{Count: c, Value: int64(v)})
		body = body[8:]
	}
	return entries, nil
}

func expandRunTableU64(entries []runEntry, sampleCount int) []uint64 {
	out := make([]uint64, sampleCount)
	var cum uint64
	idx := 0
	for _, e := range entries {
		for i := uint32(0); i < e.Count && idx < sampleCount; i++ {
			out[idx] = cum
			cum += uint64(e.Value)
			idx++
		}
	}
	for ; idx < sampleCount; idx++ {
		out[idx] = cum
	}
	return out
}

func expandRunTableI32(entries []runEntry, sampleCount int) []int32 {
	out := make([]int32, sampleCount)
	if len(entries) == 0 {
		return out
	}
	idx := 0
	for _, e := range entries {
		for i := uint32(0); i < e.Count && idx < sampleCount; i++ {
			out[idx] = int32(e.Value)
			idx++
		}
	}
	return out
}

func parseStss(payload []byte) (map[int]bool, error) {
	full, err := readFullBoxHeader(bytes.NewReader(payload))
	_ = full
	if err != nil {
		return nil, err
	}
	body := payload[4:]
	if len(body) < 4 {
		return nil, invalidMp4f("truncated stss")
	}
	count := binary.BigEndian.Uint32(body[0:4])
	body = body[4:]
	set := make(map[int]bool, count)
	for i := uint32(0); i < count; i++ {
		if len(body) < 4 {
			return nil, invalidMp4f("truncated stss entry")
		}
		oneBased := binary.BigEndian.Uint32(body[0:4])
		set[int(oneBased)-1] = true
		body = body[4:]
	}
	return set, nil
}

type stscEntry struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
	SampleDescIndex uint32
}

func parseStsc(payload []byte) ([]stscEntry, error) {
	full, err := readFullBoxHeader(bytes.NewReader(payload))
	_ = full
	if err != nil {
		return nil, err
	}
	body := payload[4:]
	if len(body) < 4 {
		return nil, invalidMp4f("truncated stsc")
	}
	count := binary.BigEndian.Uint32(body[0:4])
	body = body[4:]
	entries := make([]stscEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(body) < 12 {
			return nil, invalidMp4f("truncated stsc entry")
		}
		entries = append(entries, stscEntry{
			FirstChunk:      binary.BigEndian.Uint32(body[0:4]),
			SamplesPerChunk: binary.BigEndian.Uint32(body[4:8]),
			SampleDescIndex: binary.BigEndian.Uint32(body[8:12]),
		})
		body = body[12:]
	}
	return entries, nil
}

func parseStsz(payload []byte) (uniformSize uint32, sizes []uint32, count int, err error) {
	full, err := readFullBoxHeader(bytes.NewReader(payload))
	_ = full
	if err != nil {
		return 0, nil, 0, err
	}
	body := payload[4:]
	if len(body) < 8 {
		return 0, nil, 0, invalidMp4f("truncated stsz")
	}
	uniformSize = binary.BigEndian.Uint32(body[0:4])
	sampleCount := binary.BigEndian.Uint32(body[4:8])
	body = body[8:]
	if uniformSize != 0 {
		return uniformSize, nil, int(sampleCount), nil
	}
	sizes = make([]uint32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		if len(body) < 4 {
			return 0, nil, 0, invalidMp4f("truncated stsz entry")
		}
		sizes = append(sizes, binary.BigEndian.Uint32(body[0:4]))
		body = body[4:]
	}
	return 0, sizes, int(sampleCount), nil
}

func parseStco(payload []byte) ([]uint64, error) {
	full, err := readFullBoxHeader(bytes.NewReader(payload))
	_ = full
	if err != nil {
		return nil, err
	}
	body := payload[4:]
	if len(body) < 4 {
		return nil, invalidMp4f("truncated stco")
	}
	count := binary.BigEndian.Uint32(body[0:4])
	body = body[4:]
	out := make([]uint64, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(body) < 4 {
			return nil, invalidMp4f("truncated stco entry")
		}
		out = append(out, uint64(binary.BigEndian.Uint32(body[0:4])))
		body = body[4:]
	}
	return out, nil
}

func parseCo64(payload []byte) ([]uint64, error) {
	full, err := readFullBoxHeader(bytes.NewReader(payload))
	_ = full
	if err != nil {
		return nil, err
	}
	body := payload[4:]
	if len(body) < 4 {
		return nil, invalidMp4f("truncated co64")
	}
	count := binary.BigEndian.Uint32(body[0:4])
	body = body[4:]
	out := make([]uint64, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(body) < 8 {
			return nil, invalidMp4f("truncated co64 entry")
		}
		out = append(out, binary.BigEndian.Uint64(body[0:8]))
		body = body[8:]
	}
	return out, nil
}

// expandSampleOffsets computes each sample's absolute file offset by
// walking the chunk map (stsc expanded on demand) and accumulating sizes of
// preceding samples within the same chunk (spec.md §4.A). It correctly
// handles samples that straddle non-contiguous chunks from interleaving.
func expandSampleOffsets(stsc []stscEntry, chunkOffsets []uint64, sizes []uint32, uniformSize uint32, sampleCount int) ([]uint64, error) {
	if len(stsc) == 0 {
		if sampleCount == 0 {
			return nil, nil
		}
		return nil, invalidMp4f("missing stsc")
	}

	offsets := make([]uint64, sampleCount)
	sampleIdx := 0

	for entryIdx, entry := range stsc {
		firstChunk := entry.FirstChunk
		var lastChunk uint32
		if entryIdx+1 < len(stsc) {
			lastChunk = stsc[entryIdx+1].FirstChunk - 1
		} else {
			lastChunk = uint32(len(chunkOffsets))
		}

		for chunk := firstChunk; chunk <= lastChunk; chunk++ {
			if chunk < 1 || int(chunk-1) >= len(chunkOffsets) {
				return offsets[:sampleIdx], invalidMp4f("stsc references out-of-range chunk %d", chunk)
			}
			base := chunkOffsets[chunk-1]
			runningOffset := base
			for s := uint32(0); s < entry.SamplesPerChunk; s++ {
				if sampleIdx >= sampleCount {
					return offsets, nil
				}
				size := uniformSize
				if uniformSize == 0 && sampleIdx < len(sizes) {
					size = sizes[sampleIdx]
				}
				offsets[sampleIdx] = runningOffset
				runningOffset += uint64(size)
				sampleIdx++
			}
		}
	}

	return offsets, nil
}
