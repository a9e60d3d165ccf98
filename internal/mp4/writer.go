package mp4

import (
	"encoding/binary"
	"math"
)

// box wraps payload in a standard (size, type, payload) box header.
func box(typ string, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(payload)))
	copy(out[4:8], typ)
	copy(out[8:], payload)
	return out
}

// fullBox wraps payload in a full box: (size, type, version, flags, payload).
func fullBox(typ string, version uint8, flags uint32, payload []byte) []byte {
	head := make([]byte, 4+len(payload))
	head[0] = version
	head[1] = byte(flags >> 16)
	head[2] = byte(flags >> 8)
	head[3] = byte(flags)
	copy(head[4:], payload)
	return box(typ, head)
}

func concat(boxes ...[]byte) []byte {
	var total int
	for _, b := range boxes {
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, b := range boxes {
		out = append(out, b...)
	}
	return out
}

func put32(b []byte, off int, v uint32) { binary.BigEndian.PutUint32(b[off:off+4], v) }
func put16(b []byte, off int, v uint16) { binary.BigEndian.PutUint16(b[off:off+2], v) }

// identityMatrix is the standard 9x 32-bit fixed-point unity transform
// matrix ISO BMFF headers carry.
var identityMatrix = []byte{
	0x00, 0x01, 0x00, 0x00, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0x00, 0x01, 0x00, 0x00, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0x40, 0x00, 0x00, 0x00,
}

// WriteFtyp emits the ftyp box: major="iso5", minor_version=512, compatible
// brands ["iso5","iso6","mp41"] (spec.md §4.B).
func WriteFtyp() []byte {
	payload := make([]byte, 0, 16)
	payload = append(payload, []byte("iso5")...)
	minor := make([]byte, 4)
	binary.BigEndian.PutUint32(minor, 512)
	payload = append(payload, minor...)
	for _, brand := range []string{"iso5", "iso6", "mp41"} {
		payload = append(payload, []byte(brand)...)
	}
	return box("ftyp", payload)
}

func writeMvhd(timescale uint32, duration uint64, nextTrackID uint32) []byte {
	p := make([]byte, 96)
	put32(p, 8, timescale)
	put32(p, 12, uint32(duration))
	binary.BigEndian.PutUint32(p[16:20], 0x00010000) // rate = 1.0
	put16(p, 20, 0x0100)                             // volume = 1.0
	copy(p[36:72], identityMatrix)
	put32(p, 92, nextTrackID)
	return fullBox("mvhd", 0, 0, p)
}

func writeTkhd(trackID uint32, duration uint64, width, height uint16) []byte {
	p := make([]byte, 84)
	put32(p, 8, trackID)
	put32(p, 20, uint32(duration))
	put16(p, 36, 0x0100) // default volume (audio/video both carry the field)
	copy(p[40:76], identityMatrix)
	put32(p, 76, uint32(width)<<16)
	put32(p, 80, uint32(height)<<16)
	const flags = 0x000007 // track enabled, in movie, in preview
	return fullBox("tkhd", 0, flags, p)
}

func writeMdhd(timescale uint32, duration uint64) []byte {
	p := make([]byte, 20)
	put32(p, 8, timescale)
	put32(p, 12, uint32(duration))
	binary.BigEndian.PutUint16(p[16:18], 0x55c4) // language = "und"
	return fullBox("mdhd", 0, 0, p)
}

func writeHdlr(handlerType, name string) []byte {
	p := make([]byte, 20+len(name)+1)
	copy(p[4:8], handlerType)
	copy(p[20:], name)
	return fullBox("hdlr", 0, 0, p)
}

func writeVmhd() []byte {
	return fullBox("vmhd", 0, 1, make([]byte, 8))
}

func writeSmhd() []byte {
	return fullBox("smhd", 0, 0, make([]byte, 4))
}

func writeDinf() []byte {
	urlBox := fullBox("url ", 0, 1, nil) // flag 1 = data is in this file
	dref := make([]byte, 4)
	put32(dref, 0, 1)
	dref = append(dref, urlBox...)
	return box("dinf", fullBox("dref", 0, 0, dref))
}

// writeAvcSampleEntry builds an avc1 (or hvc1) sample entry wrapping the raw
// codec-config payload under an avcC/hvcC child box.
func writeAvcSampleEntry(fourcc string, width, height uint16, codecPrivate []byte) []byte {
	p := make([]byte, 78)
	put16(p, 24, width)
	put16(p, 26, height)
	binary.BigEndian.PutUint32(p[28:32], 0x00480000) // 72 dpi
	binary.BigEndian.PutUint32(p[32:36], 0x00480000)
	put16(p, 40, 1)  // frame_count
	put16(p, 74, 24) // depth
	binary.BigEndian.PutUint16(p[76:78], 0xffff)

	configBoxType := "avcC"
	if fourcc == "hvc1" || fourcc == "hev1" {
		configBoxType = "hvcC"
	}
	p = append(p, box(configBoxType, codecPrivate)...)
	return box(fourcc, p)
}

// writeMp4aSampleEntry builds an mp4a sample entry wrapping a raw esds
// payload (already including its own full-box header, per mp4.Track.CodecPrivate).
func writeMp4aSampleEntry(sampleRate uint32, channels uint16, esdsPayload []byte) []byte {
	p := make([]byte, 28)
	put16(p, 16, channels)
	put16(p, 18, 16) // sample size bits
	binary.BigEndian.PutUint32(p[24:28], sampleRate<<16)
	p = append(p, box("esds", esdsPayload)...)
	return box("mp4a", p)
}

func writeEmptyStbl(sampleEntry []byte) []byte {
	stsd := fullBox("stsd", 0, 0, concat(u32(1), sampleEntry))
	stts := fullBox("stts", 0, 0, u32(0))
	stsc := fullBox("stsc", 0, 0, u32(0))
	stsz := fullBox("stsz", 0, 0, concat(u32(0), u32(0)))
	stco := fullBox("stco", 0, 0, u32(0))
	return box("stbl", concat(stsd, stts, stsc, stsz, stco))
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// WriteVideoTrak builds a video trak box (track_id=trackID) with an avc1/hvc1
// sample entry wrapping codecPrivate and an empty sample table (spec.md §4.B
// "write_video_trak").
func WriteVideoTrak(trackID uint32, timescale uint32, duration uint64, fourcc string, width, height uint16, codecPrivate []byte) []byte {
	tkhd := writeTkhd(trackID, duration, width, height)
	mdhd := writeMdhd(timescale, duration)
	hdlr := writeHdlr("vide", "VideoHandler")
	sampleEntry := writeAvcSampleEntry(fourcc, width, height, codecPrivate)
	stbl := writeEmptyStbl(sampleEntry)
	minf := box("minf", concat(writeVmhd(), writeDinf(), stbl))
	mdia := box("mdia", concat(mdhd, hdlr, minf))
	return box("trak", concat(tkhd, mdia))
}

// WriteAudioTrak builds an audio trak box (track_id=trackID) with an mp4a sample
// entry wrapping esdsPayload (spec.md §4.B "write_audio_trak").
func WriteAudioTrak(trackID uint32, timescale uint32, duration uint64, sampleRate uint32, channels uint16, esdsPayload []byte) []byte {
	tkhd := writeTkhd(trackID, duration, 0, 0)
	mdhd := writeMdhd(timescale, duration)
	hdlr := writeHdlr("soun", "SoundHandler")
	sampleEntry := writeMp4aSampleEntry(sampleRate, channels, esdsPayload)
	stbl := writeEmptyStbl(sampleEntry)
	minf := box("minf", concat(writeSmhd(), writeDinf(), stbl))
	mdia := box("mdia", concat(mdhd, hdlr, minf))
	return box("trak", concat(tkhd, mdia))
}

func writeTrex(trackID uint32) []byte {
	p := make([]byte, 20)
	put32(p, 0, trackID)
	put32(p, 4, 1) // default_sample_description_index
	return fullBox("trex", 0, 0, p)
}

// WriteMvex builds the mvex box with one trex per given track id (spec.md
// §4.B "write_mvex").
func WriteMvex(trackIDs ...uint32) []byte {
	var trexes []byte
	for _, id := range trackIDs {
		trexes = append(trexes, writeTrex(id)...)
	}
	return box("mvex", trexes)
}

// WriteMoov assembles mvhd + the given trak boxes + mvex (spec.md §4.B
// "write_moov").
func WriteMoov(timescale uint32, duration uint64, nextTrackID uint32, traks [][]byte, mvex []byte) []byte {
	mvhd := writeMvhd(timescale, duration, nextTrackID)
	payload := concat(mvhd)
	for _, t := range traks {
		payload = concat(payload, t)
	}
	payload = concat(payload, mvex)
	return box("moov", payload)
}

// TrunSample is one sample entry inside a trun box.
type TrunSample struct {
	Duration          uint32
	Size              uint32
	Flags             uint32
	CompositionOffset int32
}

// TrafSpec describes one track's fragment run within a moof, plus how many
// bytes of mdat payload precede this track's data (so its trun data_offset
// can be computed relative to the start of the enclosing moof).
type TrafSpec struct {
	TrackID             uint32
	BaseMediaDecodeTime uint64
	Samples             []TrunSample
	DataLenBefore       uint64 // bytes of other tracks' sample data preceding this one in mdat
}

const (
	sampleFlagKeyframe    = 0x02000000
	sampleFlagNonKeyframe = 0x01010000
)

// SampleFlags returns the trun sample_flags value for a sample (spec.md
// §4.I step 5).
func SampleFlags(isKeyframe bool) uint32 {
	if isKeyframe {
		return sampleFlagKeyframe
	}
	return sampleFlagNonKeyframe
}

func trunPayloadSize(sampleCount int) int {
	return 4 + 4 + sampleCount*16 // sample_count + data_offset + per-sample(duration,size,flags,cts)
}

func buildTrun(dataOffset int32, samples []TrunSample) []byte {
	const trunFlags = 0x000001 | 0x000100 | 0x000200 | 0x000400 | 0x000800
	p := make([]byte, trunPayloadSize(len(samples)))
	put32(p, 0, uint32(len(samples)))
	put32(p, 4, uint32(dataOffset))
	off := 8
	for _, s := range samples {
		put32(p, off, s.Duration)
		put32(p, off+4, s.Size)
		put32(p, off+8, s.Flags)
		put32(p, off+12, uint32(s.CompositionOffset))
		off += 16
	}
	return fullBox("trun", 1, trunFlags, p)
}

func buildTfhd(trackID uint32) []byte {
	const tfhdFlags = 0x020000 // default-base-is-moof
	p := make([]byte, 4)
	put32(p, 0, trackID)
	return fullBox("tfhd", 0, tfhdFlags, p)
}

func buildTfdt(baseMediaDecodeTime uint64) []byte {
	p := make([]byte, 8)
	binary.BigEndian.PutUint64(p, baseMediaDecodeTime)
	return fullBox("tfdt", 1, 0, p)
}

// BuildMoof assembles mfhd+traf(s) with correctly computed trun.data_offset
// fields (spec.md §4.B: "trun.data_offset is a signed 32-bit byte count from
// the start of the enclosing moof to the first byte of sample data in
// mdat"). mdatHeaderLen is the size (8 or 16) the caller will use for the
// following mdat box header.
func BuildMoof(sequenceNumber uint32, trafs []TrafSpec, mdatHeaderLen int) []byte {
	mfhd := fullBox("mfhd", 0, 0, u32(sequenceNumber))

	// Pass 1: build every traf with a zero placeholder data_offset to learn
	// moof's total size (trun's encoded length doesn't depend on the
	// data_offset's actual value).
	placeholderTrafs := make([][]byte, len(trafs))
	for i, t := range trafs {
		tfhd := buildTfhd(t.TrackID)
		tfdt := buildTfdt(t.BaseMediaDecodeTime)
		trun := buildTrun(0, t.Samples)
		placeholderTrafs[i] = box("traf", concat(tfhd, tfdt, trun))
	}
	moofSize := 8 + len(mfhd) // moof header + mfhd
	for _, t := range placeholderTrafs {
		moofSize += len(t)
	}

	// Pass 2: rebuild each traf's trun now that moofSize is known.
	finalTrafs := make([][]byte, len(trafs))
	for i, t := range trafs {
		dataOffset := int32(moofSize + mdatHeaderLen + int(t.DataLenBefore))
		tfhd := buildTfhd(t.TrackID)
		tfdt := buildTfdt(t.BaseMediaDecodeTime)
		trun := buildTrun(dataOffset, t.Samples)
		finalTrafs[i] = box("traf", concat(tfhd, tfdt, trun))
	}

	payload := concat(mfhd)
	for _, t := range finalTrafs {
		payload = concat(payload, t)
	}
	return box("moof", payload)
}

// BuildMdatHeader returns the 8-byte (or 16-byte, for payloads over
// u32::MAX-8) mdat box header for a payload of the given length (spec.md
// §4.B "mdat header").
func BuildMdatHeader(payloadLen uint64) []byte {
	if payloadLen <= math.MaxUint32-8 {
		out := make([]byte, 8)
		binary.BigEndian.PutUint32(out[0:4], uint32(8+payloadLen))
		copy(out[4:8], "mdat")
		return out
	}
	out := make([]byte, 16)
	binary.BigEndian.PutUint32(out[0:4], 1)
	copy(out[4:8], "mdat")
	binary.BigEndian.PutUint64(out[8:16], 16+payloadLen)
	return out
}

// MdatHeaderLen returns how many bytes BuildMdatHeader will produce for a
// payload of the given length, without building it — used by callers that
// need the length before the payload's DataRanges are finalized.
func MdatHeaderLen(payloadLen uint64) int {
	if payloadLen <= math.MaxUint32-8 {
		return 8
	}
	return 16
}
