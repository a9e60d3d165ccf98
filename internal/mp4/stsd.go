package mp4

import (
	"encoding/binary"
)

// videoSampleEntryTypes / audioSampleEntryTypes name the sample entry 4ccs
// this parser recognises (spec.md §4.A).
var videoSampleEntryTypes = map[string]bool{"avc1": true, "avc3": true, "hvc1": true, "hev1": true}
var audioSampleEntryTypes = map[string]bool{"mp4a": true}

// parseStsd decodes the first sample description entry: skip the full-box
// header and entry_count, enter the first sample entry, skip its fixed
// fields (78 bytes for Visual, 28 for Audio, counted from the start of the
// entry's payload), then scan the remaining child boxes for avcC/hvcC/esds
// (spec.md §4.A).
func parseStsd(payload []byte, track *Track) error {
	if len(payload) < 8 {
		return invalidMp4f("truncated stsd")
	}
	// full box header (4) + entry_count (4)
	body := payload[8:]
	if len(body) < 8 {
		return invalidMp4f("stsd has no sample entries")
	}

	entrySize := binary.BigEndian.Uint32(body[0:4])
	entryType := string(body[4:8])
	if int(entrySize) > len(body) {
		return invalidMp4f("stsd entry %s overruns stsd box", entryType)
	}
	entryPayload := body[8:entrySize] // everything after the entry's own (size,type) header
	track.Codec = entryType

	switch {
	case videoSampleEntryTypes[entryType]:
		if len(entryPayload) < 78 {
			return invalidMp4f("truncated visual sample entry %s", entryType)
		}
		track.Width = binary.BigEndian.Uint16(entryPayload[24:26])
		track.Height = binary.BigEndian.Uint16(entryPayload[26:28])
		children, err := walkChildren(entryPayload[78:])
		if err != nil {
			return err
		}
		for _, ch := range children {
			switch ch.Type {
			case "avcC", "hvcC":
				track.CodecPrivate = ch.Payload
			case "dvvC", "dvcC":
				// Dolby Vision configuration record, a sibling of hvcC
				// inside the sample entry (spec.md §4.D "or from
				// hvcC/dvvC subbox").
				track.DoviConfig = ch.Payload
			}
		}
	case audioSampleEntryTypes[entryType]:
		if len(entryPayload) < 28 {
			return invalidMp4f("truncated audio sample entry %s", entryType)
		}
		track.Channels = binary.BigEndian.Uint16(entryPayload[16:18])
		// samplerate is a 16.16 fixed-point value; the integer Hz value is
		// the upper 16 bits.
		track.SampleRate = uint32(binary.BigEndian.Uint16(entryPayload[24:26]))
		children, err := walkChildren(entryPayload[28:])
		if err != nil {
			return err
		}
		for _, ch := range children {
			if ch.Type == "esds" {
				// esds is a full box; its payload (as captured by
				// walkChildren) already starts with the 4-byte
				// version+flags prefix, so spec.md §4.A's "full-box
				// header included" requirement is satisfied as-is.
				track.CodecPrivate = ch.Payload
			}
		}
	default:
		// Track carries a sample entry type this core doesn't drive
		// (subtitles, timed text, ...); leave Codec set for callers that
		// only need to know what it was.
	}

	return nil
}
