// Package hdr classifies an HEVC elementary stream's HDR/Dolby Vision
// format by walking its NAL units (spec.md component 4.C). It is the
// bitstream-level counterpart to internal/mp4: callers hand it raw access
// unit bytes (Annex B or length-prefixed HVCC) pulled out of a sample, and
// it returns a Format plus whatever Dolby Vision configuration it found.
package hdr

// Format is the HDR classification precedence DolbyVision > HDR10Plus >
// HDR10 > HLG > SDR (spec.md §4.C step 6).
type Format string

const (
	FormatSDR         Format = "SDR"
	FormatHDR10       Format = "HDR10"
	FormatHDR10Plus   Format = "HDR10Plus"
	FormatHLG         Format = "HLG"
	FormatDolbyVision Format = "DolbyVision"
)

// DoviConfig mirrors the fields of an ISO/IEC 14496-15 DOVI configuration
// record (spec.md §3 "DvInfo", §4.C step 5).
type DoviConfig struct {
	Profile     uint8
	Level       uint8
	RPUPresent  bool
	ELPresent   bool
	BLPresent   bool
}

// Classification is the result of walking one access unit's NAL units.
type Classification struct {
	Format           Format
	HasMasteringInfo bool // SEI type 137 seen
	HasContentLight  bool // SEI type 144 seen
	Dovi             *DoviConfig
}

const (
	nalTypeSPS       = 33
	nalTypePrefixSEI = 39
	nalTypeSuffixSEI = 40
	nalTypeUnspec62  = 62
)

// seiMasteringDisplay, seiContentLightLevel are the standard HEVC SEI
// payload types (spec.md §4.C step 4).
const (
	seiMasteringDisplay  = 137
	seiContentLightLevel = 144
	seiUserDataRegistered = 4
)

var hdr10PlusHeader = []byte{0xB5, 0x00, 0x3C, 0x00, 0x01} // Samsung HDR10+ ITU-T T.35 prefix

// vuiColourPairs are the (colour_primaries, transfer_characteristics) byte
// pairs the heuristic VUI scan recognises as HDR transfer functions
// (spec.md §4.C step 3): (9,16)=BT2020+PQ, (9,18)=BT2020+HLG, (1,16)=BT709+PQ.
var vuiColourPairs = map[[2]byte]Format{
	{9, 16}: FormatHDR10,
	{9, 18}: FormatHLG,
	{1, 16}: FormatHDR10,
}

// Classify splits data into NAL units and returns the HDR classification
// (spec.md §4.C). annexB selects start-code framing; otherwise data is
// treated as 4-byte length-prefixed (HVCC) framing. doviConfig is the raw
// DOVI configuration record payload (an hvcC's dvvC/dvcC subbox, or the
// equivalent side-data record) if the caller has one available; pass nil
// when it doesn't. It is only consulted once a NAL 62 (Dolby Vision RPU)
// is actually seen in the bitstream (spec.md §4.C step 5).
func Classify(data []byte, annexB bool, doviConfig []byte) Classification {
	var nals [][]byte
	if annexB {
		nals = SplitAnnexB(data)
	} else {
		nals = SplitLengthPrefixed(data)
	}

	c := Classification{Format: FormatSDR}
	sawDolbyVision := false
	sawHDR10Plus := false
	sawVUIFormat := Format("")

	for _, nal := range nals {
		if len(nal) < 2 {
			continue
		}
		nalType := (nal[0] >> 1) & 0x3F
		switch nalType {
		case nalTypeSPS:
			if f, ok := scanVUIColourDescription(nal[2:]); ok {
				sawVUIFormat = f
			}
		case nalTypePrefixSEI, nalTypeSuffixSEI:
			for _, msg := range splitSEIMessages(nal[2:]) {
				switch msg.payloadType {
				case seiMasteringDisplay:
					c.HasMasteringInfo = true
				case seiContentLightLevel:
					c.HasContentLight = true
				case seiUserDataRegistered:
					if len(msg.payload) >= len(hdr10PlusHeader) && bytesEqual(msg.payload[:len(hdr10PlusHeader)], hdr10PlusHeader) {
						sawHDR10Plus = true
					}
				}
			}
		case nalTypeUnspec62:
			sawDolbyVision = true
			if c.Dovi == nil && doviConfig != nil {
				if cfg, ok := ParseDoviConfig(doviConfig); ok {
					c.Dovi = cfg
				}
			}
		}
	}

	switch {
	case sawDolbyVision:
		c.Format = FormatDolbyVision
	case sawHDR10Plus:
		c.Format = FormatHDR10Plus
	case sawVUIFormat != "":
		c.Format = sawVUIFormat
	default:
		c.Format = FormatSDR
	}
	return c
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// scanVUIColourDescription is the heuristic byte-pair scan spec.md §4.C
// step 3 calls for: find the first adjacent byte pair matching a known
// (colour_primaries, transfer_characteristics) combination rather than
// fully exp-Golomb decoding the SPS RBSP. This is the documented baseline;
// a conformant full parse is an optional refinement the source doesn't
// require (spec.md §9 Open Question).
func scanVUIColourDescription(payload []byte) (Format, bool) {
	for i := 0; i+1 < len(payload); i++ {
		pair := [2]byte{payload[i], payload[i+1]}
		if f, ok := vuiColourPairs[pair]; ok {
			return f, true
		}
	}
	return "", false
}

type seiMessage struct {
	payloadType int
	payload     []byte
}

// splitSEIMessages decodes the 0xFF-continuation payload_type/payload_size
// scheme (spec.md §4.C step 4).
func splitSEIMessages(payload []byte) []seiMessage {
	var out []seiMessage
	i := 0
	for i < len(payload) {
		payloadType := 0
		for i < len(payload) && payload[i] == 0xFF {
			payloadType += 255
			i++
		}
		if i >= len(payload) {
			break
		}
		payloadType += int(payload[i])
		i++

		payloadSize := 0
		for i < len(payload) && payload[i] == 0xFF {
			payloadSize += 255
			i++
		}
		if i >= len(payload) {
			break
		}
		payloadSize += int(payload[i])
		i++

		if i+payloadSize > len(payload) {
			payloadSize = len(payload) - i
		}
		out = append(out, seiMessage{payloadType: payloadType, payload: payload[i : i+payloadSize]})
		i += payloadSize
	}
	return out
}

// ParseDoviConfig decodes an ISO/IEC 14496-15 DOVI configuration record
// (the payload of an hvcC's dvvC/dvcC subbox, or the equivalent side-data
// record) into profile/level/rpu/el/bl flags (spec.md §4.C step 5).
func ParseDoviConfig(payload []byte) (*DoviConfig, bool) {
	// dv_version_major(1) dv_version_minor(1) then a packed field carrying
	// dv_profile(7 bits) + dv_level(6 bits) + rpu/el/bl presence flags(3 bits).
	if len(payload) < 5 {
		return nil, false
	}
	packed := uint32(payload[2])<<16 | uint32(payload[3])<<8 | uint32(payload[4])
	profile := uint8((packed >> 17) & 0x7F)
	level := uint8((packed >> 11) & 0x3F)
	rpuPresent := (packed>>10)&0x1 != 0
	elPresent := (packed>>9)&0x1 != 0
	blPresent := (packed>>8)&0x1 != 0
	return &DoviConfig{
		Profile:    profile,
		Level:      level,
		RPUPresent: rpuPresent,
		ELPresent:  elPresent,
		BLPresent:  blPresent,
	}, true
}
