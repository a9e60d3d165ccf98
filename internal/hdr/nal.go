package hdr

import "encoding/binary"

// SplitAnnexB splits a byte stream on 3- or 4-byte start codes (spec.md
// §4.C step 1). Each returned slice begins at the NAL unit header, start
// code excluded.
func SplitAnnexB(data []byte) [][]byte {
	starts := findStartCodes(data)
	if len(starts) == 0 {
		return nil
	}
	var out [][]byte
	for i, s := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1].codeStart
		}
		if s.nalStart < end {
			out = append(out, data[s.nalStart:end])
		}
	}
	return out
}

type startCode struct {
	codeStart int // offset of the 00 00 01 / 00 00 00 01 sequence itself
	nalStart  int // offset the NAL unit payload begins at
}

func findStartCodes(data []byte) []startCode {
	var out []startCode
	for i := 0; i+2 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			// Prefer the 4-byte form when a leading zero is present.
			codeStart := i
			if i > 0 && data[i-1] == 0 {
				codeStart = i - 1
			}
			out = append(out, startCode{codeStart: codeStart, nalStart: i + 3})
		}
	}
	return out
}

// SplitLengthPrefixed splits a byte stream of 4-byte big-endian
// length-prefixed NAL units, as stored in HVCC-framed samples (spec.md
// §4.C step 1).
func SplitLengthPrefixed(data []byte) [][]byte {
	var out [][]byte
	i := 0
	for i+4 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[i : i+4]))
		i += 4
		if length < 0 || i+length > len(data) {
			break
		}
		out = append(out, data[i:i+length])
		i += length
	}
	return out
}
