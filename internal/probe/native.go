package probe

import (
	"context"
	"os"

	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/hdr"
	"github.com/tidecast/mediapipe/internal/mp4"
)

// NativeProber walks the container directly with internal/mp4 and classifies
// HDR with internal/hdr, needing no external CLI (spec.md §4.D "Native MP4
// walker").
type NativeProber struct{}

func NewNativeProber() *NativeProber { return &NativeProber{} }

func (p *NativeProber) Name() string { return "native" }

// Supports reports true only for mp4/m4v; native walking can't read
// Matroska containers, which the ffprobe and mediainfo probers handle instead.
func (p *NativeProber) Supports(path string) bool {
	return containerFromExt(path) == "mp4"
}

func (p *NativeProber) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Internal("open source file", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, apperrors.Internal("stat source file", err)
	}

	container, err := mp4.Parse(f)
	if err != nil {
		return nil, err // already an apperrors.PipelineError (InvalidMp4)
	}

	info := &MediaInfo{
		FilePath:  path,
		FileSize:  stat.Size(),
		Container: "mp4",
	}
	if container.MovieTimescale > 0 {
		d := float64(container.MovieDuration) / float64(container.MovieTimescale)
		info.Duration = &d
	}

	for i, tr := range container.Tracks {
		switch tr.Kind {
		case mp4.MediaKindVideo:
			info.VideoTracks = append(info.VideoTracks, nativeVideoTrack(f, i, tr))
		case mp4.MediaKindAudio:
			info.AudioTracks = append(info.AudioTracks, nativeAudioTrack(i, tr))
		}
	}
	return info, nil
}

func nativeVideoTrack(f *os.File, index int, tr *mp4.Track) VideoTrack {
	vt := VideoTrack{
		Index:     index,
		Codec:     nativeVideoCodec(tr.Codec),
		Width:     int(tr.Width),
		Height:    int(tr.Height),
		Default:   index == 0,
		HdrFormat: HdrFormatSDR,
	}

	if vt.Codec == VideoCodecH265 {
		if c, dv := classifyFirstKeyframe(f, tr); c != nil {
			vt.HdrFormat = HdrFormat(c.Format)
			vt.DolbyVision = dv
		}
	}
	return vt
}

// classifyFirstKeyframe reads the first keyframe's sample bytes (stored
// length-prefixed in MP4, per ISO/IEC 14496-15) and runs it through
// internal/hdr (spec.md §4.D "extract HDR via 4.C from the first HEVC
// sample").
func classifyFirstKeyframe(f *os.File, tr *mp4.Track) (*hdr.Classification, *DvInfo) {
	keyframes := tr.KeyframeIndices()
	if len(keyframes) == 0 {
		return nil, nil
	}
	sample := tr.Samples[keyframes[0]]
	buf := make([]byte, sample.Size)
	if _, err := f.ReadAt(buf, int64(sample.Offset)); err != nil {
		return nil, nil
	}

	c := hdr.Classify(buf, false, tr.DoviConfig)
	var dv *DvInfo
	if c.Dovi != nil {
		dv = &DvInfo{
			Profile:    c.Dovi.Profile,
			RPUPresent: c.Dovi.RPUPresent,
			ELPresent:  c.Dovi.ELPresent,
			BLPresent:  c.Dovi.BLPresent,
		}
	} else if c.Format == hdr.FormatDolbyVision {
		dv = &DvInfo{}
	}
	return &c, dv
}

func nativeAudioTrack(index int, tr *mp4.Track) AudioTrack {
	return AudioTrack{
		Index:      index,
		Codec:      nativeAudioCodec(tr.Codec),
		Channels:   int(tr.Channels),
		SampleRate: intPtr(int(tr.SampleRate)),
		Default:    index == 0,
	}
}

func intPtr(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func nativeVideoCodec(fourcc string) VideoCodec {
	switch fourcc {
	case "avc1", "avc3":
		return VideoCodecH264
	case "hvc1", "hev1":
		return VideoCodecH265
	default:
		return VideoCodec(fourcc)
	}
}

func nativeAudioCodec(fourcc string) AudioCodec {
	switch fourcc {
	case "mp4a":
		return AudioCodecAAC
	default:
		return AudioCodec(fourcc)
	}
}
