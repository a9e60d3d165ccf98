// Package probe implements spec.md component 4.D: three interchangeable
// ways to turn a source file on disk into a MediaInfo, plus the shared data
// model that the rule engine and action executor consume.
package probe

// VideoCodec enumerates the video codecs MediaInfo recognises (spec.md §3).
type VideoCodec string

const (
	VideoCodecH264 VideoCodec = "H264"
	VideoCodecH265 VideoCodec = "H265"
	VideoCodecAV1  VideoCodec = "AV1"
	VideoCodecVP9  VideoCodec = "VP9"
)

// AudioCodec enumerates the audio codecs MediaInfo recognises (spec.md §3).
type AudioCodec string

const (
	AudioCodecAAC    AudioCodec = "AAC"
	AudioCodecAC3    AudioCodec = "AC3"
	AudioCodecEAC3   AudioCodec = "EAC3"
	AudioCodecTrueHD AudioCodec = "TrueHD"
	AudioCodecDTS    AudioCodec = "DTS"
	AudioCodecDTSHD  AudioCodec = "DTS-HD"
	AudioCodecFLAC   AudioCodec = "FLAC"
	AudioCodecOpus   AudioCodec = "Opus"
)

// HdrFormat mirrors internal/hdr.Format at the data-model boundary so
// probe doesn't force every caller to import the bitstream-level package.
type HdrFormat string

const (
	HdrFormatSDR         HdrFormat = "SDR"
	HdrFormatHDR10       HdrFormat = "HDR10"
	HdrFormatHDR10Plus   HdrFormat = "HDR10Plus"
	HdrFormatDolbyVision HdrFormat = "DolbyVision"
	HdrFormatHLG         HdrFormat = "HLG"
)

// DvInfo is the Dolby Vision configuration attached to a VideoTrack when
// hdr_format == DolbyVision (spec.md §3).
type DvInfo struct {
	Profile             uint8
	RPUPresent          bool
	ELPresent           bool
	BLPresent           bool
	BLCompatibilityID   *uint8
}

// VideoTrack is one video stream of a probed file (spec.md §3).
type VideoTrack struct {
	Index       int
	Codec       VideoCodec
	Width       int
	Height      int
	FrameRate   *float64
	BitDepth    *int
	HdrFormat   HdrFormat
	DolbyVision *DvInfo
	Default     bool
	Language    string
}

// AudioTrack is one audio stream of a probed file (spec.md §3).
type AudioTrack struct {
	Index      int
	Codec      AudioCodec
	Channels   int
	SampleRate *int
	Language   string
	Atmos      bool
	Default    bool
}

// SubtitleTrack is one subtitle stream of a probed file.
type SubtitleTrack struct {
	Index    int
	Codec    string
	Language string
}

// MediaInfo is the probe result the rule engine evaluates against
// (spec.md §3).
type MediaInfo struct {
	FilePath       string
	FileSize       int64
	Container      string // "mkv" | "mp4"
	Duration       *float64
	VideoTracks    []VideoTrack
	AudioTracks    []AudioTrack
	SubtitleTracks []SubtitleTrack
}

// PrimaryVideo returns the first track marked default, falling back to
// index 0 (spec.md §3 invariant).
func (m *MediaInfo) PrimaryVideo() *VideoTrack {
	return primaryTrack(m.VideoTracks)
}

// PrimaryAudio returns the first track marked default, falling back to
// index 0 (spec.md §3 invariant).
func (m *MediaInfo) PrimaryAudio() *AudioTrack {
	return primaryTrack(m.AudioTracks)
}

// trackLike is satisfied by VideoTrack and AudioTrack; primaryTrack is a
// small generic helper so both accessors share the fallback rule.
type trackLike interface {
	isDefault() bool
}

func (v VideoTrack) isDefault() bool { return v.Default }
func (a AudioTrack) isDefault() bool { return a.Default }

func primaryTrack[T trackLike](tracks []T) *T {
	if len(tracks) == 0 {
		return nil
	}
	for i := range tracks {
		if tracks[i].isDefault() {
			return &tracks[i]
		}
	}
	return &tracks[0]
}
