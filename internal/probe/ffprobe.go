package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/logger"
)

// ffprobeOutput mirrors the subset of `ffprobe -show_format -show_streams
// -print_format json` output the pipeline cares about (spec.md §4.D).
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeSideData struct {
	Type string `json:"side_data_type"`
}

type ffprobeStream struct {
	Index          int               `json:"index"`
	CodecType      string            `json:"codec_type"`
	CodecName      string            `json:"codec_name"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	BitsPerRawSmpl string            `json:"bits_per_raw_sample"`
	ColorPrimaries string            `json:"color_primaries"`
	ColorTransfer  string            `json:"color_transfer"`
	RFrameRate     string            `json:"r_frame_rate"`
	Channels       int               `json:"channels"`
	SampleRate     string            `json:"sample_rate"`
	ChannelLayout  string            `json:"channel_layout"`
	Disposition    map[string]int    `json:"disposition"`
	Tags           map[string]string `json:"tags"`
	SideDataList   []ffprobeSideData `json:"side_data_list"`
}

// FFProber invokes the ffprobe subprocess and maps its JSON output onto
// MediaInfo (spec.md §4.D "Subprocess ffprobe").
type FFProber struct {
	BinaryPath string
}

func NewFFProber(binaryPath string) *FFProber {
	return &FFProber{BinaryPath: binaryPath}
}

func (p *FFProber) Name() string { return "ffprobe" }

func (p *FFProber) Supports(path string) bool { return true }

func (p *FFProber) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	log := logger.Named("probe.ffprobe")
	bin := p.BinaryPath
	if bin == "" {
		bin = "ffprobe"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, apperrors.ToolNotFound(bin)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("probing", "path", path)
	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, apperrors.ToolFailed(bin, stderr.String(), exitCode)
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, apperrors.ParseError("ffprobe", err.Error())
	}

	info := &MediaInfo{
		FilePath:  path,
		Container: containerFromExt(path),
	}
	if size, err := strconv.ParseInt(out.Format.Size, 10, 64); err == nil {
		info.FileSize = size
	}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		info.Duration = &d
	}

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			info.VideoTracks = append(info.VideoTracks, ffprobeVideoTrack(s))
		case "audio":
			info.AudioTracks = append(info.AudioTracks, ffprobeAudioTrack(s))
		case "subtitle":
			info.SubtitleTracks = append(info.SubtitleTracks, SubtitleTrack{
				Index: s.Index,
				Codec: s.CodecName,
			})
		}
	}
	return info, nil
}

func ffprobeVideoTrack(s ffprobeStream) VideoTrack {
	t := VideoTrack{
		Index:     s.Index,
		Codec:     mapVideoCodec(s.CodecName),
		Width:     s.Width,
		Height:    s.Height,
		Default:   s.Disposition["default"] == 1,
		Language:  s.Tags["language"],
		HdrFormat: HdrFormatSDR,
	}
	if bits, err := strconv.Atoi(s.BitsPerRawSmpl); err == nil && bits > 0 {
		t.BitDepth = &bits
	}
	if rate := parseFrameRate(s.RFrameRate); rate != nil {
		t.FrameRate = rate
	}

	sawDovi := false
	for _, sd := range s.SideDataList {
		if sd.Type == "DOVI configuration record" {
			sawDovi = true
		}
	}

	switch {
	case sawDovi:
		t.HdrFormat = HdrFormatDolbyVision
		t.DolbyVision = &DvInfo{}
	case s.ColorPrimaries == "bt2020" && s.ColorTransfer == "smpte2084":
		t.HdrFormat = HdrFormatHDR10
	case s.ColorPrimaries == "bt2020" && s.ColorTransfer == "arib-std-b67":
		t.HdrFormat = HdrFormatHLG
	}
	return t
}

func ffprobeAudioTrack(s ffprobeStream) AudioTrack {
	t := AudioTrack{
		Index:    s.Index,
		Codec:    mapAudioCodec(s.CodecName),
		Channels: s.Channels,
		Default:  s.Disposition["default"] == 1,
		Language: s.Tags["language"],
		Atmos:    strings.Contains(strings.ToLower(s.ChannelLayout), "atmos") || s.CodecName == "truehd" && s.Channels > 6,
	}
	if rate, err := strconv.Atoi(s.SampleRate); err == nil && rate > 0 {
		t.SampleRate = &rate
	}
	return t
}

func mapVideoCodec(ffmpegName string) VideoCodec {
	switch ffmpegName {
	case "h264":
		return VideoCodecH264
	case "hevc":
		return VideoCodecH265
	case "av1":
		return VideoCodecAV1
	case "vp9":
		return VideoCodecVP9
	default:
		return VideoCodec(strings.ToUpper(ffmpegName))
	}
}

func mapAudioCodec(ffmpegName string) AudioCodec {
	switch ffmpegName {
	case "aac":
		return AudioCodecAAC
	case "ac3":
		return AudioCodecAC3
	case "eac3":
		return AudioCodecEAC3
	case "truehd":
		return AudioCodecTrueHD
	case "dts":
		return AudioCodecDTS
	case "dts-hd", "dtshd":
		return AudioCodecDTSHD
	case "flac":
		return AudioCodecFLAC
	case "opus":
		return AudioCodecOpus
	default:
		return AudioCodec(strings.ToUpper(ffmpegName))
	}
}

// parseFrameRate parses ffprobe's "num/den" rational frame rate string.
func parseFrameRate(s string) *float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return nil
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return nil
	}
	rate := num / den
	return &rate
}
