package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/logger"
)

// mediainfoOutput mirrors the subset of `mediainfo --Output=JSON` fields
// the pipeline maps onto MediaInfo (spec.md §4.D "Subprocess mediainfo").
type mediainfoOutput struct {
	Media struct {
		Track []mediainfoTrack `json:"track"`
	} `json:"media"`
}

type mediainfoTrack struct {
	Type            string `json:"@type"`
	Format          string `json:"Format"`
	Width           string `json:"Width"`
	Height          string `json:"Height"`
	BitDepth        string `json:"BitDepth"`
	FrameRate       string `json:"FrameRate"`
	HDRFormat       string `json:"HDR_Format"`
	Channels        string `json:"Channels"`
	SamplingRate    string `json:"SamplingRate"`
	Language        string `json:"Language"`
	Default         string `json:"Default"`
	Duration        string `json:"Duration"`
	FileSize        string `json:"FileSize"`
	FileExtension   string `json:"FileExtension"`
	CodecID         string `json:"CodecID"`
}

var dvProfileToken = regexp.MustCompile(`dv(?:he|av)\.(\d{2})\.(\d{2})`)

// MediaInfoProber invokes the mediainfo subprocess and maps its JSON output
// onto MediaInfo (spec.md §4.D "Subprocess mediainfo").
type MediaInfoProber struct {
	BinaryPath string
}

func NewMediaInfoProber(binaryPath string) *MediaInfoProber {
	return &MediaInfoProber{BinaryPath: binaryPath}
}

func (p *MediaInfoProber) Name() string { return "mediainfo" }

func (p *MediaInfoProber) Supports(path string) bool { return true }

func (p *MediaInfoProber) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	log := logger.Named("probe.mediainfo")
	bin := p.BinaryPath
	if bin == "" {
		bin = "mediainfo"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, apperrors.ToolNotFound(bin)
	}

	cmd := exec.CommandContext(ctx, bin, "--Output=JSON", path)
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

	var out mediainfoOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, apperrors.ParseError("mediainfo", err.Error())
	}

	info := &MediaInfo{FilePath: path, Container: containerFromExt(path)}
	videoIdx, audioIdx, subIdx := 0, 0, 0

	for _, tr := range out.Media.Track {
		switch tr.Type {
		case "General":
			if d, err := strconv.ParseFloat(tr.Duration, 64); err == nil {
				seconds := d / 1000
				info.Duration = &seconds
			}
			if sz, err := strconv.ParseInt(tr.FileSize, 10, 64); err == nil {
				info.FileSize = sz
			}
		case "Video":
			vt := mediainfoVideoTrack(tr, videoIdx)
			info.VideoTracks = append(info.VideoTracks, vt)
			videoIdx++
		case "Audio":
			at := mediainfoAudioTrack(tr, audioIdx)
			info.AudioTracks = append(info.AudioTracks, at)
			audioIdx++
		case "Text":
			info.SubtitleTracks = append(info.SubtitleTracks, SubtitleTrack{Index: subIdx, Codec: tr.Format, Language: tr.Language})
			subIdx++
		}
	}
	return info, nil
}

func mediainfoVideoTrack(tr mediainfoTrack, idx int) VideoTrack {
	vt := VideoTrack{
		Index:     idx,
		Codec:     mapMediainfoVideoCodec(tr.Format),
		Default:   strings.EqualFold(tr.Default, "Yes"),
		Language:  tr.Language,
		HdrFormat: HdrFormatSDR,
	}
	if w, err := strconv.Atoi(tr.Width); err == nil {
		vt.Width = w
	}
	if h, err := strconv.Atoi(tr.Height); err == nil {
		vt.Height = h
	}
	if bd, err := strconv.Atoi(tr.BitDepth); err == nil {
		vt.BitDepth = &bd
	}
	if fr, err := strconv.ParseFloat(tr.FrameRate, 64); err == nil {
		vt.FrameRate = &fr
	}

	switch {
	case strings.Contains(tr.HDRFormat, "Dolby Vision"):
		vt.HdrFormat = HdrFormatDolbyVision
		dv := &DvInfo{}
		if m := dvProfileToken.FindStringSubmatch(tr.CodecID + " " + tr.HDRFormat); m != nil {
			if p, err := strconv.Atoi(m[1]); err == nil {
				dv.Profile = uint8(p)
			}
		}
		vt.DolbyVision = dv
	case strings.Contains(tr.HDRFormat, "HDR10+"):
		vt.HdrFormat = HdrFormatHDR10Plus
	case strings.Contains(tr.HDRFormat, "HDR10"):
		vt.HdrFormat = HdrFormatHDR10
	case strings.Contains(tr.HDRFormat, "HLG"):
		vt.HdrFormat = HdrFormatHLG
	}
	return vt
}

func mediainfoAudioTrack(tr mediainfoTrack, idx int) AudioTrack {
	at := AudioTrack{
		Index:    idx,
		Codec:    mapMediainfoAudioCodec(tr.Format),
		Default:  strings.EqualFold(tr.Default, "Yes"),
		Language: tr.Language,
		Atmos:    strings.Contains(tr.Format, "Atmos"),
	}
	if ch, err := strconv.Atoi(tr.Channels); err == nil {
		at.Channels = ch
	}
	if sr, err := strconv.Atoi(tr.SamplingRate); err == nil {
		at.SampleRate = &sr
	}
	return at
}

func mapMediainfoVideoCodec(format string) VideoCodec {
	switch {
	case strings.Contains(format, "AVC"):
		return VideoCodecH264
	case strings.Contains(format, "HEVC"):
		return VideoCodecH265
	case strings.Contains(format, "AV1"):
		return VideoCodecAV1
	case strings.Contains(format, "VP9"):
		return VideoCodecVP9
	default:
		return VideoCodec(format)
	}
}

func mapMediainfoAudioCodec(format string) AudioCodec {
	switch {
	case strings.Contains(format, "AAC"):
		return AudioCodecAAC
	case strings.Contains(format, "E-AC-3"):
		return AudioCodecEAC3
	case strings.Contains(format, "AC-3"):
		return AudioCodecAC3
	case strings.Contains(format, "MLP") || strings.Contains(format, "TrueHD"):
		return AudioCodecTrueHD
	case strings.Contains(format, "DTS-HD"):
		return AudioCodecDTSHD
	case strings.Contains(format, "DTS"):
		return AudioCodecDTS
	case strings.Contains(format, "FLAC"):
		return AudioCodecFLAC
	case strings.Contains(format, "Opus"):
		return AudioCodecOpus
	default:
		return AudioCodec(format)
	}
}
