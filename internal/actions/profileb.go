package actions

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/logger"
	"github.com/tidecast/mediapipe/internal/tools"
)

// ProfileBEncode produces the "universal" playback rendition: H.264 High
// + AAC-LC stereo in an MP4 with +faststart (spec.md §3 "Profile B",
// §4.F "ProfileBEncode").
type ProfileBEncode struct {
	Registry       *tools.Registry
	Timeout        time.Duration
	HardwareAccel  string // "", videotoolbox, nvenc, vaapi, qsv
	AdaptiveCRF    bool
	ConfiguredCRF  int
	ProgressEvery  time.Duration
}

// crfForHeight implements the adaptive CRF table (spec.md §4.F
// "ProfileBEncode"): ≤480⇒12, ≤720⇒14, ≤1080⇒15, else 18.
func crfForHeight(height int) int {
	switch {
	case height <= 480:
		return 12
	case height <= 720:
		return 14
	case height <= 1080:
		return 15
	default:
		return 18
	}
}

// hwAccelArgs maps HardwareAccel to its {-hwaccel ...} args, an encoder
// name, and whether the encoder is bitrate-controlled (no CRF) per
// spec.md §4.F's hardware acceleration mapping.
func hwAccelArgs(accel string) (hwaccelArgs []string, encoder string, bitrateControlled bool) {
	switch accel {
	case "videotoolbox":
		return nil, "h264_videotoolbox", true
	case "nvenc":
		return []string{"-hwaccel", "cuda"}, "h264_nvenc", true
	case "vaapi":
		return []string{"-hwaccel", "vaapi", "-hwaccel_output_format", "vaapi"}, "h264_vaapi", true
	case "qsv":
		return nil, "h264_qsv", true
	default:
		return nil, "libx264", false
	}
}

func (p *ProfileBEncode) Run(ctx context.Context, ac *ActionContext) error {
	log := logger.Named("actions.profileb")
	if !p.Registry.Available(tools.FFmpeg) {
		return apperrors.ToolNotFound(string(tools.FFmpeg))
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	ws := ac.Workspace
	output := ws.Output(".mp4")

	height := 1080
	if ac.Info != nil {
		if v := ac.Info.PrimaryVideo(); v != nil && v.Height > 0 {
			height = v.Height
		}
	}
	crf := p.ConfiguredCRF
	if p.AdaptiveCRF {
		crf = crfForHeight(height)
	}

	hwaccel, encoder, bitrateControlled := hwAccelArgs(p.HardwareAccel)

	args := []string{"-y"}
	args = append(args, hwaccel...)
	args = append(args, "-i", ws.Input(), "-c:v", encoder, "-profile:v", "high")
	if bitrateControlled {
		args = append(args, "-b:v", "5M", "-maxrate", "8M", "-bufsize", "16M")
	} else {
		args = append(args, "-crf", fmt.Sprintf("%d", crf), "-preset", "slow")
	}
	args = append(args,
		"-vf", "scale='min(1920,iw)':'min(1080,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2",
		"-force_key_frames", "expr:gte(t,n_forced*2)",
		"-c:a", "aac", "-b:a", "256k", "-ac", "2",
		"-movflags", "+faststart",
		"-map", "0:v:0", "-map", "0:a:0",
		"-progress", "pipe:2", "-nostats",
		output,
	)

	cmd := exec.CommandContext(ctx, p.Registry.Path(tools.FFmpeg), args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apperrors.Internal("open ffmpeg stderr pipe", err)
	}

	log.Debug("encoding profile B rendition", "height", height, "crf", crf, "hwaccel", p.HardwareAccel)
	if err := cmd.Start(); err != nil {
		return apperrors.ToolFailed(string(tools.FFmpeg), err.Error(), -1)
	}

	throttle := p.ProgressEvery
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	watchProgress(stderr, throttle, ac.Progress)

	if err := cmd.Wait(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		if ctx.Err() == context.Canceled {
			return apperrors.Cancelled()
		}
		return apperrors.ToolFailed(string(tools.FFmpeg), err.Error(), exitCode)
	}

	ws.SetInput(output)
	return nil
}

// AddCompatAudio appends a transcoded compatibility audio track (e.g.
// TrueHD → AC3) alongside the existing tracks without touching video
// (spec.md §3 "ActionConfig" variant AddCompatAudio).
type AddCompatAudio struct {
	Registry *tools.Registry
	Timeout  time.Duration
}

func (a *AddCompatAudio) Run(ctx context.Context, ac *ActionContext) error {
	if !a.Registry.Available(tools.FFmpeg) {
		return apperrors.ToolNotFound(string(tools.FFmpeg))
	}
	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	ws := ac.Workspace
	output := ws.Output(".mkv")
	targetCodec := ac.Config.TargetCodec
	if targetCodec == "" {
		targetCodec = "ac3"
	}

	cmd := exec.CommandContext(ctx, a.Registry.Path(tools.FFmpeg),
		"-y", "-i", ws.Input(),
		"-map", "0", "-c", "copy",
		"-map", "0:a:0", "-c:a:1", targetCodec, "-b:a:1", "640k",
		output,
	)
	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return apperrors.ToolFailed(string(tools.FFmpeg), err.Error(), exitCode)
	}
	ws.SetInput(output)
	return nil
}
