package actions

import (
	"context"
	"os/exec"
	"time"

	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/logger"
	"github.com/tidecast/mediapipe/internal/tools"
)

// DvConvert rewrites a Dolby Vision RPU from one profile to another —
// P7→P8.1 is the pipeline's only configured use (spec.md §4.F "DvConvert").
// Steps: extract the HEVC elementary stream, extract the RPU sidecar,
// convert it, reinject, remux. No Go-native DV RPU conversion library
// turned up anywhere in this pipeline's dependency set, so step 3 always
// delegates to `dovi_tool convert --mode 2` rather than reimplementing the
// RPU rewrite in-process (spec.md §4.F step 3's documented fallback path).
type DvConvert struct {
	Registry *tools.Registry
	Timeout  time.Duration
}

func (d *DvConvert) Run(ctx context.Context, ac *ActionContext) error {
	log := logger.Named("actions.dvconvert")
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	ws := ac.Workspace
	hevc := ws.TempFile("video.hevc")
	if err := d.extractElementaryStream(ctx, ws.Input(), hevc); err != nil {
		return err
	}

	rpu := ws.TempFile("RPU.bin")
	if err := d.run(ctx, tools.DoviTool, "extract-rpu", "-i", hevc, "-o", rpu); err != nil {
		return err
	}

	rpuConverted := ws.TempFile("RPU_converted.bin")
	if err := d.run(ctx, tools.DoviTool, "convert", "--mode", "2", "-i", rpu, "-o", rpuConverted); err != nil {
		return err
	}

	converted := ws.TempFile("video_converted.hevc")
	if err := d.run(ctx, tools.DoviTool, "inject-rpu", "-i", hevc, "--rpu-in", rpuConverted, "-o", converted); err != nil {
		return err
	}

	output := ws.Output(".mkv")
	if err := d.run(ctx, tools.Mkvmerge, "-o", output, converted, "--no-video", ws.Input()); err != nil {
		return err
	}

	log.Debug("dv convert complete", "target_profile", ac.Config.TargetProfile)
	ws.SetInput(output)
	return nil
}

func (d *DvConvert) extractElementaryStream(ctx context.Context, input, out string) error {
	return d.run(ctx, tools.FFmpeg, "-y", "-i", input, "-c:v", "copy", "-bsf:v", "hevc_mp4toannexb", "-an", "-sn", "-f", "hevc", out)
}

func (d *DvConvert) run(ctx context.Context, tool tools.Name, args ...string) error {
	if !d.Registry.Available(tool) {
		return apperrors.ToolNotFound(string(tool))
	}
	cmd := exec.CommandContext(ctx, d.Registry.Path(tool), args...)
	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return apperrors.ToolFailed(string(tool), err.Error(), exitCode)
	}
	return nil
}
