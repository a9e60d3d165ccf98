package actions

import (
	"context"
	"os/exec"
	"time"

	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/logger"
	"github.com/tidecast/mediapipe/internal/tools"
)

// Remux runs mkvmerge (or ffmpeg for MKV→MP4 when mkvmerge is unavailable)
// to rewrap a file into a new container without re-encoding (spec.md §4.F
// "Remux").
type Remux struct {
	Registry *tools.Registry
	Timeout  time.Duration
}

func (r *Remux) Run(ctx context.Context, ac *ActionContext) error {
	log := logger.Named("actions.remux")
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	ws := ac.Workspace
	output := ws.Output("." + ac.Config.Container)
	var cmd *exec.Cmd
	if r.Registry.Available(tools.Mkvmerge) {
		cmd = exec.CommandContext(ctx, r.Registry.Path(tools.Mkvmerge), "-o", output, ws.Input())
	} else {
		cmd = exec.CommandContext(ctx, r.Registry.Path(tools.FFmpeg), "-y", "-i", ws.Input(), "-c", "copy", output)
	}

	log.Debug("remuxing", "input", ws.Input(), "container", ac.Config.Container)
	err := cmd.Run()
	if err == nil {
		ws.SetInput(output)
		return nil
	}

	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return apperrors.ToolFailed(cmd.Path, err.Error(), -1)
	}
	// mkvmerge exit code 1 means "completed with warnings" — treat as success
	// (spec.md §4.F "treat exit code 1 as success").
	if exitErr.ExitCode() == 1 {
		ws.SetInput(output)
		return nil
	}
	return apperrors.ToolFailed(cmd.Path, err.Error(), exitErr.ExitCode())
}
