package actions

import (
	"context"

	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/logger"
	"github.com/tidecast/mediapipe/internal/probe"
	"github.com/tidecast/mediapipe/internal/rules"
)

// ActionContext is what every Action.Run call receives: the job's
// workspace, the action's own config variant, the source file's probed
// MediaInfo (ProfileBEncode needs the source resolution; the others
// ignore it), and a progress callback (only ProfileBEncode reports
// progress; others may leave it unused).
type ActionContext struct {
	Workspace *Workspace
	Config    rules.ActionConfig
	Info      *probe.MediaInfo
	Progress  ProgressCallback
}

// Action is one runnable step of a rule's action list.
type Action interface {
	Run(ctx context.Context, ac *ActionContext) error
}

// Executor runs a rule's ActionConfig list sequentially in declared order,
// aborting on the first error (spec.md §4.F: "Actions run sequentially in
// declared order"). It owns the workspace's lifecycle, guaranteeing cleanup
// on every exit path.
type Executor struct {
	Remux          *Remux
	DvConvert      *DvConvert
	ProfileB       *ProfileBEncode
	AddCompatAudio *AddCompatAudio
}

// Run executes actions against sourcePath, returning the final output
// path once every action has succeeded and the workspace has been
// finalized to destination (or an auto-generated path if destination is
// empty).
func (e *Executor) Run(ctx context.Context, workspaceRoot, sourcePath, destination string, info *probe.MediaInfo, configs []rules.ActionConfig, progress ProgressCallback) (string, error) {
	log := logger.Named("actions.executor")
	ws, err := NewWorkspace(workspaceRoot, sourcePath)
	if err != nil {
		return "", err
	}
	defer ws.Close()

	for _, cfg := range configs {
		ac := &ActionContext{Workspace: ws, Config: cfg, Info: info, Progress: progress}
		action, err := e.resolve(cfg.Type)
		if err != nil {
			return "", err
		}
		log.Debug("running action", "type", cfg.Type)
		if err := action.Run(ctx, ac); err != nil {
			return "", err
		}
	}

	return ws.Finalize(ws.Input(), destination)
}

func (e *Executor) resolve(actionType string) (Action, error) {
	switch actionType {
	case rules.ActionRemux:
		return e.Remux, nil
	case rules.ActionDvConvert:
		return e.DvConvert, nil
	case rules.ActionProfileBEncode:
		return e.ProfileB, nil
	case rules.ActionAddCompatAudio:
		return e.AddCompatAudio, nil
	default:
		return nil, apperrors.Validation("action.type", "unknown action type: "+actionType)
	}
}
