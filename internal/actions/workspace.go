// Package actions implements spec.md component 4.F: the scoped per-job
// workspace and the Remux / DvConvert / ProfileBEncode / AddCompatAudio
// action executors that run against it.
package actions

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/tidecast/mediapipe/internal/apperrors"
)

// Workspace is a temp directory created on entry and cleaned up on every
// exit path (success, failure, cancellation) per spec.md §4.F.
type Workspace struct {
	dir       string
	inputPath string
}

// NewWorkspace creates a temp directory under root and copies in the
// original input's path (the source file itself is never moved, only
// referenced — actions read it directly via Input()).
func NewWorkspace(root, inputPath string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Internal("create workspace root", err)
	}
	dir, err := os.MkdirTemp(root, "job-*")
	if err != nil {
		return nil, apperrors.Internal("create job workspace", err)
	}
	return &Workspace{dir: dir, inputPath: inputPath}, nil
}

// Close removes the entire workspace directory. Safe to call on every exit
// path; idempotent.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.dir)
}

// Input returns the path actions should read the current pipeline stage's
// input from.
func (w *Workspace) Input() string { return w.inputPath }

// SetInput rebinds Input() for the next action in the chain — each action
// in sequence consumes the previous one's Output() as its own Input().
func (w *Workspace) SetInput(path string) { w.inputPath = path }

// Output returns a fresh path inside the workspace for an action's primary
// output file, named to avoid colliding with TempFile() scratch files.
func (w *Workspace) Output(ext string) string {
	return filepath.Join(w.dir, "output"+ext)
}

// TempFile returns a path inside the workspace for an intermediate
// scratch file (RPU sidecars, elementary streams, ...).
func (w *Workspace) TempFile(name string) string {
	return filepath.Join(w.dir, name)
}

// Finalize atomically renames src (normally the return value of the last
// action's Output()) to destination. If destination is empty, a unique
// path under the workspace root is generated so the result survives the
// workspace's own Close().
func (w *Workspace) Finalize(src, destination string) (string, error) {
	if destination == "" {
		destination = filepath.Join(filepath.Dir(w.dir), uuid.NewString()+filepath.Ext(src))
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return "", apperrors.Internal("create finalize destination dir", err)
	}
	if err := os.Rename(src, destination); err != nil {
		return "", apperrors.Internal("finalize workspace output", err)
	}
	return destination, nil
}
