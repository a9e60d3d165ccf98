package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidecast/mediapipe/internal/actions"
	"github.com/tidecast/mediapipe/internal/database"
	"github.com/tidecast/mediapipe/internal/probe"
	"github.com/tidecast/mediapipe/internal/queue"
	"github.com/tidecast/mediapipe/internal/rules"
)

func newTestQueue(t *testing.T) *queue.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	db, err := database.Open(path)
	require.NoError(t, err)
	return queue.New(db)
}

func TestResolvedWorkerCountUsesConfiguredValue(t *testing.T) {
	assert.Equal(t, 4, resolvedWorkerCount(4))
}

func TestFractionCompleteScalesByDuration(t *testing.T) {
	duration := 100.0
	evt := actions.ProgressEvent{OutTimeUs: 25_000_000} // 25s of 100s
	assert.InDelta(t, 0.25, fractionComplete(evt, &duration), 0.0001)
}

func TestFractionCompleteClampsAtOne(t *testing.T) {
	duration := 10.0
	evt := actions.ProgressEvent{OutTimeUs: 50_000_000} // overshoot past duration
	assert.Equal(t, 1.0, fractionComplete(evt, &duration))
}

func TestFractionCompleteDoneAlwaysReportsOne(t *testing.T) {
	assert.Equal(t, 1.0, fractionComplete(actions.ProgressEvent{Done: true}, nil))
}

func TestFractionCompleteUnknownDurationReportsZero(t *testing.T) {
	evt := actions.ProgressEvent{OutTimeUs: 5_000_000}
	assert.Equal(t, 0.0, fractionComplete(evt, nil))
}

func TestResolvedWorkerCountAutoIsPositive(t *testing.T) {
	assert.Greater(t, resolvedWorkerCount(0), 0)
}

// TestSingleWorkerDequeuesInPriorityOrder mirrors the "worker pool priority"
// scenario: 3 jobs queued with priorities {0, 5, 10} must be claimed by a
// single worker in order 10, 5, 0. No rule matches, so every job completes
// immediately with no actions run.
func TestSingleWorkerDequeuesInPriorityOrder(t *testing.T) {
	store := newTestQueue(t)
	_, err := store.Create("/m/low.mkv", "low.mkv", "", 0)
	require.NoError(t, err)
	_, err = store.Create("/m/high.mkv", "high.mkv", "", 10)
	require.NoError(t, err)
	_, err = store.Create("/m/mid.mkv", "mid.mkv", "", 5)
	require.NoError(t, err)

	var order []string
	prober := fakeProber{info: &probe.MediaInfo{Container: "mkv"}}
	engine := rules.New(nil) // no rules, so every job completes with no actions

	pool := &Pool{
		Store:    store,
		Prober:   prober,
		Engine:   engine,
		Executor: &actions.Executor{},
		Count:    1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		job, err := store.DequeueNext("w")
		require.NoError(t, err)
		require.NotNil(t, job)
		order = append(order, job.FileName)
		pool.process(ctx, job.ID, job.FilePath)
	}

	assert.Equal(t, []string{"high.mkv", "mid.mkv", "low.mkv"}, order)

	completed, err := store.List(database.JobStatusCompleted, 0, 0)
	require.NoError(t, err)
	assert.Len(t, completed, 3)
}

func TestStartAndShutdownDrainsQueueWithNoMatchingRule(t *testing.T) {
	store := newTestQueue(t)
	_, err := store.Create("/m/a.mkv", "a.mkv", "", 0)
	require.NoError(t, err)
	_, err = store.Create("/m/b.mkv", "b.mkv", "", 0)
	require.NoError(t, err)

	pool := &Pool{
		Store:               store,
		Prober:              fakeProber{info: &probe.MediaInfo{Container: "mkv"}},
		Engine:              rules.New(nil),
		Executor:            &actions.Executor{},
		Count:               2,
		ShutdownGracePeriod: 2 * time.Second,
	}

	pool.Start(context.Background())
	require.Eventually(t, func() bool {
		completed, err := store.List(database.JobStatusCompleted, 0, 0)
		return err == nil && len(completed) == 2
	}, time.Second, 10*time.Millisecond)

	pool.Shutdown()
}

type fakeProber struct {
	info *probe.MediaInfo
	err  error
}

func (f fakeProber) Name() string           { return "fake" }
func (f fakeProber) Supports(path string) bool { return true }
func (f fakeProber) Probe(ctx context.Context, path string) (*probe.MediaInfo, error) {
	return f.info, f.err
}
