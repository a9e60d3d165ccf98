// Package worker implements the concurrent worker pool that drains the job
// queue (spec.md §4.H): N workers loop dequeue → probe → match rule →
// execute actions → {complete | fail}, with cooperative cancellation and a
// bounded graceful shutdown. Grounded on the teacher's transcodingmodule
// worker-pool goroutine-per-worker + context.Context cancellation idiom.
package worker

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/tidecast/mediapipe/internal/actions"
	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/database"
	"github.com/tidecast/mediapipe/internal/events"
	"github.com/tidecast/mediapipe/internal/logger"
	"github.com/tidecast/mediapipe/internal/mediafiles"
	"github.com/tidecast/mediapipe/internal/probe"
	"github.com/tidecast/mediapipe/internal/queue"
	"github.com/tidecast/mediapipe/internal/rules"
)

// idleBackoff is how long an empty-queue worker sleeps before polling again.
const idleBackoff = 500 * time.Millisecond

// Pool runs Count workers draining store, each probing the job's file,
// picking the highest-priority matching rule, and running its actions
// through executor.
type Pool struct {
	Store      *queue.Store
	Prober     probe.Prober
	Engine     *rules.Engine
	Executor   *actions.Executor
	Events     *events.Bus       // optional; nil disables progress fan-out
	MediaFiles *mediafiles.Store // optional; nil skips MediaFile persistence

	Count               int
	WorkspaceRoot       string
	ShutdownGracePeriod time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// resolvedWorkerCount returns p.Count if set, else gopsutil's logical CPU
// count (the way the teacher sizes its transcode worker pool), falling back
// to runtime.NumCPU() if gopsutil can't report one.
func resolvedWorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	if counts, err := cpu.Counts(true); err == nil && counts > 0 {
		return counts
	}
	return runtime.NumCPU()
}

// Start launches the configured number of worker goroutines. It returns
// immediately; call Shutdown to stop them.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	n := resolvedWorkerCount(p.Count)
	log := logger.Named("worker.pool")
	log.Info("starting worker pool", "workers", n)

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		id := workerID(i)
		go func() {
			defer p.wg.Done()
			p.run(ctx, id)
		}()
	}
}

// Shutdown broadcasts cancellation and waits up to ShutdownGracePeriod for
// every worker to finish its current action before returning regardless of
// whether they have (spec.md §4.H: "bounded timeout ... before forcibly
// aborting" — since workers shell out via exec.CommandContext, cancellation
// kills the subprocess promptly; the bound here just caps how long Shutdown
// itself blocks).
func (p *Pool) Shutdown() {
	if p.cancel == nil {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	grace := p.ShutdownGracePeriod
	if grace <= 0 {
		grace = 30 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		logger.Named("worker.pool").Warn("shutdown grace period elapsed before all workers exited")
	}
}

func (p *Pool) run(ctx context.Context, id string) {
	log := logger.Named("worker").With("worker_id", id)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.Store.DequeueNext(id)
		if err != nil {
			log.Error("dequeue failed", "error", err)
			sleepOrDone(ctx, idleBackoff)
			continue
		}
		if job == nil {
			sleepOrDone(ctx, idleBackoff)
			continue
		}

		log.Info("claimed job", "job_id", job.ID, "file", job.FileName)
		p.process(ctx, job.ID, job.FilePath)
	}
}

func (p *Pool) process(ctx context.Context, jobID, filePath string) {
	log := logger.Named("worker").With("job_id", jobID)

	info, err := p.Prober.Probe(ctx, filePath)
	if err != nil {
		log.Warn("probe failed", "error", err)
		_ = p.Store.Fail(jobID, err.Error())
		p.publish(jobID, "failed", 0, "", err.Error())
		return
	}

	rule := p.Engine.FindMatchingRule(info)
	if rule == nil {
		log.Debug("no matching rule; completing with no actions")
		_ = p.Store.Complete(jobID)
		p.publish(jobID, "completed", 1, "", "")
		return
	}

	progress := func(evt actions.ProgressEvent) {
		frac := fractionComplete(evt, info.Duration)
		_ = p.Store.UpdateProgress(jobID, frac, "")
		p.publish(jobID, "processing", frac, "", "")
	}

	destination := "" // Executor.Run generates a workspace-scoped path when empty.
	outputPath, err := p.Executor.Run(ctx, p.WorkspaceRoot, filePath, destination, info, rule.Actions, progress)
	if err != nil {
		if pe, ok := err.(*apperrors.PipelineError); ok && !pe.Retryable() {
			log.Warn("job failed, non-retryable", "error", err)
		} else {
			log.Warn("job failed", "error", err)
		}
		_ = p.Store.Fail(jobID, err.Error())
		p.publish(jobID, "failed", 0, "", err.Error())
		return
	}

	p.recordMediaFile(jobID, outputPath, rule.Actions, log)

	log.Info("job completed", "rule", rule.Name)
	_ = p.Store.Complete(jobID)
	p.publish(jobID, "completed", 1, "", "")
}

// recordMediaFile persists the action chain's output as a MediaFile row
// (spec.md §3 "MediaFile") when the rule ran a ProfileBEncode step — the
// only action that produces the universal playback rendition the HLS
// precompute/serve path (§4.I-4.K) consumes. Remux-only and DvConvert-only
// rules also produce a new output file (Executor.Run finalizes every chain
// to a fresh path), but it is not Profile-B shaped and is not recorded; Jobs don't carry an item id of their own (that concept belongs
// to the out-of-scope catalog system), so the job id stands in as the
// grouping key, which is enough to keep "at most one Universal per item".
func (p *Pool) recordMediaFile(jobID, outputPath string, chain []rules.ActionConfig, log hclog.Logger) {
	if p.MediaFiles == nil || outputPath == "" {
		return
	}
	hasProfileB := false
	for _, a := range chain {
		if a.Type == rules.ActionProfileBEncode {
			hasProfileB = true
			break
		}
	}
	if !hasProfileB {
		return
	}
	size := int64(0)
	if fi, statErr := os.Stat(outputPath); statErr == nil {
		size = fi.Size()
	}
	if _, err := p.MediaFiles.Upsert(jobID, database.MediaFileRoleUniversal, database.MediaProfileB, outputPath, size); err != nil {
		log.Warn("failed to persist media file record", "error", err)
	}
}

// publish fans a progress update out over p.Events, a no-op when no bus is
// configured (e.g. in tests that don't care about live progress).
func (p *Pool) publish(jobID, status string, progress float64, step, errMsg string) {
	if p.Events == nil {
		return
	}
	p.Events.Publish(events.JobProgressEvent{
		JobID:    jobID,
		Status:   status,
		Progress: progress,
		Step:     step,
		Error:    errMsg,
	})
}

// fractionComplete turns one ProgressEvent into a 0..1 completion fraction
// using the probed source duration, the same out_time_us/duration ratio the
// teacher's transcodingmodule reports progress with. Duration is optional
// (spec.md §3 "duration (optional)"); when it's unknown or non-positive, the
// encode is reported as 0% until the final evt.Done snapshot jumps it to 1.
func fractionComplete(evt actions.ProgressEvent, duration *float64) float64 {
	if evt.Done {
		return 1.0
	}
	if duration == nil || *duration <= 0 {
		return 0.0
	}
	frac := (float64(evt.OutTimeUs) / 1e6) / *duration
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func workerID(i int) string {
	return "worker-" + strconv.Itoa(i)
}
