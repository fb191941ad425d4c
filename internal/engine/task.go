package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/smartdl/internal/metrics"
	"github.com/tanq16/smartdl/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Task downloads one resource from a list of mirrors. It is created
// resolved, started once, and read-only after reaching a terminal status.
type Task struct {
	ID          string
	mirrors     []string
	destination string
	factory     sourceFactory
	metrics     *metrics.Collector

	mu         sync.RWMutex
	status     Status
	phase      Phase
	cfg        Config
	dirty      bool // credentials changed after resolution
	resolution *resolution
	chunks     []*chunk
	cancel     context.CancelCauseFunc

	stopping atomic.Bool
	progress *progressTracker
	errors   errorCollector
	limiter  *rateLimiter
	gate     *pauseGate
	done     chan struct{}
	doneOnce sync.Once
}

// New validates cfg and resolves mirrors. Creation fails when no mirror is
// reachable or the last mirror times out.
func New(ctx context.Context, mirrors []string, destination string, cfg Config) (*Task, error) {
	return newTask(ctx, mirrors, destination, cfg, newSource)
}

func newTask(ctx context.Context, mirrors []string, destination string, cfg Config, factory sourceFactory) (*Task, error) {
	if len(mirrors) == 0 {
		return nil, newTaskError(KindInvalidConfig, nil, "at least one mirror is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	t := &Task{
		ID:       uuid.NewString(),
		mirrors:  slices.Clone(mirrors),
		factory:  factory,
		metrics:  cfg.Metrics,
		status:   StatusCreated,
		phase:    PhaseIdle,
		cfg:      cfg,
		progress: newProgressTracker(),
		limiter:  newRateLimiter(cfg.SpeedLimit),
		gate:     newPauseGate(),
		done:     make(chan struct{}),
	}
	res, err := resolveMirrors(ctx, t.mirrors, cfg, factory)
	if err != nil {
		return nil, err
	}
	t.resolution = res
	t.progress.total.Store(res.size)
	t.destination = resolveDestination(destination, res.fileName)
	log.Debug().Str("op", "engine/task").Msgf("task %s created for %s", t.ID, t.destination)
	return t, nil
}

// Start begins the download in the background. It only succeeds once, from
// StatusCreated; setup failures are returned here.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.status != StatusCreated {
		status := t.status
		t.mu.Unlock()
		return newTaskError(KindInvalidStateTransition, nil, "cannot start a task that is %s", status)
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	t.cancel = cancel
	t.status = StatusConnecting
	t.phase = PhaseResolving
	cfg := t.cfg
	res := t.resolution
	dirty := t.dirty
	t.mu.Unlock()

	if dirty {
		var err error
		res, err = resolveMirrors(runCtx, t.mirrors, cfg, t.factory)
		if err != nil {
			return t.abortSetup(runCtx, err)
		}
	}

	threads := cfg.Threads
	if !res.rangeSupported {
		threads = 1
	}
	ranges := Plan(res.size, threads, cfg.MinChunkSize)
	chunks := make([]*chunk, len(ranges))
	for i, rng := range ranges {
		chunks[i] = newChunk(i, rng, utils.PartPath(t.destination, i))
	}
	if err := os.MkdirAll(utils.TempDir(t.destination), 0755); err != nil {
		return t.abortSetup(runCtx, newTaskError(KindMergeFailure, err, "error creating temp directory"))
	}
	if !cfg.SkipSpaceCheck {
		if err := checkFreeSpace(filepath.Dir(t.destination), res.size, len(chunks)); err != nil {
			return t.abortSetup(runCtx, err)
		}
	}

	t.mu.Lock()
	if runCtx.Err() != nil {
		t.mu.Unlock()
		return t.abortSetup(runCtx, context.Cause(runCtx))
	}
	t.resolution = res
	t.chunks = chunks
	t.status = StatusDownloading
	t.phase = PhaseDownloading
	t.mu.Unlock()
	t.progress.total.Store(res.size)

	worker := &chunkWorker{
		sources:        res.sources,
		start:          res.start,
		rangeSupported: res.rangeSupported,
		retries:        cfg.RetriesPerMirror,
		backoff:        cfg.RetryBackoff,
		bufferSize:     cfg.BufferSize,
		readTimeout:    cfg.ReadTimeout,
		limiter:        t.limiter,
		gate:           t.gate,
		progress:       t.progress,
		metrics:        t.metrics,
	}
	log.Info().Str("op", "engine/task").Msgf("downloading %s from %s in %d chunk(s)", utils.FormatBytes(uint64(res.size)), res.resolvedURL(), len(chunks))
	go t.run(runCtx, worker, chunks, res.size, cfg.Threads, cfg.Hash)
	return nil
}

// Run starts the task and blocks until it reaches a terminal status.
// Failures after setup are only visible through Status and Errors.
func (t *Task) Run(ctx context.Context) error {
	if err := t.Start(ctx); err != nil {
		return err
	}
	t.Wait()
	return nil
}

func (t *Task) run(ctx context.Context, worker *chunkWorker, chunks []*chunk, size int64, threads int, hashSpec *HashSpec) {
	t.progress.start()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for _, c := range chunks {
		g.Go(func() error {
			return worker.run(gctx, c)
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		t.finishStopped()
		return
	}
	if err != nil {
		var taskErr *TaskError
		if !errors.As(err, &taskErr) {
			taskErr = newTaskError(KindStreamInterrupted, err, "chunk download failed")
		}
		t.errors.add(taskErr)
		t.finish(StatusFailed)
		return
	}

	t.setPhase(PhaseMerging)
	if err := mergeChunks(ctx, t.destination, chunks, size); err != nil {
		if ctx.Err() != nil {
			t.finishStopped()
			return
		}
		t.errors.add(newTaskError(KindMergeFailure, err, "could not assemble %s", t.destination))
		t.finish(StatusFailed)
		return
	}

	if hashSpec != nil {
		t.setPhase(PhaseVerifying)
		if err := verifyFile(ctx, t.destination, hashSpec); err != nil {
			os.Remove(t.destination)
			if ctx.Err() != nil {
				t.finishStopped()
				return
			}
			var mismatch *hashMismatchError
			if errors.As(err, &mismatch) {
				t.errors.add(newTaskError(KindHashMismatch, err, "integrity check failed for %s", t.destination))
			} else {
				t.errors.add(newTaskError(KindMergeFailure, err, "could not read %s for verification", t.destination))
			}
			t.finish(StatusFailed)
			return
		}
	}
	if ctx.Err() != nil {
		os.Remove(t.destination)
		t.finishStopped()
		return
	}
	t.finish(StatusFinished)
}

// abortSetup ends a task that failed before any worker started.
func (t *Task) abortSetup(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		t.finishStopped()
		return newTaskError(KindCancellationRequested, context.Cause(ctx), "task stopped while connecting")
	}
	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		taskErr = newTaskError(KindMirrorUnreachable, err, "setup failed")
	}
	t.errors.add(taskErr)
	t.finish(StatusFailed)
	return taskErr
}

func (t *Task) finishStopped() {
	t.errors.add(newTaskError(KindCancellationRequested, nil, "download stopped"))
	t.finish(StatusStopped)
}

func (t *Task) finish(status Status) {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	// Stop marks stopping under mu, so a stop that lands after the last
	// check in run still beats completion here.
	stopped := status == StatusFinished && t.stopping.Load()
	if stopped {
		status = StatusStopped
		t.errors.add(newTaskError(KindCancellationRequested, nil, "download stopped"))
	}
	t.status = status
	t.phase = PhaseDone
	cancel := t.cancel
	t.mu.Unlock()
	if stopped {
		os.Remove(t.destination)
	}
	if cancel != nil {
		cancel(context.Canceled)
	}
	t.afterFinish(status)
}

func (t *Task) afterFinish(status Status) {
	t.progress.finish()
	cleanupSinks(t.destination)
	t.metrics.TaskFinished(status.String())
	switch status {
	case StatusFinished:
		log.Info().Str("op", "engine/task").Msgf("task %s finished: %s", t.ID, t.destination)
	case StatusStopped:
		log.Info().Str("op", "engine/task").Msgf("task %s stopped", t.ID)
	default:
		log.Error().Str("op", "engine/task").Msgf("task %s failed with %d error(s)", t.ID, t.errors.len())
	}
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *Task) setPhase(phase Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = phase
	if t.status == StatusPaused {
		t.status = StatusDownloading
		t.gate.resume()
	}
}

// Pause holds every worker before its next read. Connections stay open.
func (t *Task) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusDownloading || t.phase != PhaseDownloading {
		return
	}
	t.status = StatusPaused
	t.gate.pause()
	log.Debug().Str("op", "engine/task").Msgf("task %s paused", t.ID)
}

func (t *Task) Unpause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPaused {
		return
	}
	t.status = StatusDownloading
	t.gate.resume()
	log.Debug().Str("op", "engine/task").Msgf("task %s resumed", t.ID)
}

// Stop cancels the task and waits for its workers to unwind. No output is
// left at the destination.
func (t *Task) Stop() {
	t.mu.Lock()
	if t.status == StatusCreated {
		t.status = StatusStopped
		t.phase = PhaseDone
		t.mu.Unlock()
		t.errors.add(newTaskError(KindCancellationRequested, nil, "download stopped before start"))
		t.afterFinish(StatusStopped)
		return
	}
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.stopping.Store(true)
	cancel := t.cancel
	t.mu.Unlock()
	cancel(ErrCancellationRequested)
	<-t.done
}

// Wait blocks until the task is terminal. A task that was never started has
// nothing to wait for.
func (t *Task) Wait() {
	if t.Status() == StatusCreated {
		return
	}
	<-t.done
}

// Done is closed once the task is terminal.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Task) Phase() Phase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase
}

func (t *Task) IsSuccessful() bool {
	return t.Status() == StatusFinished && t.errors.len() == 0
}

func (t *Task) Errors() []*TaskError {
	return t.errors.list()
}

func (t *Task) Downloaded() int64 {
	return t.progress.downloaded.Load()
}

// Size is the resolved resource size in bytes.
func (t *Task) Size() int64 {
	return t.progress.total.Load()
}

func (t *Task) Destination() string {
	return t.destination
}

func (t *Task) StopRequested() bool {
	return t.stopping.Load()
}

func (t *Task) Elapsed() time.Duration {
	return t.progress.elapsed()
}

// Mirrors returns the probe outcome of every mirror from the latest
// resolution.
func (t *Task) Mirrors() []MirrorCandidate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.resolution.candidates)
}

func (t *Task) Progress() Progress {
	p := t.progress.snapshot()
	t.mu.RLock()
	chunks := t.chunks
	t.mu.RUnlock()
	p.Chunks = make([]ChunkState, len(chunks))
	for i, c := range chunks {
		p.Chunks[i] = c.state()
	}
	return p
}

// LimitSpeed caps the aggregate rate of all workers. Zero removes the cap.
// It may be called at any time.
func (t *Task) LimitSpeed(bytesPerSecond int64) {
	t.mu.Lock()
	t.cfg.SpeedLimit = max(bytesPerSecond, 0)
	t.mu.Unlock()
	t.limiter.setLimit(bytesPerSecond)
}

func (t *Task) AddHashVerification(algorithm, expectedHex string) error {
	spec := &HashSpec{Algorithm: algorithm, Expected: expectedHex}
	if err := validate.Struct(spec); err != nil {
		return newTaskError(KindInvalidConfig, err, "invalid hash verification")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusCreated {
		return newTaskError(KindInvalidStateTransition, nil, "hash verification must be added before start")
	}
	t.cfg.Hash = spec
	return nil
}

func (t *Task) AddBasicAuthentication(username, password string) error {
	if username == "" {
		return newTaskError(KindInvalidConfig, nil, "username is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusCreated {
		return newTaskError(KindInvalidStateTransition, nil, "authentication must be added before start")
	}
	t.cfg.BasicAuth = &BasicAuth{Username: username, Password: password}
	t.dirty = true
	return nil
}

// Data returns the downloaded content, or its first limit bytes when limit
// is positive. Only valid once finished.
func (t *Task) Data(limit int64) ([]byte, error) {
	if t.Status() != StatusFinished {
		return nil, newTaskError(KindInvalidStateTransition, nil, "data is only available once finished")
	}
	f, err := os.Open(t.destination)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit)
	}
	return io.ReadAll(r)
}

func (t *Task) Text(limit int64) (string, error) {
	data, err := t.Data(limit)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *Task) JSON(v any) error {
	data, err := t.Data(0)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
