package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/smartdl/internal/metrics"
	"github.com/tanq16/smartdl/internal/utils"
)

type ChunkStatus string

const (
	ChunkPending  ChunkStatus = "pending"
	ChunkActive   ChunkStatus = "active"
	ChunkComplete ChunkStatus = "complete"
	ChunkFailed   ChunkStatus = "failed"
)

// ChunkState is the reportable view of a chunk.
type ChunkState struct {
	Index     int
	Range     Range
	Written   int64
	Status    ChunkStatus
	Cancelled bool
	Mirror    string
}

type chunk struct {
	index   int
	rng     Range
	sink    string
	written atomic.Int64
	counted int64 // high-water mark already added to the task counter

	mu        sync.Mutex
	status    ChunkStatus
	cancelled bool
	mirror    string
}

func newChunk(index int, rng Range, sink string) *chunk {
	return &chunk{index: index, rng: rng, sink: sink, status: ChunkPending}
}

func (c *chunk) setStatus(status ChunkStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

func (c *chunk) setMirror(mirror string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirror = mirror
}

func (c *chunk) state() ChunkState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChunkState{
		Index:     c.index,
		Range:     c.rng,
		Written:   c.written.Load(),
		Status:    c.status,
		Cancelled: c.cancelled,
		Mirror:    c.mirror,
	}
}

var (
	errReadTimeout = errors.New("mirror stopped sending data")
	// the stream broke while the worker sat at the pause gate
	errStaleAfterPause = errors.New("stream dropped while paused")
)

// chunkWorker holds what every worker of a task shares.
type chunkWorker struct {
	sources        []utils.Source
	start          int
	rangeSupported bool
	retries        int
	backoff        time.Duration
	bufferSize     int
	readTimeout    time.Duration
	limiter        *rateLimiter
	gate           *pauseGate
	progress       *progressTracker
	metrics        *metrics.Collector
}

// run fills the chunk's sink with exactly its range. Stream failures retry
// on the same mirror, then move to the next one from the current offset.
func (w *chunkWorker) run(ctx context.Context, c *chunk) error {
	w.metrics.WorkerStarted()
	defer w.metrics.WorkerDone()
	c.setStatus(ChunkActive)

	sink, err := os.OpenFile(c.sink, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		c.setStatus(ChunkFailed)
		return newTaskError(KindMergeFailure, err, "error opening chunk sink").withChunk(c.index)
	}
	defer sink.Close()

	if c.rng.Size() <= 0 {
		c.setStatus(ChunkComplete)
		return nil
	}

	mirrorIndex := w.start
	mirrorsTried := 1
	attempts := 0
	for {
		src := w.sources[mirrorIndex]
		c.setMirror(src.URL())
		err := w.attempt(ctx, c, sink, src)
		if err == nil {
			if err := sink.Sync(); err != nil {
				log.Warn().Str("op", "engine/chunk-worker").Err(err).Msgf("sync failed for chunk %d", c.index)
			}
			c.setStatus(ChunkComplete)
			return nil
		}
		if ctx.Err() != nil {
			return w.cancelled(ctx, c, sink)
		}
		if errors.Is(err, errStaleAfterPause) {
			log.Debug().Str("op", "engine/chunk-worker").Err(err).Msgf("chunk %d reopening %s at offset %d", c.index, src.URL(), c.written.Load())
			continue
		}

		attempts++
		w.metrics.ChunkRetry()
		log.Warn().Str("op", "engine/chunk-worker").Err(err).Msgf("chunk %d attempt %d on %s failed at offset %d", c.index, attempts, src.URL(), c.written.Load())
		if attempts > w.retries {
			if mirrorsTried >= len(w.sources) {
				c.setStatus(ChunkFailed)
				return newTaskError(KindStreamInterrupted, err, "retries exhausted on all %d mirror(s)", len(w.sources)).
					withChunk(c.index).withMirror(src.URL())
			}
			mirrorsTried++
			mirrorIndex = (mirrorIndex + 1) % len(w.sources)
			attempts = 0
			w.metrics.MirrorFailover()
			log.Info().Str("op", "engine/chunk-worker").Msgf("chunk %d moving to mirror %s", c.index, w.sources[mirrorIndex].URL())
			continue
		}

		select {
		case <-time.After(time.Duration(attempts) * w.backoff): // Backoff
		case <-ctx.Done():
			return w.cancelled(ctx, c, sink)
		}
	}
}

// attempt streams [start+written, end] from src into the sink. The attempt
// is cancelled when src sends nothing for readTimeout.
func (w *chunkWorker) attempt(ctx context.Context, c *chunk, sink *os.File, src utils.Source) error {
	offset := c.written.Load()
	if offset > 0 && !w.rangeSupported {
		// without ranges the only way back in is from byte zero
		if err := sink.Truncate(0); err != nil {
			return err
		}
		if _, err := sink.Seek(0, io.SeekStart); err != nil {
			return err
		}
		c.written.Store(0)
		offset = 0
	}
	startByte := c.rng.Start + offset
	endByte := c.rng.End
	if !w.rangeSupported {
		endByte = -1
	}

	attemptCtx, cancelAttempt := context.WithCancelCause(ctx)
	defer cancelAttempt(nil)
	idle := newWatchdog(w.readTimeout, cancelAttempt)
	defer idle.disarm()

	body, err := src.Fetch(attemptCtx, startByte, endByte)
	idle.disarm()
	if err != nil {
		return w.streamError(ctx, attemptCtx, err)
	}
	defer body.Close()

	remaining := c.rng.End - startByte + 1
	buffer := make([]byte, w.bufferSize)
	resumed := false
	for remaining > 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if w.gate.isPaused() {
			resumed = true
		}
		if err := w.gate.wait(ctx); err != nil {
			return err
		}
		idle.arm()
		bytesRead, readErr := body.Read(buffer[:min(int64(len(buffer)), remaining)])
		idle.disarm()
		if bytesRead > 0 {
			resumed = false
			if err := w.limiter.acquire(ctx, bytesRead); err != nil {
				return err
			}
			if _, err := sink.Write(buffer[:bytesRead]); err != nil {
				return fmt.Errorf("error writing chunk sink: %w", err)
			}
			remaining -= int64(bytesRead)
			w.count(c, int64(bytesRead))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if resumed && ctx.Err() == nil {
				return fmt.Errorf("%w: %w", errStaleAfterPause, readErr)
			}
			return w.streamError(ctx, attemptCtx, readErr)
		}
	}
	if remaining != 0 {
		return fmt.Errorf("%w: %d bytes short of chunk end", io.ErrUnexpectedEOF, remaining)
	}
	return nil
}

// streamError names an idle timeout instead of the bare cancellation it
// surfaces as.
func (w *chunkWorker) streamError(ctx, attemptCtx context.Context, err error) error {
	if ctx.Err() == nil && errors.Is(context.Cause(attemptCtx), errReadTimeout) {
		return fmt.Errorf("%w after %s: %w", errReadTimeout, w.readTimeout, err)
	}
	return err
}

// watchdog cancels an attempt once armed for longer than timeout. A zero
// timeout never fires.
type watchdog struct {
	timer   *time.Timer
	timeout time.Duration
}

func newWatchdog(timeout time.Duration, cancel context.CancelCauseFunc) *watchdog {
	if timeout <= 0 {
		return &watchdog{}
	}
	return &watchdog{
		timeout: timeout,
		timer:   time.AfterFunc(timeout, func() { cancel(errReadTimeout) }),
	}
}

func (d *watchdog) arm() {
	if d.timer != nil {
		d.timer.Reset(d.timeout)
	}
}

func (d *watchdog) disarm() {
	if d.timer != nil {
		d.timer.Stop()
	}
}

// count folds new bytes into the shared counter; bytes re-fetched after a
// restart are not counted twice.
func (w *chunkWorker) count(c *chunk, n int64) {
	written := c.written.Add(n)
	if written > c.counted {
		delta := written - c.counted
		c.counted = written
		w.progress.add(delta)
		w.metrics.AddBytes(delta)
	}
}

// cancelled discards this attempt's partial output.
func (w *chunkWorker) cancelled(ctx context.Context, c *chunk, sink *os.File) error {
	sink.Close()
	os.Remove(c.sink)
	c.mu.Lock()
	c.status = ChunkFailed
	c.cancelled = true
	c.mu.Unlock()
	return context.Cause(ctx)
}
