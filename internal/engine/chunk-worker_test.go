package engine

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/smartdl/internal/utils"
)

func newTestWorker(ranges bool, sources ...utils.Source) *chunkWorker {
	return &chunkWorker{
		sources:        sources,
		rangeSupported: ranges,
		retries:        1,
		backoff:        time.Millisecond,
		bufferSize:     64,
		limiter:        newRateLimiter(0),
		gate:           newPauseGate(),
		progress:       newProgressTracker(),
	}
}

func TestChunkWorkerFailsOverFromOffset(t *testing.T) {
	payload := testPayload(2000)
	flaky := &fakeSource{link: "http://a/f", data: payload, ranges: true, failAfter: 100}
	flaky.failures.Store(10)
	good := &fakeSource{link: "http://b/f", data: payload, ranges: true}
	w := newTestWorker(true, flaky, good)

	c := newChunk(0, Range{Start: 500, End: 1499}, filepath.Join(t.TempDir(), "f.part0"))
	require.NoError(t, w.run(context.Background(), c))

	data, err := os.ReadFile(c.sink)
	require.NoError(t, err)
	assert.Equal(t, payload[500:1500], data)
	assert.Equal(t, int64(1000), w.progress.downloaded.Load())
	assert.Equal(t, int32(2), flaky.fetches.Load())
	assert.Equal(t, int32(1), good.fetches.Load())

	state := c.state()
	assert.Equal(t, ChunkComplete, state.Status)
	assert.Equal(t, "http://b/f", state.Mirror)
	assert.Equal(t, int64(1000), state.Written)
}

func TestChunkWorkerRetriesExhausted(t *testing.T) {
	payload := testPayload(1000)
	a := &fakeSource{link: "http://a/f", data: payload, ranges: true, failAfter: 10}
	a.failures.Store(100)
	b := &fakeSource{link: "http://b/f", data: payload, ranges: true, failAfter: 10}
	b.failures.Store(100)
	w := newTestWorker(true, a, b)

	c := newChunk(3, Range{Start: 0, End: 999}, filepath.Join(t.TempDir(), "f.part3"))
	err := w.run(context.Background(), c)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamInterrupted)

	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, 3, taskErr.Chunk)
	assert.Equal(t, "http://b/f", taskErr.Mirror)
	assert.Equal(t, ChunkFailed, c.state().Status)
}

func TestChunkWorkerRestartWithoutRanges(t *testing.T) {
	payload := testPayload(1000)
	src := &fakeSource{link: "http://a/f", data: payload, failAfter: 300}
	src.failures.Store(1)
	w := newTestWorker(false, src)

	c := newChunk(0, Range{Start: 0, End: 999}, filepath.Join(t.TempDir(), "f.part0"))
	require.NoError(t, w.run(context.Background(), c))

	data, err := os.ReadFile(c.sink)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, int64(1000), w.progress.downloaded.Load())
}

func TestChunkWorkerEmptyRange(t *testing.T) {
	w := newTestWorker(true, &fakeSource{link: "http://a/f"})
	c := newChunk(0, Range{Start: 0, End: -1}, filepath.Join(t.TempDir(), "f.part0"))
	require.NoError(t, w.run(context.Background(), c))

	info, err := os.Stat(c.sink)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestChunkWorkerCancelled(t *testing.T) {
	w := newTestWorker(true, &fakeSource{link: "http://a/f", data: testPayload(100), ranges: true})
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrCancellationRequested)

	c := newChunk(0, Range{Start: 0, End: 99}, filepath.Join(t.TempDir(), "f.part0"))
	err := w.run(ctx, c)
	assert.ErrorIs(t, err, ErrCancellationRequested)
	assert.NoFileExists(t, c.sink)
	assert.True(t, c.state().Cancelled)
}

// stallSource sends the first sendBytes of every range, then goes silent
// until the request is cancelled.
type stallSource struct {
	link      string
	data      []byte
	sendBytes int
	fetches   atomic.Int32
}

func (s *stallSource) URL() string {
	return s.link
}

func (s *stallSource) Probe(ctx context.Context) (*utils.ProbeResult, error) {
	return &utils.ProbeResult{Size: int64(len(s.data)), RangeSupported: true}, nil
}

func (s *stallSource) Fetch(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	s.fetches.Add(1)
	body := s.data[start : end+1]
	body = body[:min(s.sendBytes, len(body))]
	return io.NopCloser(io.MultiReader(bytes.NewReader(body), blockingReader{ctx})), nil
}

type blockingReader struct {
	ctx context.Context
}

func (r blockingReader) Read([]byte) (int, error) {
	<-r.ctx.Done()
	return 0, context.Cause(r.ctx)
}

func TestChunkWorkerReadTimeoutFailsOver(t *testing.T) {
	payload := testPayload(2000)
	stalled := &stallSource{link: "http://a/f", data: payload, sendBytes: 100}
	good := &fakeSource{link: "http://b/f", data: payload, ranges: true}
	w := newTestWorker(true, stalled, good)
	w.readTimeout = 50 * time.Millisecond

	c := newChunk(0, Range{Start: 0, End: 1999}, filepath.Join(t.TempDir(), "f.part0"))
	require.NoError(t, w.run(context.Background(), c))

	data, err := os.ReadFile(c.sink)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, int32(2), stalled.fetches.Load())
	assert.Equal(t, int32(1), good.fetches.Load())
	assert.Equal(t, "http://b/f", c.state().Mirror)
	assert.Equal(t, int64(2000), w.progress.downloaded.Load())
}

func TestChunkWorkerReadTimeoutExhausted(t *testing.T) {
	stalled := &stallSource{link: "http://a/f", data: testPayload(500), sendBytes: 10}
	w := newTestWorker(true, stalled)
	w.readTimeout = 20 * time.Millisecond

	c := newChunk(0, Range{Start: 0, End: 499}, filepath.Join(t.TempDir(), "f.part0"))
	err := w.run(context.Background(), c)
	assert.ErrorIs(t, err, ErrStreamInterrupted)
	assert.ErrorIs(t, err, errReadTimeout)
	assert.False(t, c.state().Cancelled)
}

// idleSource drops a stream that sat idle for longer than maxIdle, the way
// servers close connections nobody reads from. Every fourth read pauses the
// worker's gate for pauseFor while pauses remain.
type idleSource struct {
	data     []byte
	maxIdle  time.Duration
	pauseFor time.Duration
	gate     *pauseGate
	pauses   atomic.Int32
	reads    atomic.Int32
	fetches  atomic.Int32
}

func (s *idleSource) URL() string {
	return "http://a/f"
}

func (s *idleSource) Probe(ctx context.Context) (*utils.ProbeResult, error) {
	return &utils.ProbeResult{Size: int64(len(s.data)), RangeSupported: true}, nil
}

func (s *idleSource) Fetch(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	s.fetches.Add(1)
	return io.NopCloser(&idleReader{src: s, data: s.data[start : end+1], last: time.Now()}), nil
}

type idleReader struct {
	src  *idleSource
	data []byte
	last time.Time
}

func (r *idleReader) Read(p []byte) (int, error) {
	if time.Since(r.last) > r.src.maxIdle {
		return 0, errFlaky
	}
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	r.last = time.Now()
	if r.src.reads.Add(1)%4 == 0 && r.src.pauses.Add(-1) >= 0 {
		r.src.gate.pause()
		time.AfterFunc(r.src.pauseFor, r.src.gate.resume)
	}
	return n, nil
}

func TestChunkWorkerReopensAfterPause(t *testing.T) {
	payload := testPayload(1000)
	src := &idleSource{data: payload, maxIdle: 50 * time.Millisecond, pauseFor: 150 * time.Millisecond}
	src.pauses.Store(3)
	w := newTestWorker(true, src)
	src.gate = w.gate

	c := newChunk(0, Range{Start: 0, End: 999}, filepath.Join(t.TempDir(), "f.part0"))
	require.NoError(t, w.run(context.Background(), c))

	data, err := os.ReadFile(c.sink)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	// one reopen per pause, none of them charged against the single retry
	assert.Equal(t, int32(4), src.fetches.Load())
	assert.Equal(t, int64(1000), w.progress.downloaded.Load())
}
