package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanq16/smartdl/internal/utils"
)

func testPayload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

func testConfig() Config {
	return Config{
		Threads:          4,
		MinChunkSize:     1024,
		RetriesPerMirror: 1,
		RetryBackoff:     5 * time.Millisecond,
		ConnectTimeout:   2 * time.Second,
		BufferSize:       4096,
		SkipSpaceCheck:   true,
	}
}

// newMirror serves payload with full range support.
func newMirror(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "file.bin", time.Time{}, bytes.NewReader(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newHandlerMirror(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

var errFlaky = errors.New("connection reset")

// fakeSource serves data from memory. Each Fetch fails after failAfter
// bytes while failures remain.
type fakeSource struct {
	link      string
	data      []byte
	ranges    bool
	probeErr  error
	failAfter int
	failures  atomic.Int32
	fetches   atomic.Int32
}

func (f *fakeSource) URL() string {
	return f.link
}

func (f *fakeSource) Probe(ctx context.Context) (*utils.ProbeResult, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &utils.ProbeResult{Size: int64(len(f.data)), RangeSupported: f.ranges, FileName: "fake.bin"}, nil
}

func (f *fakeSource) Fetch(ctx context.Context, start, end int64) (io.ReadCloser, error) {
	f.fetches.Add(1)
	if end < 0 {
		start, end = 0, int64(len(f.data))-1
	}
	body := f.data[start : end+1]
	if f.failures.Load() > 0 && len(body) > f.failAfter {
		f.failures.Add(-1)
		return io.NopCloser(io.MultiReader(bytes.NewReader(body[:f.failAfter]), errReader{})), nil
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errFlaky
}

func fakeFactory(sources map[string]*fakeSource) sourceFactory {
	return func(ctx context.Context, link string, cfg Config) (utils.Source, error) {
		src, ok := sources[link]
		if !ok {
			return nil, utils.ErrUnsupportedScheme
		}
		return src, nil
	}
}
