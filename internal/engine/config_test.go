package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tanq16/smartdl/internal/utils"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, utils.DefaultThreads, cfg.Threads)
	assert.Equal(t, utils.DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, cfg.ConnectTimeout, cfg.ReadTimeout)
	assert.Equal(t, int64(utils.DefaultMinChunkSize), cfg.MinChunkSize)
	assert.Equal(t, utils.DefaultRetriesPerMirror, cfg.RetriesPerMirror)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, utils.DefaultBufferSize, cfg.BufferSize)
	assert.NoError(t, cfg.validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "negative threads", cfg: Config{Threads: -1}},
		{name: "too many threads", cfg: Config{Threads: 500}},
		{name: "negative speed", cfg: Config{SpeedLimit: -5}},
		{name: "empty header key", cfg: Config{Headers: map[string]string{"": "x"}}},
		{name: "empty username", cfg: Config{BasicAuth: &BasicAuth{Password: "p"}}},
		{name: "unknown hash", cfg: Config{Hash: &HashSpec{Algorithm: "crc32", Expected: "abcd"}}},
		{name: "non hex digest", cfg: Config{Hash: &HashSpec{Algorithm: "md5", Expected: "xyz"}}},
		{name: "0x prefixed digest", cfg: Config{Hash: &HashSpec{Algorithm: "md5", Expected: "0x5d41402abc4b2a76b9719d911017c592"}}},
		{name: "negative read timeout", cfg: Config{ReadTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.withDefaults().validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigHTTPConfig(t *testing.T) {
	cfg := Config{Threads: 8, BasicAuth: &BasicAuth{Username: "u", Password: "p"}, UserAgent: "ua"}.withDefaults()
	httpCfg := cfg.httpConfig()
	assert.True(t, httpCfg.HighThreadMode)
	assert.Equal(t, "u", httpCfg.Username)
	assert.Equal(t, "p", httpCfg.Password)
	assert.Equal(t, "ua", httpCfg.UserAgent)
}

func TestResolveDestination(t *testing.T) {
	dir := t.TempDir()

	generated := resolveDestination("", "file.bin")
	assert.True(t, strings.HasPrefix(generated, filepath.Join(os.TempDir(), "smartdl")))
	assert.Equal(t, "file.bin", filepath.Base(generated))
	assert.NotEqual(t, generated, resolveDestination("", "file.bin"))

	assert.Equal(t, filepath.Join(dir, "file.bin"), resolveDestination(dir, "file.bin"))
	assert.Equal(t, filepath.Join(dir, "new", "file.bin"), resolveDestination(filepath.Join(dir, "new")+"/", "file.bin"))
	assert.Equal(t, filepath.Join(dir, "named.iso"), resolveDestination(filepath.Join(dir, "named.iso"), "file.bin"))
	assert.Equal(t, filepath.Join(dir, "download"), resolveDestination(dir, ""))
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, checkFreeSpace(dir, 1024, 4))
	assert.ErrorIs(t, checkFreeSpace(dir, 1<<62, 1), ErrInsufficientSpace)
}
