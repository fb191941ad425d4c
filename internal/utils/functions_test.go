package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHashSpec(t *testing.T) {
	algorithm, digest, err := ParseHashSpec("sha256: abcdef ")
	require.NoError(t, err)
	assert.Equal(t, "sha256", algorithm)
	assert.Equal(t, "abcdef", digest)

	for _, spec := range []string{"", "md5", "md5:", ":abc"} {
		_, _, err := ParseHashSpec(spec)
		assert.Error(t, err, spec)
	}
}

func TestFileNameFromURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/files/report.pdf":      "report.pdf",
		"https://example.com/files/my%20file.zip":   "my file.zip",
		"https://example.com/":                      "download",
		"https://example.com":                       "download",
		"https://example.com/a/b/c.tar.gz?sig=abc":  "c.tar.gz",
		"https://example.com/weird/na%3Ame%3F.txt":  "na_me_.txt",
	}
	for link, want := range tests {
		assert.Equal(t, want, FileNameFromURL(link), link)
	}
}

func TestParseHeaderArgs(t *testing.T) {
	headers := ParseHeaderArgs([]string{"Authorization: Bearer x:y", "X-Empty:", "broken"})
	assert.Equal(t, map[string]string{"Authorization": "Bearer x:y", "X-Empty": ""}, headers)
}

func TestPartPath(t *testing.T) {
	out := filepath.Join("downloads", "movie.mkv")
	assert.Equal(t, filepath.Join("downloads", TempDirName), TempDir(out))
	assert.Equal(t, filepath.Join("downloads", TempDirName, "movie.mkv.part3"), PartPath(out, 3))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	assert.False(t, IsTimeout(nil))
	assert.False(t, IsTimeout(errors.New("refused")))
	assert.True(t, IsTimeout(fmt.Errorf("probe: %w", context.DeadlineExceeded)))
	assert.True(t, IsTimeout(fmt.Errorf("dial: %w", timeoutErr{})))
}

func TestRenewOutputPath(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file-(1).txt"), nil, 0644))
	assert.Equal(t, filepath.Join(dir, "file-(2).txt"), RenewOutputPath(out))
}

func TestReadBatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	content := `downloads:
  - mirrors:
      - https://a.example.com/file.iso
      - https://b.example.com/file.iso
    op: ./file.iso
    hash: sha256:abcd
    threads: 8
  - mirrors: [https://c.example.com/notes.txt]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	entries, err := ReadBatchFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Len(t, entries[0].Mirrors, 2)
	assert.Equal(t, "./file.iso", entries[0].OutputPath)
	assert.Equal(t, "sha256:abcd", entries[0].Hash)
	assert.Equal(t, 8, entries[0].Threads)
	assert.Empty(t, entries[1].OutputPath)
}

func TestReadBatchFileInvalid(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.yaml")
	require.NoError(t, os.WriteFile(missing, []byte("downloads:\n  - op: x\n"), 0644))
	_, err := ReadBatchFile(missing)
	assert.ErrorContains(t, err, "missing mirrors")

	badHash := filepath.Join(dir, "hash.yaml")
	require.NoError(t, os.WriteFile(badHash, []byte("downloads:\n  - mirrors: [http://a/b]\n    hash: nodigest\n"), 0644))
	_, err = ReadBatchFile(badHash)
	assert.Error(t, err)

	_, err = ReadBatchFile(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestCleanFunction(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "a.bin")
	require.NoError(t, os.MkdirAll(TempDir(out), 0755))
	require.NoError(t, os.WriteFile(PartPath(out, 0), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(PartPath(out, 1), []byte("y"), 0644))
	other := PartPath(filepath.Join(dir, "b.bin"), 0)
	require.NoError(t, os.WriteFile(other, []byte("z"), 0644))

	require.NoError(t, CleanFunction(out))
	assert.NoFileExists(t, PartPath(out, 0))
	assert.FileExists(t, other)

	require.NoError(t, CleanFunction(filepath.Join(dir, "b.bin")))
	assert.NoDirExists(t, TempDir(out))
	assert.NoError(t, CleanFunction(out))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.00 KB", FormatBytes(1024))
	assert.Equal(t, "1.50 MB", FormatBytes(1536*1024))
	assert.Equal(t, "2.00 GB", FormatBytes(2<<30))
}
