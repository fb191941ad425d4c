package engine

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

var hashFactories = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha224": sha256.New224,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

func hashFactory(algorithm string) (func() hash.Hash, bool) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(algorithm)), "-", "")
	factory, ok := hashFactories[name]
	return factory, ok
}

// ctxReader stops a long hash when the task is stopped.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if c.ctx.Err() != nil {
		return 0, context.Cause(c.ctx)
	}
	return c.r.Read(p)
}

// verifyFile hashes path and compares against spec. A nil spec passes.
func verifyFile(ctx context.Context, path string, spec *HashSpec) error {
	if spec == nil {
		return nil
	}
	factory, ok := hashFactory(spec.Algorithm)
	if !ok {
		return fmt.Errorf("unsupported hash algorithm %q", spec.Algorithm)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	h := factory()
	if _, err := io.Copy(h, &ctxReader{ctx: ctx, r: f}); err != nil {
		return err
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, strings.TrimSpace(spec.Expected)) {
		return &hashMismatchError{algorithm: spec.Algorithm, expected: spec.Expected, actual: actual}
	}
	return nil
}

type hashMismatchError struct {
	algorithm string
	expected  string
	actual    string
}

func (e *hashMismatchError) Error() string {
	return fmt.Sprintf("%s expected %s, got %s", e.algorithm, e.expected, e.actual)
}
