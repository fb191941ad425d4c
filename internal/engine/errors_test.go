package engine

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskErrorMatching(t *testing.T) {
	err := newTaskError(KindStreamInterrupted, io.ErrUnexpectedEOF, "retries exhausted").
		withChunk(2).withMirror("http://a/file")

	assert.True(t, errors.Is(err, ErrStreamInterrupted))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, ErrHashMismatch))
	assert.Contains(t, err.Error(), "StreamInterrupted")
	assert.Contains(t, err.Error(), "(chunk 2)")
	assert.Contains(t, err.Error(), "[http://a/file]")
}

func TestTaskErrorDefaults(t *testing.T) {
	err := newTaskError(KindHashMismatch, nil, "bad digest")
	assert.Equal(t, -1, err.Chunk)
	assert.Equal(t, "HashMismatch: bad digest", err.Error())
}

func TestErrorCollectorCopies(t *testing.T) {
	var c errorCollector
	c.add(newTaskError(KindMergeFailure, nil, "one"))
	list := c.list()
	list[0] = nil
	c.add(newTaskError(KindMergeFailure, nil, "two"))

	assert.Equal(t, 2, c.len())
	assert.NotNil(t, c.list()[0])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "InvalidStateTransition", KindInvalidStateTransition.String())
	assert.Equal(t, "Unknown", Kind(0).String())
}
