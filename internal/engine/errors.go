package engine

import (
	"errors"
	"fmt"
	"sync"
)

type Kind int

const (
	KindMirrorUnreachable Kind = iota + 1
	KindConnectTimeout
	KindStreamInterrupted
	KindCancellationRequested
	KindMergeFailure
	KindHashMismatch
	KindInvalidStateTransition
	KindInvalidConfig
	KindInsufficientSpace
)

var (
	ErrMirrorUnreachable     = errors.New("no reachable mirror")
	ErrConnectTimeout        = errors.New("connect timeout")
	ErrStreamInterrupted     = errors.New("stream interrupted")
	ErrCancellationRequested = errors.New("cancellation requested")
	ErrMergeFailure          = errors.New("merge failure")
	ErrHashMismatch          = errors.New("hash mismatch")
	ErrInvalidState          = errors.New("invalid state transition")
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrInsufficientSpace     = errors.New("insufficient disk space")
)

var kindSentinels = map[Kind]error{
	KindMirrorUnreachable:      ErrMirrorUnreachable,
	KindConnectTimeout:         ErrConnectTimeout,
	KindStreamInterrupted:      ErrStreamInterrupted,
	KindCancellationRequested:  ErrCancellationRequested,
	KindMergeFailure:           ErrMergeFailure,
	KindHashMismatch:           ErrHashMismatch,
	KindInvalidStateTransition: ErrInvalidState,
	KindInvalidConfig:          ErrInvalidConfig,
	KindInsufficientSpace:      ErrInsufficientSpace,
}

func (k Kind) String() string {
	switch k {
	case KindMirrorUnreachable:
		return "MirrorUnreachable"
	case KindConnectTimeout:
		return "ConnectTimeout"
	case KindStreamInterrupted:
		return "StreamInterrupted"
	case KindCancellationRequested:
		return "CancellationRequested"
	case KindMergeFailure:
		return "MergeFailure"
	case KindHashMismatch:
		return "HashMismatch"
	case KindInvalidStateTransition:
		return "InvalidStateTransition"
	case KindInvalidConfig:
		return "InvalidConfig"
	case KindInsufficientSpace:
		return "InsufficientSpace"
	}
	return "Unknown"
}

// TaskError is one structured failure record. Mirror and Chunk are optional
// context; Chunk is -1 when the failure is not tied to a chunk.
type TaskError struct {
	Kind    Kind
	Message string
	Mirror  string
	Chunk   int
	Err     error
}

func newTaskError(kind Kind, err error, format string, args ...any) *TaskError {
	return &TaskError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Chunk:   -1,
		Err:     err,
	}
}

func (e *TaskError) withMirror(mirror string) *TaskError {
	e.Mirror = mirror
	return e
}

func (e *TaskError) withChunk(index int) *TaskError {
	e.Chunk = index
	return e
}

func (e *TaskError) Error() string {
	msg := e.Kind.String() + ": " + e.Message
	if e.Chunk >= 0 {
		msg += fmt.Sprintf(" (chunk %d)", e.Chunk)
	}
	if e.Mirror != "" {
		msg += " [" + e.Mirror + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the cause so errors.Is works
// against either.
func (e *TaskError) Unwrap() []error {
	errs := []error{kindSentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

type errorCollector struct {
	mu   sync.Mutex
	errs []*TaskError
}

func (c *errorCollector) add(err *TaskError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *errorCollector) list() []*TaskError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*TaskError, len(c.errs))
	copy(out, c.errs)
	return out
}

func (c *errorCollector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}
