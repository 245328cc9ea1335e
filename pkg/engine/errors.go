package engine

import (
	"fmt"

	"github.com/pkg/errors"
)

// Depth sentinels returned by the stage functions. DepthDone terminates a
// block with nothing pending. DepthSuspended means the destination buffer is
// exhausted and the block's suspend context has been written; the host must
// relaunch with the resume flag set and a fresh destination chunk.
const (
	DepthDone      = -1
	DepthSuspended = -2

	//a predicate/hash/projection callback failed; the whole launch is bad
	depthAborted = -3
)

// EvalError is reported by a generated callback (e.g. numeric overflow in an
// expression). Once raised, no partial result of the launch is trustworthy.
type EvalError struct {
	Depth int
	Lane  int
	Cause error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluation error at depth %d lane %d: %v", e.Depth, e.Lane, e.Cause)
}

func (e *EvalError) Unwrap() error {
	return e.Cause
}

var ErrLaunchFailed = errors.New("join launch failed")
