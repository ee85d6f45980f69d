package core

import (
	"context"

	"github.com/voxrelay/voxrelay/pkg/core/types"
)

// EventStream is an iterator over run stream events.
type EventStream interface {
	// Next returns the next event. Returns nil, io.EOF when the stream is
	// exhausted. Cancelling the context the stream was created with aborts
	// the underlying network read and surfaces the context error here.
	Next() (types.StreamEvent, error)

	// Close releases resources.
	Close() error
}

// RunProvider is the model-provider collaborator. A run stream is not
// replayable: it must be consumed exactly once.
type RunProvider interface {
	// CreateRunStream starts a new streamed run on a thread.
	CreateRunStream(ctx context.Context, params *types.RunParams) (EventStream, error)

	// SubmitToolOutputs submits all blocking tool outputs for the paused
	// run atomically and yields the resumed stream.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []types.ToolOutput) (EventStream, error)

	// CancelRun requests cancellation of an in-flight run.
	CancelRun(ctx context.Context, threadID, runID string) error
}
