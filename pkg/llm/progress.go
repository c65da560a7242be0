package llm

import "context"

// ProgressStage identifies a checkpoint of a generation or execution.
type ProgressStage string

const (
	StageGenerating ProgressStage = "generating"
	StageSampling   ProgressStage = "sampling"
	StageFinalizing ProgressStage = "finalizing"
	StageExecuting  ProgressStage = "executing"
)

// ProgressEvent is a human-readable status update. Events are observational and
// never influence control flow.
type ProgressEvent struct {
	Stage   ProgressStage `json:"stage"`
	Message string        `json:"message"`
	Table   string        `json:"table,omitempty"`
	Rows    int           `json:"rows,omitempty"`
}

// ProgressObserver receives progress events. OnProgress is called synchronously,
// in order, and returns before the next gateway or database call starts.
type ProgressObserver interface {
	OnProgress(ctx context.Context, event ProgressEvent)
}

// ProgressFunc adapts a function to ProgressObserver.
type ProgressFunc func(ctx context.Context, event ProgressEvent)

// OnProgress implements ProgressObserver.
func (f ProgressFunc) OnProgress(ctx context.Context, event ProgressEvent) {
	f(ctx, event)
}

// NoopObserver discards events.
type NoopObserver struct{}

// OnProgress implements ProgressObserver.
func (NoopObserver) OnProgress(context.Context, ProgressEvent) {}

// ChannelObserver forwards events to a channel for streaming transports. A send
// blocks until the consumer receives or ctx is done.
type ChannelObserver chan<- ProgressEvent

// OnProgress implements ProgressObserver.
func (c ChannelObserver) OnProgress(ctx context.Context, event ProgressEvent) {
	select {
	case c <- event:
	case <-ctx.Done():
	}
}

// Notify delivers event to obs, tolerating a nil observer.
func Notify(ctx context.Context, obs ProgressObserver, event ProgressEvent) {
	if obs == nil {
		return
	}
	obs.OnProgress(ctx, event)
}
