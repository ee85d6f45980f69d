package runloop

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/core/fanout"
	"github.com/voxrelay/voxrelay/pkg/core/types"
	"github.com/voxrelay/voxrelay/pkg/core/voice"
	"github.com/voxrelay/voxrelay/pkg/core/voice/tts"
	"github.com/voxrelay/voxrelay/pkg/tools"
)

// Client-facing event names.
const (
	EventMessageDelta      = "message.delta"
	EventMessageCompleted  = "message.completed"
	EventMessageIncomplete = "message.incomplete"
	EventToolCall          = "tool.call"
	EventToolOutput        = "tool.output"
	EventAudioChunk        = "audio.chunk"
	EventAudioCompleted    = "audio.completed"
	EventAudioUnavailable  = "audio.unavailable"
	EventError             = "error"
)

// EmitFunc delivers one named event to the client transport. Emission is
// best effort; a closed transport drops events silently.
type EmitFunc func(event string, payload any)

const defaultCancelTimeout = 5 * time.Second

// Session drives one run from creation to a terminal state, resuming it
// across tool-call rounds and fanning text out to the audio pipeline.
//
// A Session is used for a single Run call. Stop cancels the whole run;
// StopAudio cancels only speech synthesis while text streaming continues.
type Session struct {
	Provider core.RunProvider
	Registry *tools.Registry
	Emit     EmitFunc
	Logger   *slog.Logger

	// TTS enables the audio pipeline when non-nil and AudioEnabled is set.
	TTS          tts.Provider
	TTSOpts      tts.SynthesizeOptions
	MinGroupLen  int
	AudioEnabled bool

	// CancelTimeout bounds the best-effort provider cancel after a local
	// failure or stop.
	CancelTimeout time.Duration

	mu          sync.Mutex
	cancelRun   context.CancelFunc
	cancelAudio context.CancelFunc
}

// Stop cancels the run, including audio.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
}

// StopAudio cancels speech synthesis only. The run and its text stream
// continue unaffected.
func (s *Session) StopAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelAudio != nil {
		s.cancelAudio()
	}
}

// Run executes the run to a terminal state. Cancellation via Stop or ctx is
// a normal outcome, not an error; the returned error is non-nil only when
// the outcome is failed.
func (s *Session) Run(ctx context.Context, params *types.RunParams) (*types.RunOutcome, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	audioCtx, cancelAudio := context.WithCancel(runCtx)
	defer cancelRun()
	defer cancelAudio()

	s.mu.Lock()
	s.cancelRun = cancelRun
	s.cancelAudio = cancelAudio
	s.mu.Unlock()

	emit := s.Emit
	if emit == nil {
		emit = func(string, any) {}
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		wg   sync.WaitGroup
		full strings.Builder
	)
	pushText := func(text string) {
		full.WriteString(text)
		emit(EventMessageDelta, map[string]any{"text": text})
	}
	closeText := func() {}

	if s.AudioEnabled && s.TTS != nil {
		// Text is duplicated: one side streams deltas to the client, the
		// other feeds sentence groups to synthesis. Neither side can stall
		// the provider stream or each other.
		textSrc := make(chan string)
		closeText = sync.OnceFunc(func() { close(textSrc) })
		textReader, audioReader := fanout.Tee(textSrc)

		wg.Add(2)
		go func() {
			defer wg.Done()
			for {
				frag, ok, err := textReader.Next(runCtx)
				if err != nil || !ok {
					return
				}
				full.WriteString(frag)
				emit(EventMessageDelta, map[string]any{"text": frag})
			}
		}()
		go func() {
			defer wg.Done()
			sp := &voice.Speaker{
				Provider:    s.TTS,
				Opts:        s.TTSOpts,
				MinGroupLen: s.MinGroupLen,
				Logger:      logger,
				OnChunk: func(chunk []byte) {
					emit(EventAudioChunk, map[string]any{"audio": base64.StdEncoding.EncodeToString(chunk)})
				},
				OnDone: func() { emit(EventAudioCompleted, map[string]any{}) },
			}
			if err := sp.Speak(audioCtx, audioReader); err != nil {
				logger.Warn("speech synthesis failed", "error", err)
				emit(EventAudioUnavailable, map[string]any{"reason": "tts_failed", "message": err.Error()})
			}
		}()

		pushText = func(text string) {
			select {
			case textSrc <- text:
			case <-runCtx.Done():
			}
		}
	}

	outcome, runErr := s.drive(runCtx, params, pushText, emit, logger)

	if outcome.Status == types.RunStatusFailed || outcome.Status == types.RunStatusCancelled {
		cancelAudio()
	}
	closeText()
	wg.Wait()

	switch outcome.Status {
	case types.RunStatusCompleted:
		emit(EventMessageCompleted, map[string]any{"text": full.String()})
	case types.RunStatusIncomplete:
		emit(EventMessageIncomplete, map[string]any{"text": full.String(), "reason": outcome.Reason})
	}
	if runErr != nil {
		emit(EventError, core.AsError(runErr))
	}
	return outcome, runErr
}

// drive consumes stream segments until a terminal event, submitting tool
// outputs and swapping in the resumed stream at each pause.
func (s *Session) drive(ctx context.Context, params *types.RunParams, pushText func(string), emit EmitFunc, logger *slog.Logger) (*types.RunOutcome, error) {
	var runID string
	failed := func(err error) (*types.RunOutcome, error) {
		return &types.RunOutcome{Status: types.RunStatusFailed, RunID: runID}, err
	}
	cancelled := func() (*types.RunOutcome, error) {
		s.cancelUpstream(params.ThreadID, runID, logger)
		return &types.RunOutcome{Status: types.RunStatusCancelled, RunID: runID}, nil
	}

	stream, err := s.Provider.CreateRunStream(ctx, params)
	if err != nil {
		return failed(err)
	}
	defer func() { _ = stream.Close() }()

	acc := NewCallAccumulator()
	type blockedCall struct {
		rec     *types.ToolCallRecord
		binding *tools.Binding
	}
	var (
		blocked  []blockedCall
		acks     []types.ToolOutput
		readyIDs = make(map[string]bool)
	)

	dispatch := func(rec *types.ToolCallRecord) error {
		if s.Registry == nil {
			return core.NewToolError("no tool providers configured for call %q", rec.Name)
		}
		binding, err := s.Registry.Resolve(rec.Name)
		if err != nil {
			return err
		}
		rec.Kind = binding.Kind
		rec.Variant = binding.Variant()
		readyIDs[rec.ID] = true
		emit(EventToolCall, rec)

		if rec.Variant == types.VariantFireAndForget {
			// The provider gets an immediate acknowledgement; the real
			// result arrives later as a side notification and is delivered
			// for as long as the transport stays open.
			acks = append(acks, types.ToolOutput{CallID: rec.ID, Output: `{"status":"dispatched"}`})
			execCtx := context.WithoutCancel(ctx)
			go func() {
				out, err := binding.Execute(execCtx, rec)
				if err != nil {
					logger.Warn("fire-and-forget tool failed", "tool", rec.Name, "error", err)
					emit(EventToolOutput, map[string]any{"tool_call_id": rec.ID, "name": rec.Name, "error": err.Error()})
					return
				}
				emit(EventToolOutput, map[string]any{"tool_call_id": rec.ID, "name": rec.Name, "output": out})
			}()
			return nil
		}

		// Blocking calls are only recorded here. The turn may still fail
		// before it pauses, and their side effects must not run for a turn
		// that never reaches the pause.
		blocked = append(blocked, blockedCall{rec: rec, binding: binding})
		return nil
	}

	for {
		ev, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return cancelled()
			}
			if errors.Is(err, io.EOF) {
				return failed(core.NewProtocolError("run stream ended without a terminal event"))
			}
			return failed(err)
		}

		switch e := ev.(type) {
		case types.TextDeltaEvent:
			pushText(e.Text)

		case types.ToolCallDeltaEvent:
			rec, err := acc.Apply(e)
			if err != nil {
				s.cancelUpstream(params.ThreadID, runID, logger)
				return failed(err)
			}
			if rec == nil {
				continue
			}
			if err := dispatch(rec); err != nil {
				s.cancelUpstream(params.ThreadID, runID, logger)
				return failed(err)
			}

		case types.RunRequiresActionEvent:
			runID = e.RunID
			if idx := acc.Incomplete(); len(idx) > 0 {
				s.cancelUpstream(params.ThreadID, runID, logger)
				return failed(core.NewProtocolError("run paused with unparsed arguments for calls %v", idx))
			}
			for _, id := range e.PendingCallIDs {
				if !readyIDs[id] {
					s.cancelUpstream(params.ThreadID, runID, logger)
					return failed(core.NewProtocolError("provider expects output for unknown call %s", id))
				}
			}

			outputs := append([]types.ToolOutput(nil), acks...)
			for _, call := range blocked {
				out, err := call.binding.Execute(ctx, call.rec)
				if ctx.Err() != nil {
					return cancelled()
				}
				if err != nil {
					s.cancelUpstream(params.ThreadID, runID, logger)
					return failed(core.NewToolError("tool %s: %v", call.rec.Name, err))
				}
				outputs = append(outputs, types.ToolOutput{CallID: call.rec.ID, Output: out})
				emit(EventToolOutput, map[string]any{"tool_call_id": call.rec.ID, "name": call.rec.Name, "output": out})
			}

			resumed, err := s.Provider.SubmitToolOutputs(ctx, params.ThreadID, runID, outputs)
			if err != nil {
				if ctx.Err() != nil {
					return cancelled()
				}
				return failed(err)
			}
			_ = stream.Close()
			stream = resumed
			acc = NewCallAccumulator()
			blocked = nil
			acks = nil
			readyIDs = make(map[string]bool)

		case types.RunCompletedEvent:
			if idx := acc.Incomplete(); len(idx) > 0 {
				return failed(core.NewProtocolError("run completed with unparsed arguments for calls %v", idx))
			}
			return &types.RunOutcome{Status: types.RunStatusCompleted, RunID: e.RunID}, nil

		case types.RunCancelledEvent:
			return &types.RunOutcome{Status: types.RunStatusCancelled, RunID: e.RunID}, nil

		case types.RunIncompleteEvent:
			return &types.RunOutcome{Status: types.RunStatusIncomplete, RunID: e.RunID, Reason: e.Reason}, nil

		case types.RunFailedEvent:
			outcome := &types.RunOutcome{Status: types.RunStatusFailed, RunID: e.RunID, Reason: e.Detail.Message}
			return outcome, &core.Error{Type: core.ErrProvider, Message: e.Detail.Message, Code: e.Detail.Code}

		default:
			logger.Debug("ignoring stream event", "type", ev.EventType())
		}
	}
}

// cancelUpstream asks the provider to cancel the run after a local failure
// or stop. Best effort: the run may already be finished upstream.
func (s *Session) cancelUpstream(threadID, runID string, logger *slog.Logger) {
	if runID == "" {
		return
	}
	timeout := s.CancelTimeout
	if timeout <= 0 {
		timeout = defaultCancelTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Provider.CancelRun(ctx, threadID, runID); err != nil {
		logger.Warn("upstream run cancel failed", "run_id", runID, "error", err)
	}
}
