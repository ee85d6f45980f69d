package openai

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/voxrelay/voxrelay/pkg/core/types"
)

// eventStream parses an Assistants SSE body into stream events.
//
// The Assistants API names its events ("event: thread.message.delta") and
// carries the payload on the following data line. Events we do not care
// about are skipped; one wire event can expand into several tool-call
// deltas, which are queued and returned one at a time.
type eventStream struct {
	reader  *bufio.Reader
	closer  io.Closer
	err     error
	pending []types.StreamEvent
}

func newEventStream(body io.ReadCloser) *eventStream {
	return &eventStream{
		reader: bufio.NewReader(body),
		closer: body,
	}
}

// Next returns the next event. Returns nil, io.EOF when the stream ends.
func (s *eventStream) Next() (types.StreamEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		return ev, nil
	}

	eventName := ""
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				s.err = io.EOF
			} else {
				s.err = err
			}
			return nil, s.err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			eventName = ""
			continue
		}
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			eventName = name
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			s.err = io.EOF
			return nil, io.EOF
		}

		events := mapWireEvent(eventName, []byte(data))
		if len(events) == 0 {
			continue
		}
		s.pending = events[1:]
		return events[0], nil
	}
}

func (s *eventStream) Close() error {
	return s.closer.Close()
}

// runPayload is the subset of the run object the coordinator needs.
type runPayload struct {
	ID             string `json:"id"`
	RequiredAction *struct {
		SubmitToolOutputs struct {
			ToolCalls []struct {
				ID string `json:"id"`
			} `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
}

// mapWireEvent translates one named wire event into zero or more stream
// events.
func mapWireEvent(name string, data []byte) []types.StreamEvent {
	switch name {
	case "thread.message.delta":
		var payload struct {
			Delta struct {
				Content []struct {
					Type string `json:"type"`
					Text struct {
						Value string `json:"value"`
					} `json:"text"`
				} `json:"content"`
			} `json:"delta"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil
		}
		var events []types.StreamEvent
		for _, c := range payload.Delta.Content {
			if c.Type == "text" && c.Text.Value != "" {
				events = append(events, types.TextDeltaEvent{Text: c.Text.Value})
			}
		}
		return events

	case "thread.run.step.delta":
		var payload struct {
			Delta struct {
				StepDetails struct {
					Type      string `json:"type"`
					ToolCalls []struct {
						Index    int    `json:"index"`
						ID       string `json:"id"`
						Function struct {
							Name      string `json:"name"`
							Arguments string `json:"arguments"`
						} `json:"function"`
					} `json:"tool_calls"`
				} `json:"step_details"`
			} `json:"delta"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil
		}
		if payload.Delta.StepDetails.Type != "tool_calls" {
			return nil
		}
		var events []types.StreamEvent
		for _, tc := range payload.Delta.StepDetails.ToolCalls {
			events = append(events, types.ToolCallDeltaEvent{
				Index:            tc.Index,
				ID:               tc.ID,
				Name:             tc.Function.Name,
				ArgumentFragment: tc.Function.Arguments,
			})
		}
		return events

	case "thread.run.requires_action":
		var run runPayload
		if err := json.Unmarshal(data, &run); err != nil {
			return nil
		}
		ev := types.RunRequiresActionEvent{RunID: run.ID}
		if run.RequiredAction != nil {
			for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
				ev.PendingCallIDs = append(ev.PendingCallIDs, tc.ID)
			}
		}
		return []types.StreamEvent{ev}

	case "thread.run.completed":
		var run runPayload
		if err := json.Unmarshal(data, &run); err != nil {
			return nil
		}
		return []types.StreamEvent{types.RunCompletedEvent{RunID: run.ID}}

	case "thread.run.cancelled":
		var run runPayload
		if err := json.Unmarshal(data, &run); err != nil {
			return nil
		}
		return []types.StreamEvent{types.RunCancelledEvent{RunID: run.ID}}

	case "thread.run.incomplete":
		var run runPayload
		if err := json.Unmarshal(data, &run); err != nil {
			return nil
		}
		ev := types.RunIncompleteEvent{RunID: run.ID}
		if run.IncompleteDetails != nil {
			ev.Reason = run.IncompleteDetails.Reason
		}
		return []types.StreamEvent{ev}

	case "thread.run.failed", "thread.run.expired":
		var run runPayload
		if err := json.Unmarshal(data, &run); err != nil {
			return nil
		}
		ev := types.RunFailedEvent{RunID: run.ID}
		if run.LastError != nil {
			ev.Detail = types.ErrorDetail{Code: run.LastError.Code, Message: run.LastError.Message}
		} else if name == "thread.run.expired" {
			ev.Detail = types.ErrorDetail{Code: "expired", Message: "run expired before completing"}
		}
		return []types.StreamEvent{ev}
	}

	return nil
}
