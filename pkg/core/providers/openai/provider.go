package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/core/types"
)

// CreateRunStream starts a streamed run on a thread.
func (p *Provider) CreateRunStream(ctx context.Context, params *types.RunParams) (core.EventStream, error) {
	if params.ThreadID == "" || params.AssistantID == "" {
		return nil, core.NewInvalidRequestError("thread id and assistant id are required")
	}
	body := map[string]any{
		"assistant_id": params.AssistantID,
		"stream":       true,
	}
	if params.Instructions != "" {
		body["additional_instructions"] = params.Instructions
	}
	if len(params.Tools) > 0 {
		body["tools"] = encodeTools(params.Tools)
	}

	rc, err := p.doStream(ctx, http.MethodPost, "/threads/"+url.PathEscape(params.ThreadID)+"/runs", body)
	if err != nil {
		return nil, err
	}
	return newEventStream(rc), nil
}

// SubmitToolOutputs submits every pending output in one call and returns the
// resumed stream.
func (p *Provider) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []types.ToolOutput) (core.EventStream, error) {
	body := map[string]any{
		"stream":       true,
		"tool_outputs": outputs,
	}
	path := fmt.Sprintf("/threads/%s/runs/%s/submit_tool_outputs", url.PathEscape(threadID), url.PathEscape(runID))
	rc, err := p.doStream(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	return newEventStream(rc), nil
}

// CancelRun requests cancellation of an in-flight run.
func (p *Provider) CancelRun(ctx context.Context, threadID, runID string) error {
	path := fmt.Sprintf("/threads/%s/runs/%s/cancel", url.PathEscape(threadID), url.PathEscape(runID))
	return p.doJSON(ctx, http.MethodPost, path, nil, nil)
}

// CreateThread creates an empty conversation thread and returns its id.
func (p *Provider) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := p.doJSON(ctx, http.MethodPost, "/threads", map[string]any{}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateMessage appends a message to a thread.
func (p *Provider) CreateMessage(ctx context.Context, threadID, role, text string) error {
	body := map[string]any{
		"role":    role,
		"content": text,
	}
	return p.doJSON(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", body, nil)
}

// ThreadMessage is one message in a thread's history, flattened to text.
type ThreadMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// ListMessages returns the most recent messages of a thread, newest first.
func (p *Provider) ListMessages(ctx context.Context, threadID string, limit int) ([]ThreadMessage, error) {
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}

	var out struct {
		Data []struct {
			ID        string `json:"id"`
			Role      string `json:"role"`
			CreatedAt int64  `json:"created_at"`
			Content   []struct {
				Type string `json:"type"`
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	if err := p.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	msgs := make([]ThreadMessage, 0, len(out.Data))
	for _, m := range out.Data {
		msg := ThreadMessage{ID: m.ID, Role: m.Role, CreatedAt: m.CreatedAt}
		for _, c := range m.Content {
			if c.Type == "text" {
				msg.Text += c.Text.Value
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// encodeTools maps tool definitions to the function-tool wire format.
func encodeTools(defs []types.ToolDef) []map[string]any {
	out := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		fn := map[string]any{"name": def.Name}
		if def.Description != "" {
			fn["description"] = def.Description
		}
		if def.InputSchema != nil {
			fn["parameters"] = def.InputSchema
		}
		out = append(out, map[string]any{"type": "function", "function": fn})
	}
	return out
}
