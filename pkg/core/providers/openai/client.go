// Package openai implements the run provider against the OpenAI Assistants
// streaming API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voxrelay/voxrelay/pkg/core"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Provider talks to the Assistants v2 API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a Provider with the default endpoint.
func New(apiKey string) *Provider {
	return &Provider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func (p *Provider) WithBaseURL(base string) *Provider {
	if base = strings.TrimSpace(base); base != "" {
		p.baseURL = strings.TrimRight(base, "/")
	}
	return p
}

// WithHTTPClient overrides the HTTP client.
func (p *Provider) WithHTTPClient(client *http.Client) *Provider {
	if client != nil {
		p.httpClient = client
	}
	return p
}

func (p *Provider) url(path string) string {
	return strings.TrimRight(p.baseURL, "/") + path
}

func (p *Provider) setHeaders(req *http.Request, stream bool) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
}

// doJSON sends a request and decodes the JSON response into out.
func (p *Provider) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.url(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(req, false)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return p.parseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doStream sends a request and returns the raw SSE body.
func (p *Provider) doStream(ctx context.Context, method, path string, payload any) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.url(path), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(req, true)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, p.parseError(resp)
	}
	return resp.Body, nil
}

// parseError maps an API error body into a core.Error.
func (p *Provider) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var wrapper struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
			Code    string `json:"code"`
			Param   string `json:"param"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return &core.Error{
			Type:      mapErrorType(resp.StatusCode),
			Message:   wrapper.Error.Message,
			Code:      wrapper.Error.Code,
			Param:     wrapper.Error.Param,
			RequestID: resp.Header.Get("x-request-id"),
		}
	}
	return &core.Error{
		Type:      mapErrorType(resp.StatusCode),
		Message:   fmt.Sprintf("openai returned status %d", resp.StatusCode),
		RequestID: resp.Header.Get("x-request-id"),
	}
}

func mapErrorType(status int) core.ErrorType {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrAuthentication
	case status == http.StatusNotFound:
		return core.ErrNotFound
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimit
	case status >= 500:
		return core.ErrProvider
	default:
		return core.ErrInvalidRequest
	}
}
