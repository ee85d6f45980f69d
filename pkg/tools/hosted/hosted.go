// Package hosted serves tools from the hosted toolset service.
//
// The service owns third-party integrations (mail, calendars, CRMs) and
// exposes them over a small HTTP API: a listing endpoint describing the
// tools and an execution endpoint that runs one call. The service decides
// per tool whether it is blocking or fire-and-forget.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxrelay/voxrelay/pkg/core/types"
)

const defaultRequestTimeout = 30 * time.Second

// Provider is an HTTP client for the hosted toolset service.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a hosted toolset provider.
func New(baseURL, apiKey string) *Provider {
	return &Provider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// WithHTTPClient overrides the HTTP client.
func (p *Provider) WithHTTPClient(client *http.Client) *Provider {
	if client != nil {
		p.httpClient = client
	}
	return p
}

func (p *Provider) Kind() types.ProviderKind { return types.KindHosted }

type listedTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
	Variant     string         `json:"variant,omitempty"`
}

// ListTools fetches the toolset catalog.
func (p *Provider) ListTools(ctx context.Context) ([]types.ToolDef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/tools", nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing hosted tools: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hosted toolset returned status %d", resp.StatusCode)
	}

	var listed struct {
		Tools []listedTool `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, fmt.Errorf("decoding tool list: %w", err)
	}

	defs := make([]types.ToolDef, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		def := types.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
		if t.Variant == string(types.VariantFireAndForget) {
			def.Variant = types.VariantFireAndForget
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Execute runs one call on the toolset service.
func (p *Provider) Execute(ctx context.Context, call *types.ToolCallRecord) (string, error) {
	payload := map[string]any{
		"tool":      call.Name,
		"arguments": json.RawMessage(call.RawArguments),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	p.setHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing hosted tool %s: %w", call.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}

	var result struct {
		Output string `json:"output"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decoding hosted tool result: %w", err)
	}
	if resp.StatusCode != http.StatusOK || result.Error != "" {
		msg := result.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("hosted tool %s: %s", call.Name, msg)
	}
	return result.Output, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
