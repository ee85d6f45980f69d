// Package mcptool serves tools from a Model Context Protocol server.
//
// The server runs as a subprocess and speaks MCP over stdio. Its tools are
// exposed through the common tools.Provider interface so the dispatcher
// treats them exactly like hosted tools.
package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voxrelay/voxrelay/pkg/core/types"
)

const defaultCallTimeout = 30 * time.Second

// rpcSession is the slice of mcp.ClientSession the provider needs.
type rpcSession interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Provider serves the tools of one MCP server.
type Provider struct {
	session       rpcSession
	timeout       time.Duration
	fireAndForget map[string]bool
}

// Option configures the provider.
type Option func(*Provider)

// WithTimeout bounds each tool call.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithFireAndForget marks the named tools as fire-and-forget. MCP itself has
// no dispatch-variant concept, so the marking comes from configuration.
func WithFireAndForget(names ...string) Option {
	return func(p *Provider) {
		for _, n := range names {
			p.fireAndForget[n] = true
		}
	}
}

// Connect starts the MCP server subprocess and performs the handshake.
func Connect(ctx context.Context, command string, args []string, opts ...Option) (*Provider, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "voxrelay", Version: "0.1.0"}, nil)
	transport := &mcp.CommandTransport{Command: exec.Command(command, args...)}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server %s: %w", command, err)
	}
	return newProvider(session, opts...), nil
}

func newProvider(session rpcSession, opts ...Option) *Provider {
	p := &Provider{
		session:       session,
		timeout:       defaultCallTimeout,
		fireAndForget: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Kind() types.ProviderKind { return types.KindMCP }

// ListTools fetches the server's tool list and converts each input schema to
// the generic map form the run provider expects.
func (p *Provider) ListTools(ctx context.Context) ([]types.ToolDef, error) {
	result, err := p.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("listing MCP tools: %w", err)
	}

	defs := make([]types.ToolDef, 0, len(result.Tools))
	for _, tool := range result.Tools {
		def := types.ToolDef{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		}
		if p.fireAndForget[tool.Name] {
			def.Variant = types.VariantFireAndForget
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Execute calls the tool and flattens the result content to text.
func (p *Provider) Execute(ctx context.Context, call *types.ToolCallRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := call.Arguments
	if args == nil {
		args = make(map[string]any)
	}
	result, err := p.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      call.Name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("calling MCP tool %s: %w", call.Name, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("MCP tool %s: %s", call.Name, text)
	}
	return text, nil
}

// Close shuts the server session down.
func (p *Provider) Close() error {
	return p.session.Close()
}

func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// flattenContent joins text items with newlines; non-text items become
// short descriptions.
func flattenContent(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch item := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, item.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes]", item.MIMEType, len(item.Data)))
		case *mcp.EmbeddedResource:
			if item.Resource != nil {
				parts = append(parts, fmt.Sprintf("[resource %s]", item.Resource.URI))
			}
		}
	}
	return strings.Join(parts, "\n")
}
