// Package tools routes reconstructed tool calls to their backends.
//
// Tools come from two places: the hosted toolset service and MCP servers.
// A Registry is built per turn from every configured provider and resolves
// calls strictly by name, so the set of dispatchable tools is exactly the
// set that was offered to the model.
package tools

import (
	"context"
	"fmt"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/core/types"
)

// Provider serves a set of tools of one kind.
type Provider interface {
	// Kind identifies the backend family.
	Kind() types.ProviderKind

	// ListTools returns the tools this provider currently serves.
	ListTools(ctx context.Context) ([]types.ToolDef, error)

	// Execute runs one call and returns its textual output.
	Execute(ctx context.Context, call *types.ToolCallRecord) (string, error)
}

// Binding ties a tool definition to the provider that serves it.
type Binding struct {
	Def      types.ToolDef
	Kind     types.ProviderKind
	provider Provider
}

// Variant returns the dispatch variant, defaulting to blocking.
func (b *Binding) Variant() types.ToolVariant {
	if b.Def.Variant == "" {
		return types.VariantBlocking
	}
	return b.Def.Variant
}

// Execute runs the bound tool.
func (b *Binding) Execute(ctx context.Context, call *types.ToolCallRecord) (string, error) {
	return b.provider.Execute(ctx, call)
}

// Registry is the per-turn name-to-binding table.
type Registry struct {
	byName map[string]*Binding
	defs   []types.ToolDef
}

// BuildRegistry lists every provider's tools and indexes them by name. The
// same name served by two providers is a configuration error; dispatch by
// name would be ambiguous.
func BuildRegistry(ctx context.Context, providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Binding)}
	for _, p := range providers {
		if p == nil {
			continue
		}
		defs, err := p.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %s tools: %w", p.Kind(), err)
		}
		for _, def := range defs {
			if prev, exists := r.byName[def.Name]; exists {
				return nil, fmt.Errorf("tool %q served by both %s and %s", def.Name, prev.Kind, p.Kind())
			}
			r.byName[def.Name] = &Binding{Def: def, Kind: p.Kind(), provider: p}
			r.defs = append(r.defs, def)
		}
	}
	return r, nil
}

// Defs returns every registered tool definition, in registration order, for
// offering to the model.
func (r *Registry) Defs() []types.ToolDef {
	return r.defs
}

// Resolve looks a call's tool up by name. An unknown name is fatal to the
// run: the model asked for a tool nobody serves.
func (r *Registry) Resolve(name string) (*Binding, error) {
	b, ok := r.byName[name]
	if !ok {
		return nil, core.NewToolError("no provider serves tool %q", name)
	}
	return b, nil
}
