package types

// ProviderKind identifies which tool backend resolves a call. The set is
// closed: tools are served either by the hosted toolset (plugin provider)
// or by an MCP server (protocol tool server).
type ProviderKind string

const (
	KindHosted ProviderKind = "hosted"
	KindMCP    ProviderKind = "mcp"
)

// ToolVariant controls how a tool call relates to run resumption.
type ToolVariant string

const (
	// VariantBlocking tools must produce output before the run resumes.
	VariantBlocking ToolVariant = "blocking"
	// VariantFireAndForget tools execute asynchronously; their result is
	// delivered as a side notification and never gates resumption.
	VariantFireAndForget ToolVariant = "fire_and_forget"
)

// ToolDef describes one tool offered to the model for a turn.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
	Variant     ToolVariant    `json:"variant,omitempty"`
}

// ToolCallRecord is a fully reconstructed tool invocation.
//
// Arguments holds the decoded argument object when the argument JSON is an
// object; RawArguments always holds the exact JSON text the model produced.
// Kind and Variant are filled in at dispatch resolution, not by the
// accumulator.
type ToolCallRecord struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	RawArguments string         `json:"raw_arguments"`
	Kind         ProviderKind   `json:"provider_kind,omitempty"`
	Variant      ToolVariant    `json:"dispatch_variant,omitempty"`
}

// ToolOutput pairs a tool-call id with the output submitted back to the
// provider so the run can resume.
type ToolOutput struct {
	CallID string `json:"tool_call_id"`
	Output string `json:"output"`
}
