// Package runloop drives streamed runs through their tool-calling rounds.
package runloop

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/core/types"
)

// CallAccumulator reassembles tool calls from fragmented argument deltas.
//
// The provider streams each call's argument JSON in arbitrary fragments,
// keyed by a per-round call index. A call becomes ready exactly once: on the
// first delta after which its buffered arguments parse as valid JSON. Any
// further delta for a ready index is a protocol violation, as is a round
// that ends with unparseable arguments.
type CallAccumulator struct {
	calls map[int]*pendingCall
}

type pendingCall struct {
	id    string
	name  string
	args  strings.Builder
	ready bool
}

// NewCallAccumulator creates an empty accumulator for one round.
func NewCallAccumulator() *CallAccumulator {
	return &CallAccumulator{calls: make(map[int]*pendingCall)}
}

// Apply folds one delta in. When the delta completes a call, the finished
// record is returned; otherwise the record is nil.
func (a *CallAccumulator) Apply(ev types.ToolCallDeltaEvent) (*types.ToolCallRecord, error) {
	pc := a.calls[ev.Index]
	if pc == nil {
		pc = &pendingCall{}
		a.calls[ev.Index] = pc
	}
	if pc.ready {
		return nil, core.NewProtocolError("tool call %d received a delta after its arguments completed", ev.Index)
	}

	if ev.ID != "" {
		pc.id = ev.ID
	}
	pc.name += ev.Name
	pc.args.WriteString(ev.ArgumentFragment)

	raw := pc.args.String()
	if raw == "" || !json.Valid([]byte(raw)) {
		return nil, nil
	}

	if pc.id == "" || pc.name == "" {
		return nil, core.NewProtocolError("tool call %d completed without an id or name", ev.Index)
	}
	pc.ready = true

	rec := &types.ToolCallRecord{
		ID:           pc.id,
		Name:         pc.name,
		RawArguments: raw,
	}
	// Arguments are normally a JSON object; anything else is kept raw only.
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		rec.Arguments = parsed
	}
	return rec, nil
}

// Incomplete returns the indexes of calls whose arguments never became valid
// JSON, in ascending order. A non-empty result at the end of a round means
// the provider stream violated the protocol.
func (a *CallAccumulator) Incomplete() []int {
	var idx []int
	for i, pc := range a.calls {
		if !pc.ready {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	return idx
}

// Len returns the number of calls seen this round, ready or not.
func (a *CallAccumulator) Len() int {
	return len(a.calls)
}
