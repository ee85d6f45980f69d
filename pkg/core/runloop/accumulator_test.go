package runloop

import (
	"errors"
	"testing"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/core/types"
)

func TestCallAccumulator_ReassemblesFragmentedArguments(t *testing.T) {
	acc := NewCallAccumulator()

	deltas := []types.ToolCallDeltaEvent{
		{Index: 0, ID: "call_1", Name: "get_weather", ArgumentFragment: `{"loc`},
		{Index: 0, ArgumentFragment: `ation": "Osl`},
		{Index: 0, ArgumentFragment: `o"}`},
	}

	for i, d := range deltas[:2] {
		rec, err := acc.Apply(d)
		if err != nil {
			t.Fatalf("delta %d: %v", i, err)
		}
		if rec != nil {
			t.Fatalf("delta %d: call ready before arguments were valid JSON", i)
		}
	}

	rec, err := acc.Apply(deltas[2])
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("expected the closing fragment to complete the call")
	}
	if rec.ID != "call_1" || rec.Name != "get_weather" {
		t.Errorf("record = %s/%s, want call_1/get_weather", rec.ID, rec.Name)
	}
	if rec.RawArguments != `{"location": "Oslo"}` {
		t.Errorf("raw arguments = %q", rec.RawArguments)
	}
	if rec.Arguments["location"] != "Oslo" {
		t.Errorf("decoded arguments = %#v", rec.Arguments)
	}
	if got := acc.Incomplete(); len(got) != 0 {
		t.Errorf("expected no incomplete calls, got %v", got)
	}
}

func TestCallAccumulator_DeltaAfterCompletionIsProtocolViolation(t *testing.T) {
	acc := NewCallAccumulator()

	if _, err := acc.Apply(types.ToolCallDeltaEvent{Index: 2, ID: "call_9", Name: "ping", ArgumentFragment: `{}`}); err != nil {
		t.Fatal(err)
	}

	_, err := acc.Apply(types.ToolCallDeltaEvent{Index: 2, ArgumentFragment: `{"extra": true}`})
	if err == nil {
		t.Fatal("expected a protocol error for a delta after completion")
	}
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Type != core.ErrProtocol {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestCallAccumulator_SingleDeltaCompletesImmediately(t *testing.T) {
	acc := NewCallAccumulator()

	rec, err := acc.Apply(types.ToolCallDeltaEvent{Index: 0, ID: "call_1", Name: "noop", ArgumentFragment: `{"a":1}`})
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("expected single valid delta to complete the call")
	}
}

func TestCallAccumulator_InterleavedIndexesTrackedIndependently(t *testing.T) {
	acc := NewCallAccumulator()

	var ready []string
	apply := func(d types.ToolCallDeltaEvent) {
		t.Helper()
		rec, err := acc.Apply(d)
		if err != nil {
			t.Fatal(err)
		}
		if rec != nil {
			ready = append(ready, rec.ID)
		}
	}

	apply(types.ToolCallDeltaEvent{Index: 0, ID: "call_a", Name: "first", ArgumentFragment: `{"x":`})
	apply(types.ToolCallDeltaEvent{Index: 1, ID: "call_b", Name: "second", ArgumentFragment: `{"y":`})
	// Index 1 completes before index 0.
	apply(types.ToolCallDeltaEvent{Index: 1, ArgumentFragment: `2}`})
	apply(types.ToolCallDeltaEvent{Index: 0, ArgumentFragment: `1}`})

	if len(ready) != 2 || ready[0] != "call_b" || ready[1] != "call_a" {
		t.Errorf("ready order = %v, want [call_b call_a]", ready)
	}
	if acc.Len() != 2 {
		t.Errorf("Len = %d, want 2", acc.Len())
	}
}

func TestCallAccumulator_NonObjectArgumentsKeptRawOnly(t *testing.T) {
	acc := NewCallAccumulator()

	rec, err := acc.Apply(types.ToolCallDeltaEvent{Index: 0, ID: "call_1", Name: "echo", ArgumentFragment: `"just a string"`})
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("any valid JSON value completes a call")
	}
	if rec.Arguments != nil {
		t.Errorf("expected nil decoded arguments, got %#v", rec.Arguments)
	}
	if rec.RawArguments != `"just a string"` {
		t.Errorf("raw arguments = %q", rec.RawArguments)
	}
}

func TestCallAccumulator_IncompleteReportsUnfinishedIndexes(t *testing.T) {
	acc := NewCallAccumulator()

	if _, err := acc.Apply(types.ToolCallDeltaEvent{Index: 3, ID: "call_d", Name: "slow", ArgumentFragment: `{"unterminated":`}); err != nil {
		t.Fatal(err)
	}
	if _, err := acc.Apply(types.ToolCallDeltaEvent{Index: 1, ID: "call_b", Name: "fast", ArgumentFragment: `{}`}); err != nil {
		t.Fatal(err)
	}

	got := acc.Incomplete()
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("Incomplete = %v, want [3]", got)
	}
}

func TestCallAccumulator_CompletionWithoutNameIsProtocolViolation(t *testing.T) {
	acc := NewCallAccumulator()

	_, err := acc.Apply(types.ToolCallDeltaEvent{Index: 0, ArgumentFragment: `{}`})
	if err == nil {
		t.Fatal("expected protocol error for anonymous completed call")
	}
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Type != core.ErrProtocol {
		t.Errorf("expected protocol error, got %v", err)
	}
}
