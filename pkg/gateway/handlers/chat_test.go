package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxrelay/voxrelay/pkg/core"
	"github.com/voxrelay/voxrelay/pkg/core/types"
	"github.com/voxrelay/voxrelay/pkg/gateway/config"
	"github.com/voxrelay/voxrelay/pkg/gateway/socket"
	"github.com/voxrelay/voxrelay/pkg/tools"
)

type scriptedStream struct {
	events []types.StreamEvent
}

func (s *scriptedStream) Next() (types.StreamEvent, error) {
	if len(s.events) == 0 {
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *scriptedStream) Close() error { return nil }

type fakeChatProvider struct {
	mu       sync.Mutex
	events   []types.StreamEvent
	messages []string
	params   *types.RunParams
}

func (p *fakeChatProvider) CreateRunStream(ctx context.Context, params *types.RunParams) (core.EventStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = params
	return &scriptedStream{events: p.events}, nil
}

func (p *fakeChatProvider) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []types.ToolOutput) (core.EventStream, error) {
	return &scriptedStream{events: []types.StreamEvent{types.RunCompletedEvent{RunID: runID}}}, nil
}

func (p *fakeChatProvider) CancelRun(ctx context.Context, threadID, runID string) error { return nil }

func (p *fakeChatProvider) CreateMessage(ctx context.Context, threadID, role, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, role+": "+text)
	return nil
}

type staticToolProvider struct {
	defs []types.ToolDef
}

func (p *staticToolProvider) Kind() types.ProviderKind { return types.KindHosted }

func (p *staticToolProvider) ListTools(ctx context.Context) ([]types.ToolDef, error) {
	return p.defs, nil
}

func (p *staticToolProvider) Execute(ctx context.Context, call *types.ToolCallRecord) (string, error) {
	return "ok", nil
}

func testConfig() config.Config {
	return config.Config{
		AssistantID:      "asst_1",
		MaxBodyBytes:     1 << 20,
		MinSentenceLen:   30,
		RunCancelTimeout: time.Second,
	}
}

func postChat(t *testing.T, h ChatHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat_CompletesRun(t *testing.T) {
	provider := &fakeChatProvider{events: []types.StreamEvent{
		types.TextDeltaEvent{Text: "Hi there."},
		types.RunCompletedEvent{RunID: "run_1"},
	}}
	h := ChatHandler{Config: testConfig(), Provider: provider, Hub: socket.NewHub(nil, time.Second)}

	rec := postChat(t, h, `{"thread_id":"th_1","message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var outcome types.RunOutcome
	if err := json.NewDecoder(rec.Body).Decode(&outcome); err != nil {
		t.Fatal(err)
	}
	if outcome.Status != types.RunStatusCompleted || outcome.RunID != "run_1" {
		t.Errorf("outcome = %+v", outcome)
	}
	if len(provider.messages) != 1 || provider.messages[0] != "user: hello" {
		t.Errorf("messages = %v", provider.messages)
	}
}

func TestChat_OffersToolCatalog(t *testing.T) {
	provider := &fakeChatProvider{events: []types.StreamEvent{
		types.RunCompletedEvent{RunID: "run_1"},
	}}
	h := ChatHandler{
		Config:   testConfig(),
		Provider: provider,
		Hub:      socket.NewHub(nil, time.Second),
		ToolProviders: []tools.Provider{&staticToolProvider{defs: []types.ToolDef{
			{Name: "get_weather"},
			{Name: "send_email", Variant: types.VariantFireAndForget},
		}}},
	}

	rec := postChat(t, h, `{"thread_id":"th_1","message":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if provider.params == nil || len(provider.params.Tools) != 2 {
		t.Fatalf("params = %+v", provider.params)
	}
	if provider.params.Tools[0].Name != "get_weather" {
		t.Errorf("tools = %+v", provider.params.Tools)
	}
}

func TestChat_ValidatesBody(t *testing.T) {
	h := ChatHandler{Config: testConfig(), Provider: &fakeChatProvider{}, Hub: socket.NewHub(nil, time.Second)}

	cases := []struct {
		name string
		body string
	}{
		{"missing thread", `{"message":"hello"}`},
		{"missing message", `{"thread_id":"th_1"}`},
		{"bad json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postChat(t, h, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d", rec.Code)
			}
			var env struct {
				Error *core.Error `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
				t.Fatal(err)
			}
			if env.Error == nil || env.Error.Type != core.ErrInvalidRequest {
				t.Errorf("error = %+v", env.Error)
			}
		})
	}
}

func TestChat_UnknownSocketRejected(t *testing.T) {
	h := ChatHandler{Config: testConfig(), Provider: &fakeChatProvider{}, Hub: socket.NewHub(nil, time.Second)}
	rec := postChat(t, h, `{"thread_id":"th_1","message":"hello","socket_id":"sock_nope"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestChat_AudioWithoutSynthesisRejected(t *testing.T) {
	h := ChatHandler{Config: testConfig(), Provider: &fakeChatProvider{}, Hub: socket.NewHub(nil, time.Second)}
	rec := postChat(t, h, `{"thread_id":"th_1","message":"hello","audio":{"voice":"v1"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestChat_PushesEventsToSocket(t *testing.T) {
	hub := socket.NewHub(nil, time.Second)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var ready struct {
		Event string `json:"event"`
		Data  struct {
			SocketID string `json:"socket_id"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatal(err)
	}

	provider := &fakeChatProvider{events: []types.StreamEvent{
		types.TextDeltaEvent{Text: "Hi"},
		types.TextDeltaEvent{Text: " there."},
		types.RunCompletedEvent{RunID: "run_1"},
	}}
	h := ChatHandler{Config: testConfig(), Provider: provider, Hub: hub}

	rec := postChat(t, h, `{"thread_id":"th_1","message":"hello","socket_id":"`+ready.Data.SocketID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	want := []string{"message.delta", "message.delta", "message.completed"}
	for i, event := range want {
		var f struct {
			Event string         `json:"event"`
			Data  map[string]any `json:"data"`
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatal(err)
		}
		if f.Event != event {
			t.Errorf("frame %d = %q, want %q", i, f.Event, event)
		}
	}
}
