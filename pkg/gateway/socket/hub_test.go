package socket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, string) {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	var ready struct {
		Event string `json:"event"`
		Data  struct {
			SocketID string `json:"socket_id"`
		} `json:"data"`
	}
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatal(err)
	}
	if ready.Event != EventReady || ready.Data.SocketID == "" {
		t.Fatalf("ready frame = %+v", ready)
	}
	return conn, ready.Data.SocketID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHub_ReadyAndLookup(t *testing.T) {
	hub := NewHub(nil, time.Second)
	_, id := dialHub(t, hub)

	s, ok := hub.Get(id)
	if !ok || s.ID() != id {
		t.Fatalf("Get(%q) = %v, %v", id, s, ok)
	}
	if hub.Len() != 1 {
		t.Errorf("Len = %d", hub.Len())
	}
}

func TestHub_EmitDeliversInOrder(t *testing.T) {
	hub := NewHub(nil, time.Second)
	conn, id := dialHub(t, hub)
	s, _ := hub.Get(id)

	s.Emit("message.delta", map[string]string{"text": "Hello"})
	s.Emit("message.delta", map[string]string{"text": " world"})
	s.Emit("message.completed", map[string]string{"text": "Hello world"})

	want := []string{"message.delta", "message.delta", "message.completed"}
	for i, event := range want {
		var f struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatal(err)
		}
		if f.Event != event {
			t.Errorf("frame %d = %q, want %q", i, f.Event, event)
		}
	}
}

func TestHub_StopControls(t *testing.T) {
	hub := NewHub(nil, time.Second)
	conn, id := dialHub(t, hub)
	s, _ := hub.Get(id)

	stops := make(chan string, 4)
	release := s.Bind(
		func() { stops <- "stop" },
		func() { stops <- "stop_audio" },
	)
	defer release()

	if err := conn.WriteJSON(map[string]string{"type": "stop_audio"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"stop_audio", "stop"} {
		select {
		case got := <-stops:
			if got != want {
				t.Errorf("control = %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestHub_DisconnectStopsBoundRun(t *testing.T) {
	hub := NewHub(nil, time.Second)
	conn, id := dialHub(t, hub)
	s, _ := hub.Get(id)

	stopped := make(chan struct{}, 1)
	s.Bind(func() { stopped <- struct{}{} }, nil)

	conn.Close()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect did not stop the bound run")
	}
	waitFor(t, "unregister", func() bool {
		_, ok := hub.Get(id)
		return !ok
	})
}

func TestHub_ReleaseUnbinds(t *testing.T) {
	hub := NewHub(nil, time.Second)
	conn, id := dialHub(t, hub)
	s, _ := hub.Get(id)

	stops := make(chan struct{}, 1)
	release := s.Bind(func() { stops <- struct{}{} }, nil)
	release()

	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-stops:
		t.Fatal("released binding still received stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_EmitAfterCloseIsDropped(t *testing.T) {
	hub := NewHub(nil, time.Second)
	conn, id := dialHub(t, hub)
	s, _ := hub.Get(id)

	conn.Close()
	waitFor(t, "unregister", func() bool {
		_, ok := hub.Get(id)
		return !ok
	})

	// Must not panic or block.
	s.Emit("message.delta", map[string]string{"text": "late"})
}
