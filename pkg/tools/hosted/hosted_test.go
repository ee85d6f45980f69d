package hosted

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxrelay/voxrelay/pkg/core/types"
)

func toolsetServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/tools":
			_, _ = io.WriteString(w, `{"tools":[
				{"name":"search_docs","description":"search the docs","input_schema":{"type":"object"}},
				{"name":"send_email","variant":"fire_and_forget"}
			]}`)
		case "/execute":
			var body struct {
				Tool      string          `json:"tool"`
				Arguments json.RawMessage `json:"arguments"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			switch body.Tool {
			case "search_docs":
				_, _ = io.WriteString(w, `{"output":"two results"}`)
			case "broken":
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"error":"integration offline"}`)
			default:
				http.NotFound(w, r)
			}
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestListTools(t *testing.T) {
	srv := toolsetServer(t)
	defer srv.Close()

	p := New(srv.URL, "key-1")
	if p.Kind() != types.KindHosted {
		t.Fatalf("kind = %s", p.Kind())
	}

	defs, err := p.ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 2 {
		t.Fatalf("defs = %d, want 2", len(defs))
	}
	if defs[0].Name != "search_docs" || defs[0].InputSchema["type"] != "object" {
		t.Errorf("def 0 = %+v", defs[0])
	}
	if defs[0].Variant != "" {
		t.Errorf("search_docs variant = %q, want blocking default", defs[0].Variant)
	}
	if defs[1].Variant != types.VariantFireAndForget {
		t.Errorf("send_email variant = %q", defs[1].Variant)
	}
}

func TestExecute_ForwardsRawArguments(t *testing.T) {
	srv := toolsetServer(t)
	defer srv.Close()

	p := New(srv.URL, "key-1")
	out, err := p.Execute(context.Background(), &types.ToolCallRecord{
		Name:         "search_docs",
		RawArguments: `{"query":"segment"}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "two results" {
		t.Errorf("output = %q", out)
	}
}

func TestExecute_ServiceErrorPropagates(t *testing.T) {
	srv := toolsetServer(t)
	defer srv.Close()

	p := New(srv.URL, "key-1")
	_, err := p.Execute(context.Background(), &types.ToolCallRecord{Name: "broken", RawArguments: `{}`})
	if err == nil {
		t.Fatal("expected error from failing integration")
	}
}

func TestListTools_AuthFailure(t *testing.T) {
	srv := toolsetServer(t)
	defer srv.Close()

	p := New(srv.URL, "wrong-key")
	if _, err := p.ListTools(context.Background()); err == nil {
		t.Fatal("expected auth failure")
	}
}
