package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestMCP(t *testing.T, handler http.HandlerFunc) *MCPServer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &MCPServer{apiURL: srv.URL, apiUsername: "coach", apiPassword: "secret", client: srv.Client()}
}

func callTool(t *testing.T, s *MCPServer, name string, args map[string]interface{}) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: args})
	resp := s.handleRequest(JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	result, ok := resp.Result.(ToolCallResult)
	if !ok {
		t.Fatalf("result = %#v, error %v", resp.Result, resp.Error)
	}
	return result
}

func TestToolCalls(t *testing.T) {
	var got []string
	s := newTestMCP(t, func(w http.ResponseWriter, r *http.Request) {
		if user, pass, _ := r.BasicAuth(); user != "coach" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		got = append(got, r.Method+" "+r.URL.RequestURI())
		w.Write([]byte(`{"success":true,"data":{"ok":1}}`))
	})

	tests := []struct {
		tool string
		args map[string]interface{}
		want string
	}{
		{"rungroup_upcoming_runs", nil, "GET /api/schedule"},
		{"rungroup_upcoming_runs", map[string]interface{}{"include_cancelled": true}, "GET /api/schedule?include_cancelled=1"},
		{"rungroup_messages", map[string]interface{}{"date": "2024-06-06", "week": float64(3)}, "GET /api/messages?date=2024-06-06&week=3"},
		{"rungroup_sync_calendar", map[string]interface{}{"dry_run": "true"}, "POST /api/calendar/sync?dry_run=1"},
		{"rungroup_post_chat", map[string]interface{}{"date": "2024-06-13"}, "POST /api/announce?date=2024-06-13"},
	}

	for _, tt := range tests {
		got = nil
		res := callTool(t, s, tt.tool, tt.args)
		if res.IsError {
			t.Errorf("%s: error %q", tt.tool, res.Content[0].Text)
		}
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("%s: requests %v, want %q", tt.tool, got, tt.want)
		}
		if !strings.Contains(res.Content[0].Text, `"ok": 1`) {
			t.Errorf("%s: text %q", tt.tool, res.Content[0].Text)
		}
	}
}

func TestToolErrors(t *testing.T) {
	s := newTestMCP(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"error":"chat: not configured"}`))
	})

	res := callTool(t, s, "rungroup_post_chat", nil)
	if !res.IsError || res.Content[0].Text != "API Error: chat: not configured" {
		t.Errorf("result = %+v", res)
	}

	res = callTool(t, s, "rungroup_unknown", nil)
	if !res.IsError || !strings.Contains(res.Content[0].Text, "Unknown tool") {
		t.Errorf("result = %+v", res)
	}
}

func TestRunLoop(t *testing.T) {
	s := newTestMCP(t, func(w http.ResponseWriter, r *http.Request) {})

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
	}, "\n"))
	var out bytes.Buffer
	s.Run(in, &out)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d replies:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], `"name":"rungroup-mcp"`) {
		t.Errorf("initialize = %s", lines[0])
	}
	if !strings.Contains(lines[1], "rungroup_sync_calendar") {
		t.Errorf("tools/list = %s", lines[1])
	}
	if !strings.Contains(lines[2], `"code":-32601`) {
		t.Errorf("unknown method = %s", lines[2])
	}
}
