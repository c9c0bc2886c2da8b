package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// JSON-RPC structures
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCP structures
type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

type ToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MCPServer exposes the running group JSON API as MCP tools over stdio
type MCPServer struct {
	apiURL      string
	apiUsername string
	apiPassword string
	client      *http.Client
}

func NewMCPServer() *MCPServer {
	apiURL := strings.TrimRight(os.Getenv("RUNGROUP_API_URL"), "/")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	return &MCPServer{
		apiURL:      apiURL,
		apiUsername: os.Getenv("RUNGROUP_API_USERNAME"),
		apiPassword: os.Getenv("RUNGROUP_API_PASSWORD"),
		client:      &http.Client{Timeout: 60 * time.Second},
	}
}

// Run answers one JSON-RPC request per input line until in is exhausted
func (s *MCPServer) Run(in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)

	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			fmt.Fprintf(os.Stderr, "Error reading: %v\n", err)
			return
		}
		eof := err == io.EOF

		if line = strings.TrimSpace(line); line != "" {
			var req JSONRPCRequest
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing JSON: %v\n", err)
			} else if req.ID != nil {
				// Requests without an id are notifications and get no reply
				responseBytes, _ := json.Marshal(s.handleRequest(req))
				fmt.Fprintln(out, string(responseBytes))
			}
		}

		if eof {
			return
		}
	}
}

func (s *MCPServer) handleRequest(req JSONRPCRequest) JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "ping":
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	default:
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32601, Message: "Method not found"},
		}
	}
}

func (s *MCPServer) handleInitialize(req JSONRPCRequest) JSONRPCResponse {
	result := InitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{},
		},
	}
	result.ServerInfo.Name = "rungroup-mcp"
	result.ServerInfo.Version = "1.0.0"

	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

var dateProperty = Property{Type: "string", Description: "Run date as YYYY-MM-DD. Defaults to the next run."}

func (s *MCPServer) handleToolsList(req JSONRPCRequest) JSONRPCResponse {
	tools := []Tool{
		{
			Name:        "rungroup_upcoming_runs",
			Description: "List upcoming runs from the schedule sheet with routes and meeting points.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"include_cancelled": {Type: "boolean", Description: "Also list cancelled runs"},
				},
			},
		},
		{
			Name:        "rungroup_messages",
			Description: "Generate the email, social and chat announcements for a run.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"date": dateProperty,
					"week": {Type: "integer", Description: "Rotation index for greetings and closings. Defaults to the ISO week."},
				},
			},
		},
		{
			Name:        "rungroup_sync_calendar",
			Description: "Push the schedule to the group calendar. One event per run date; re-running changes nothing.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"dry_run": {Type: "boolean", Description: "Report what would change without writing"},
				},
			},
		},
		{
			Name:        "rungroup_post_chat",
			Description: "Post the chat announcement for a run to the group chat.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]Property{"date": dateProperty},
			},
		},
	}

	return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ToolsListResult{Tools: tools}}
}

func (s *MCPServer) handleToolsCall(req JSONRPCRequest) JSONRPCResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: -32602, Message: "Invalid params"},
		}
	}

	var result string
	var isError bool

	switch params.Name {
	case "rungroup_upcoming_runs":
		q := url.Values{}
		if truthy(params.Arguments["include_cancelled"]) {
			q.Set("include_cancelled", "1")
		}
		result, isError = s.apiRequest(http.MethodGet, "/api/schedule", q)
	case "rungroup_messages":
		q := url.Values{}
		setArg(q, "date", params.Arguments)
		setArg(q, "week", params.Arguments)
		result, isError = s.apiRequest(http.MethodGet, "/api/messages", q)
	case "rungroup_sync_calendar":
		q := url.Values{}
		if truthy(params.Arguments["dry_run"]) {
			q.Set("dry_run", "1")
		}
		result, isError = s.apiRequest(http.MethodPost, "/api/calendar/sync", q)
	case "rungroup_post_chat":
		q := url.Values{}
		setArg(q, "date", params.Arguments)
		result, isError = s.apiRequest(http.MethodPost, "/api/announce", q)
	default:
		result = "Unknown tool: " + params.Name
		isError = true
	}

	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: result}},
			IsError: isError,
		},
	}
}

func truthy(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1"
	}
	return false
}

// setArg copies a tool argument into the query. JSON numbers arrive as float64.
func setArg(q url.Values, name string, args map[string]interface{}) {
	switch v := args[name].(type) {
	case string:
		if v != "" {
			q.Set(name, v)
		}
	case float64:
		q.Set(name, fmt.Sprintf("%d", int(v)))
	}
}

func (s *MCPServer) apiRequest(method, path string, query url.Values) (string, bool) {
	target := s.apiURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequest(method, target, nil)
	if err != nil {
		return fmt.Sprintf("Error creating request: %v", err), true
	}
	if s.apiUsername != "" {
		req.SetBasicAuth(s.apiUsername, s.apiPassword)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Sprintf("Error making request: %v", err), true
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error reading response: %v", err), true
	}

	var apiResp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}

	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return string(respBody), resp.StatusCode >= 400
	}

	if !apiResp.Success {
		return fmt.Sprintf("API Error: %s", apiResp.Error), true
	}

	var prettyData bytes.Buffer
	if err := json.Indent(&prettyData, apiResp.Data, "", "  "); err != nil {
		return string(apiResp.Data), false
	}

	return prettyData.String(), false
}

func main() {
	server := NewMCPServer()
	server.Run(os.Stdin, os.Stdout)
}
