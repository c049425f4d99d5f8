package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"storefront-cart/internal/cart"
	"storefront-cart/internal/model"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

func TestMCPServerCreation(t *testing.T) {
	h := New(nil, nil, nil)
	if h.NewMCPServer() == nil {
		t.Fatal("NewMCPServer returned nil")
	}
	if h.NewMCPHandler() == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPInitialize(t *testing.T) {
	_, mux := testHandler(t, memStore())

	if sessionID := initMCPSession(t, mux); sessionID == "" {
		t.Error("expected Mcp-Session-Id header")
	}
}

func TestMCPToolsList(t *testing.T) {
	_, mux := testHandler(t, memStore())
	sessionID := initMCPSession(t, mux)

	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/list",
	})

	var toolsResult struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools list: %v", err)
	}

	var names []string
	for _, tool := range toolsResult.Tools {
		names = append(names, tool.Name)
		if tool.Description == "" {
			t.Errorf("tool %s has no description", tool.Name)
		}
	}
	sort.Strings(names)

	want := []string{"add_item", "get_cart", "remove_item", "set_quantity", "sync_cart"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("tools = %v, want %v", names, want)
	}
}

func TestMCPSyncAndGetCart(t *testing.T) {
	_, mux := testHandler(t, memStore(mug))
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "sync_cart", map[string]any{})
	if result.IsError {
		t.Fatalf("sync_cart returned error: %+v", result.Content)
	}

	out := decodeToolCart(t, result)
	if len(out.Items) != 1 || out.Items[0].Key != "5-Mug" {
		t.Fatalf("Items = %+v, want one mug", out.Items)
	}
	if out.SyncedAt == "" {
		t.Error("SyncedAt should be set after sync_cart")
	}

	result = callTool(t, mux, sessionID, "get_cart", map[string]any{})
	out = decodeToolCart(t, result)
	if out.Totals.Subtotal != 3000 {
		t.Errorf("Subtotal = %d, want 3000", out.Totals.Subtotal)
	}
}

func TestMCPAddItem(t *testing.T) {
	_, mux := testHandler(t, memStore())
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "add_item", map[string]any{
		"product_id": 7,
		"quantity":   3,
	})
	if result.IsError {
		t.Fatalf("add_item returned error: %+v", result.Content)
	}

	out := decodeToolCart(t, result)
	if out.Key != "7-Product" {
		t.Errorf("Key = %q, want 7-Product", out.Key)
	}
	if len(out.Items) != 1 || out.Items[0].Quantity != 3 {
		t.Errorf("Items = %+v, want product 7 x3", out.Items)
	}
	if len(out.Messages) == 0 || out.Messages[0].Code != "item_added" {
		t.Errorf("Messages = %+v, want item_added", out.Messages)
	}
}

func TestMCPSetQuantity(t *testing.T) {
	ctrl, mux := testHandler(t, memStore(mug))
	sessionID := initMCPSession(t, mux)
	callTool(t, mux, sessionID, "sync_cart", map[string]any{})

	result := callTool(t, mux, sessionID, "set_quantity", map[string]any{
		"key":      "5-Mug",
		"quantity": 6,
	})
	if result.IsError {
		t.Fatalf("set_quantity returned error: %+v", result.Content)
	}

	out := decodeToolCart(t, result)
	if len(out.Items) != 1 || out.Items[0].Quantity != 6 || !out.Items[0].Pending {
		t.Errorf("Items = %+v, want pending quantity 6", out.Items)
	}
	if !ctrl.Pending("5-Mug") {
		t.Error("controller should have a pending write")
	}
}

func TestMCPSetQuantity_UnknownKey(t *testing.T) {
	_, mux := testHandler(t, memStore())
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "set_quantity", map[string]any{
		"key":      "8-Lamp",
		"quantity": 2,
	})
	if !result.IsError {
		t.Fatal("expected tool error for unknown key")
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "NOT_FOUND") {
		t.Errorf("Content = %+v, want NOT_FOUND", result.Content)
	}
}

func TestMCPRemoveItem(t *testing.T) {
	_, mux := testHandler(t, memStore(mug))
	sessionID := initMCPSession(t, mux)
	callTool(t, mux, sessionID, "sync_cart", map[string]any{})

	result := callTool(t, mux, sessionID, "remove_item", map[string]any{"key": "5-Mug"})
	if result.IsError {
		t.Fatalf("remove_item returned error: %+v", result.Content)
	}

	out := decodeToolCart(t, result)
	if len(out.Items) != 0 {
		t.Errorf("Items = %+v, want empty", out.Items)
	}
}

func TestMCPSyncCart_UpstreamError(t *testing.T) {
	store := memStore()
	store.ListItemsFunc = func(ctx context.Context) ([]model.LineItem, error) {
		return nil, model.NewUpstreamError("cart API", io.ErrUnexpectedEOF)
	}
	_, mux := testHandler(t, store)
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "sync_cart", map[string]any{})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "UPSTREAM_ERROR") {
		t.Errorf("Content = %+v, want UPSTREAM_ERROR", result.Content)
	}
}

func TestMCPMissingRequiredField(t *testing.T) {
	_, mux := testHandler(t, memStore())
	sessionID := initMCPSession(t, mux)

	// add_item without product_id
	args, _ := json.Marshal(map[string]any{"quantity": 1})
	body, _ := json.Marshal(jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: "add_item", Arguments: args},
	})

	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httpReq)

	// Should still return 200, with error in the result
	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestToCartOutput(t *testing.T) {
	out := toCartOutput("", cart.View{}, nil)
	if out.Items == nil || out.Messages == nil {
		t.Error("Items and Messages should be empty arrays, not nil")
	}
	if out.SyncedAt != "" {
		t.Errorf("SyncedAt = %q, want empty for never-synced cart", out.SyncedAt)
	}

	msgs := []model.Message{model.NewErrorMessage("update_failed", "nope", "5-Mug")}
	out = toCartOutput("5-Mug", cart.View{}, msgs)
	if len(out.Messages) != 1 || out.Messages[0].Type != "error" || out.Messages[0].ItemKey != "5-Mug" {
		t.Errorf("Messages = %+v", out.Messages)
	}
}

// === MCP helpers ===

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}
	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode initialize response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("initialize error: %+v", resp.Error)
	}

	return w.Header().Get("Mcp-Session-Id")
}

// mcpCall posts a JSON-RPC request and returns the decoded response.
func mcpCall(t *testing.T, mux *http.ServeMux, sessionID string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v\nBody: %s", err, string(jsonData))
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected JSON-RPC error: %+v", resp.Error)
	}
	return resp
}

// callTool invokes a tool and returns its result.
func callTool(t *testing.T, mux *http.ServeMux, sessionID, name string, args map[string]any) callToolResult {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: name, Arguments: raw},
	})

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	return result
}

// decodeToolCart reads the cart from a tool result, preferring structured
// content and falling back to the text block.
func decodeToolCart(t *testing.T, result callToolResult) CartOutput {
	t.Helper()

	data := []byte(result.StructuredContent)
	if len(data) == 0 && len(result.Content) > 0 {
		data = []byte(result.Content[0].Text)
	}

	var out CartOutput
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to parse cart from result: %v\n%s", err, data)
	}
	return out
}
