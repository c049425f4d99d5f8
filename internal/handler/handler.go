// Package handler provides the HTTP and MCP surface for the cart controller.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront-cart/internal/cart"
	"storefront-cart/internal/model"
)

// Cart is the controller surface the handlers drive.
// *cart.Controller implements it.
type Cart interface {
	View() cart.View
	Lookup(key string) (cart.ViewItem, bool)
	ScheduleUpdate(key string, productID, quantity int)
	RemoveItem(ctx context.Context, key string, productID int) error
	AddItem(ctx context.Context, productID, quantity int) (string, error)
	Reconcile(ctx context.Context) error
	SyncOnUserChange(ctx context.Context, userID string) (bool, error)
	CurrentUser() string
}

var _ Cart = (*cart.Controller)(nil)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cart    Cart
	notices *cart.NoticeBuffer
	logger  *slog.Logger
}

// New creates a new Handler. notices may be nil, in which case responses
// carry no messages.
func New(c Cart, notices *cart.NoticeBuffer, logger *slog.Logger) *Handler {
	return &Handler{
		cart:    c,
		notices: notices,
		logger:  logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// REST transport - cart operations
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("PATCH /cart/items/{key}", h.handleSetQuantity)
	mux.HandleFunc("DELETE /cart/items/{key}", h.handleRemoveItem)
	mux.HandleFunc("POST /cart/sync", h.handleSync)

	// Sign-in transitions
	mux.HandleFunc("PUT /session", h.handleSignIn)
	mux.HandleFunc("DELETE /session", h.handleSignOut)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
// Buffered notices ride along so clients see the failure message the
// controller emitted.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	switch {
	case errors.Is(err, model.ErrUnauthorized):
		// The store rejected our credentials, not the caller's
		apiErr = &model.APIError{
			Code:       "UPSTREAM_AUTH",
			Message:    "cart API rejected the store credentials",
			StatusCode: http.StatusBadGateway,
		}
		h.logger.Error("cart API authentication failed", slog.String("error", err.Error()))
	case errors.As(err, &apiErr):
		// Found APIError in error chain - use it
	case errors.Is(err, cart.ErrClosed):
		apiErr = &model.APIError{
			Code:       "UNAVAILABLE",
			Message:    "cart is shutting down",
			StatusCode: http.StatusServiceUnavailable,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		apiErr = &model.APIError{
			Code:       "TIMEOUT",
			Message:    "cart request timed out",
			StatusCode: http.StatusGatewayTimeout,
		}
	default:
		apiErr = model.NewInternalError(err)
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
		Messages: h.drainNotices(),
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error    errorBody       `json:"error"`
	Messages []model.Message `json:"messages,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// cartResponse wraps the displayed cart with notices raised since the last
// response.
type cartResponse struct {
	Key      string          `json:"key,omitempty"` // Item key touched by the request
	Cart     cart.View       `json:"cart"`
	Messages []model.Message `json:"messages"`
}

func (h *Handler) cartResponse(key string) cartResponse {
	return cartResponse{
		Key:      key,
		Cart:     h.cart.View(),
		Messages: h.drainNotices(),
	}
}

// drainNotices empties the notice buffer; never nil.
func (h *Handler) drainNotices() []model.Message {
	if h.notices == nil {
		return []model.Message{}
	}
	msgs := h.notices.Drain()
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	// Limit request body size to prevent DoS
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// resolveProduct returns the product behind an item key. An explicit
// product ID wins; otherwise the displayed cart is searched.
func (h *Handler) resolveProduct(key string, explicit int) (int, error) {
	if explicit > 0 {
		return explicit, nil
	}
	item, ok := h.cart.Lookup(key)
	if !ok {
		return 0, model.NewNotFoundError("cart item")
	}
	return item.ProductID, nil
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}
