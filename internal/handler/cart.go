package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"storefront-cart/internal/model"
)

// addItemRequest is the body of POST /cart/items.
type addItemRequest struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

// setQuantityRequest is the body of PATCH /cart/items/{key}.
// ProductID is optional when the key is already displayed.
type setQuantityRequest struct {
	ProductID int `json:"product_id,omitempty"`
	Quantity  int `json:"quantity"`
}

// signInRequest is the body of PUT /session.
type signInRequest struct {
	UserID string `json:"user_id"`
}

type sessionResponse struct {
	UserID string       `json:"user_id"`
	Synced bool         `json:"synced"`
	Cart   cartResponse `json:"cart"`
}

// handleGetCart returns the displayed cart.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cartResponse(""))
}

// handleAddItem adds a product and returns the reconciled cart.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.ProductID <= 0 {
		h.writeError(w, model.NewValidationError("product_id", "required"))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	key, err := h.cart.AddItem(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, h.cartResponse(key))
}

// handleSetQuantity schedules a debounced quantity change.
// PATCH /cart/items/{key}
//
// Responds 202 with the optimistic view; the write happens after the quiet
// period and its outcome surfaces in later responses.
func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity < 1 {
		h.writeError(w, model.NewValidationError("quantity", "must be at least 1; use DELETE to remove"))
		return
	}

	productID, err := h.resolveProduct(key, req.ProductID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.cart.ScheduleUpdate(key, productID, req.Quantity)
	h.writeJSON(w, http.StatusAccepted, h.cartResponse(key))
}

// handleRemoveItem deletes an item immediately.
// DELETE /cart/items/{key}?product_id=
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	explicit := 0
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			h.writeError(w, model.NewValidationError("product_id", "must be a positive integer"))
			return
		}
		explicit = id
	}

	productID, err := h.resolveProduct(key, explicit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.cart.RemoveItem(r.Context(), key, productID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.cartResponse(key))
}

// handleSync forces a reconciliation with the remote cart.
// POST /cart/sync
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Reconcile(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartResponse(""))
}

// handleSignIn records a sign-in and syncs the cart once per transition.
// PUT /session
func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.UserID == "" {
		h.writeError(w, model.NewValidationError("user_id", "required; use DELETE /session to sign out"))
		return
	}

	synced, err := h.cart.SyncOnUserChange(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Debug("session updated",
		slog.String("user_id", req.UserID),
		slog.Bool("synced", synced),
	)
	h.writeJSON(w, http.StatusOK, sessionResponse{
		UserID: req.UserID,
		Synced: synced,
		Cart:   h.cartResponse(""),
	})
}

// handleSignOut resets sign-in tracking.
// DELETE /session
func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if _, err := h.cart.SyncOnUserChange(r.Context(), ""); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{Cart: h.cartResponse("")})
}
