// MCP transport handler for the cart service using the official MCP Go SDK.
// Exposes the same cart operations as the REST API as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront-cart/internal/cart"
	"storefront-cart/internal/model"
)

// === MCP Tool Input/Output Types ===

// GetCartInput is the input schema for get_cart tool.
type GetCartInput struct{}

// AddItemInput is the input schema for add_item tool.
type AddItemInput struct {
	ProductID int `json:"product_id" jsonschema:"product ID to add"`
	Quantity  int `json:"quantity,omitempty" jsonschema:"quantity to add, defaults to 1"`
}

// SetQuantityInput is the input schema for set_quantity tool.
type SetQuantityInput struct {
	Key       string `json:"key" jsonschema:"item key as shown by get_cart"`
	ProductID int    `json:"product_id,omitempty" jsonschema:"product ID, looked up from the key when omitted"`
	Quantity  int    `json:"quantity" jsonschema:"new quantity, at least 1"`
}

// RemoveItemInput is the input schema for remove_item tool.
type RemoveItemInput struct {
	Key       string `json:"key" jsonschema:"item key as shown by get_cart"`
	ProductID int    `json:"product_id,omitempty" jsonschema:"product ID, looked up from the key when omitted"`
}

// SyncCartInput is the input schema for sync_cart tool.
type SyncCartInput struct{}

// CartOutput is the structured result of every cart tool.
type CartOutput struct {
	Key      string         `json:"key,omitempty"`
	Owner    string         `json:"owner"`
	Items    []CartItemOut  `json:"items"`
	Totals   model.Totals   `json:"totals"`
	SyncedAt string         `json:"synced_at,omitempty"`
	Messages []NoticeOutput `json:"messages"`
}

// CartItemOut is one displayed line item.
type CartItemOut struct {
	Key               string `json:"key"`
	ProductID         int    `json:"product_id"`
	Title             string `json:"title"`
	UnitPrice         int64  `json:"unit_price"`
	Quantity          int    `json:"quantity"`
	ConfirmedQuantity int    `json:"confirmed_quantity"`
	Pending           bool   `json:"pending,omitempty"`
	Updating          bool   `json:"updating,omitempty"`
}

// NoticeOutput is a user-facing message raised by the cart.
type NoticeOutput struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Content string `json:"content"`
	ItemKey string `json:"item_key,omitempty"`
}

// NewMCPServer creates an MCP server with cart tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront-cart",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart. Quantity changes are debounced: " +
				"set_quantity returns the optimistic cart and the store is written shortly after. " +
				"Call get_cart later to see the reconciled result.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the cart as currently displayed, with any pending messages.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_item",
		Description: "Add a product to the cart.",
	}, h.mcpAddItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_quantity",
		Description: "Change the quantity of a cart item. The change is written after a short quiet period.",
	}, h.mcpSetQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_item",
		Description: "Remove an item from the cart immediately.",
	}, h.mcpRemoveItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_cart",
		Description: "Replace the displayed cart with the store's current cart.",
	}, h.mcpSyncCart)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	return nil, h.cartOutput(""), nil
}

func (h *Handler) mcpAddItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddItemInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if input.ProductID <= 0 {
		return nil, CartOutput{}, fmt.Errorf("product_id is required")
	}
	if input.Quantity == 0 {
		input.Quantity = 1
	}

	key, err := h.cart.AddItem(ctx, input.ProductID, input.Quantity)
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartOutput(key), nil
}

func (h *Handler) mcpSetQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetQuantityInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if input.Key == "" {
		return nil, CartOutput{}, fmt.Errorf("key is required")
	}
	if input.Quantity < 1 {
		return nil, CartOutput{}, fmt.Errorf("quantity must be at least 1; use remove_item to delete")
	}

	productID, err := h.resolveProduct(input.Key, input.ProductID)
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}

	h.cart.ScheduleUpdate(input.Key, productID, input.Quantity)
	return nil, h.cartOutput(input.Key), nil
}

func (h *Handler) mcpRemoveItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveItemInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if input.Key == "" {
		return nil, CartOutput{}, fmt.Errorf("key is required")
	}

	productID, err := h.resolveProduct(input.Key, input.ProductID)
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}

	if err := h.cart.RemoveItem(ctx, input.Key, productID); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartOutput(input.Key), nil
}

func (h *Handler) mcpSyncCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SyncCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if err := h.cart.Reconcile(ctx); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartOutput(""), nil
}

// cartOutput snapshots the displayed cart and drains notices.
func (h *Handler) cartOutput(key string) CartOutput {
	return toCartOutput(key, h.cart.View(), h.drainNotices())
}

func toCartOutput(key string, view cart.View, msgs []model.Message) CartOutput {
	out := CartOutput{
		Key:      key,
		Owner:    view.Owner,
		Items:    make([]CartItemOut, 0, len(view.Items)),
		Totals:   view.Totals,
		Messages: make([]NoticeOutput, 0, len(msgs)),
	}
	if !view.SyncedAt.IsZero() {
		out.SyncedAt = view.SyncedAt.UTC().Format(time.RFC3339)
	}
	for _, item := range view.Items {
		out.Items = append(out.Items, CartItemOut{
			Key:               item.Key,
			ProductID:         item.ProductID,
			Title:             item.Title,
			UnitPrice:         item.UnitPrice,
			Quantity:          item.Quantity,
			ConfirmedQuantity: item.ConfirmedQuantity,
			Pending:           item.Pending,
			Updating:          item.Updating,
		})
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, NoticeOutput{
			Type:    string(m.Type),
			Code:    m.Code,
			Content: m.Content,
			ItemKey: m.ItemKey,
		})
	}
	return out
}

// mcpError converts cart errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.Is(err, model.ErrUnauthorized) {
		h.logger.Error("cart API authentication failed", "error", err.Error())
		return fmt.Errorf("UPSTREAM_AUTH: cart API rejected the store credentials")
	}
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	if errors.Is(err, cart.ErrClosed) {
		return fmt.Errorf("UNAVAILABLE: cart is shutting down")
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
