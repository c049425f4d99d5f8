package storeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"storefront-cart/internal/model"
)

// === Cart API Response Types ===

// apiCartItem is a line item as served by GET /shopping_cart_items.
type apiCartItem struct {
	ID        int        `json:"id"`
	Quantity  int        `json:"quantity"`
	ProductID int        `json:"product_id,omitempty"` // Some deployments flatten the product reference
	Product   apiProduct `json:"product"`
}

// apiProduct is the nested product reference.
type apiProduct struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Price       apiPrice `json:"price"`
	ImageURL    string   `json:"image_url"`
	ImageURLAlt string   `json:"imageUrl"`
}

// apiPrice holds minor units. The wire value is in major units, either a
// JSON number or a quoted string; null, blank and unparseable prices decode
// as 0 rather than failing the whole cart.
type apiPrice int64

func (p *apiPrice) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "null" {
		s = ""
	}
	*p = apiPrice(model.ParseCents(s))
	return nil
}

// apiListEnvelope wraps list responses on newer API versions.
type apiListEnvelope struct {
	Data []apiCartItem `json:"data"`
}

// apiErrorResponse is the error body returned on 4xx/5xx.
type apiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"` // Older deployments use a bare "error" string
}

// === Request Types ===

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type addItemRequest struct {
	ProductID int `json:"productId"`
	Quantity  int `json:"quantity"`
}

// decodeItems accepts both a bare array and a {"data": [...]} envelope.
func decodeItems(body []byte) ([]apiCartItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var items []apiCartItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("parsing cart items: %w", err)
		}
		return items, nil
	}

	var env apiListEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("parsing cart items envelope: %w", err)
	}
	return env.Data, nil
}

// toLineItem maps the wire item onto the domain model.
func (it apiCartItem) toLineItem() model.LineItem {
	productID := it.Product.ID
	if productID == 0 {
		productID = it.ProductID
	}
	image := it.Product.ImageURL
	if image == "" {
		image = it.Product.ImageURLAlt
	}

	return model.LineItem{
		Key:       model.ItemKey(productID, it.Product.Title),
		ID:        it.ID,
		ProductID: productID,
		Title:     it.Product.Title,
		UnitPrice: int64(it.Product.Price),
		ImageURL:  image,
		Quantity:  it.Quantity,
	}
}
