package storeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"

	"storefront-cart/internal/model"
)

// parseErrorResponse converts a cart API error response to *model.APIError.
func parseErrorResponse(statusCode int, header http.Header, body []byte) error {
	var apiErr apiErrorResponse
	json.Unmarshal(body, &apiErr) // Best effort parse

	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Error
	}

	switch {
	case statusCode == http.StatusNotFound:
		return model.NewNotFoundError("line item")
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return model.NewUnauthorizedError("cart API authentication failed")
	case statusCode == http.StatusTooManyRequests:
		return model.NewRateLimitError(serviceName, retryAfter(header))
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	default:
		return model.NewUpstreamError(serviceName,
			fmt.Errorf("status %d: %s - %s", statusCode, apiErr.Code, msg))
	}
}

// retryAfter extracts the server's retry hint from a 429 response.
//
// The structured RateLimit header (RFC 8941 dictionary, e.g.
// `limit=100, remaining=0, reset=30`) wins over Retry-After, which may be
// delta-seconds or an HTTP date. Returns 0 when neither is usable.
func retryAfter(header http.Header) time.Duration {
	if values := header.Values("RateLimit"); len(values) > 0 {
		if d, ok := parseRateLimitReset(values); ok {
			return d
		}
	}

	ra := strings.TrimSpace(header.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func parseRateLimitReset(values []string) (time.Duration, bool) {
	dict, err := httpsfv.UnmarshalDictionary(values)
	if err != nil {
		return 0, false
	}

	member, ok := dict.Get("reset")
	if !ok {
		return 0, false
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return 0, false
	}
	secs, ok := item.Value.(int64)
	if !ok || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
