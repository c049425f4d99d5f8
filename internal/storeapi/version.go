package storeapi

import (
	"log/slog"
	"strings"

	"golang.org/x/mod/semver"
)

// versionHeader carries the cart API's release version.
const versionHeader = "X-API-Version"

// checkVersion warns once when the API reports a version older than the
// configured minimum. Non-semver values are ignored.
func (c *Client) checkVersion(reported string) {
	if c.minVersion == "" || reported == "" {
		return
	}
	c.versionOnce.Do(func() {
		if olderThan(reported, c.minVersion) {
			c.logger.Warn("cart API older than supported minimum",
				slog.String("reported", reported),
				slog.String("minimum", c.minVersion),
			)
		}
	})
}

// olderThan reports whether version a sorts before b.
// Both must be semver-like after normalization, otherwise false.
func olderThan(a, b string) bool {
	av, bv := normalizeVersion(a), normalizeVersion(b)
	if !semver.IsValid(av) || !semver.IsValid(bv) {
		return false
	}
	return semver.Compare(av, bv) < 0
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "v0.0.0"
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
