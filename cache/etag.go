// Package cache answers conditional GETs for pages that are expensive to rebuild
// but rarely change.
package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ETag returns a strong validator for body.
func ETag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// Matches reports whether an If-None-Match header value names etag.
func Matches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
