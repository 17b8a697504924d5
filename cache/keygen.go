package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// excludedParams are dropped from the key outright.
var excludedParams = map[string]bool{
	"api_key": true,
	"token":   true,
}

// sensitiveFragments mark any other parameter name that looks like a credential.
var sensitiveFragments = []string{"secret", "token", "api_key", "apikey", "password"}

// IsSensitiveParam reports whether a query parameter must not take part in
// the cache key.
func IsSensitiveParam(name string) bool {
	lower := strings.ToLower(name)
	if excludedParams[lower] {
		return true
	}
	for _, frag := range sensitiveFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// BuildKey derives the cache key for a logical call. Parameters are sorted by
// name so their order does not matter, and credential-like parameters are
// excluded. The digest is SHA-256 so keys stay stable across processes.
func BuildKey(service, path string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		if IsSensitiveParam(k) {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, k := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return service + "_" + path + "_" + hex.EncodeToString(sum[:16])
}
