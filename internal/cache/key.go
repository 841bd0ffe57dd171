package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// PaginationFields never contribute to a cache key: they select a view of
// a result, not a different result.
var PaginationFields = []string{"offset", "limit", "cursor", "force_refresh", "context_id", "resume"}

func isPaginationField(k string) bool {
	for _, f := range PaginationFields {
		if f == k {
			return true
		}
	}
	return false
}

// GenerateCacheKey hashes the canonical JSON form of params, minus the
// pagination fields. encoding/json writes map keys in sorted order at
// every nesting level, so the key does not depend on field order.
func GenerateCacheKey(params map[string]any) (string, error) {
	canon := make(map[string]any, len(params))
	for k, v := range params {
		if isPaginationField(k) || v == nil {
			continue
		}
		canon[k] = v
	}
	data, err := json.Marshal(canon)
	if err != nil {
		return "", fmt.Errorf("canonicalizing cache params: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
