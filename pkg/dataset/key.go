package dataset

import (
	"github.com/Sternrassler/ya-request/pkg/request"
)

// storagePrefix namespaces endpoint mirrors in the persistent store.
const storagePrefix = "ds:"

// CacheKey identifies a recorded response.
type CacheKey struct {
	// Endpoint is the bound endpoint URL (e.g., "/list")
	Endpoint string

	// Data is the caller's request payload before default-payload merging
	Data *request.Payload
}

// String generates a deterministic key string.
// Format: endpoint|canonical-payload
//
// Example:
//
//	/list|{"header":{},"body":{"page":1}}
func (k CacheKey) String() (string, error) {
	canonical, err := request.Canonical(k.Data.Clone())
	if err != nil {
		return "", err
	}
	return k.Endpoint + "|" + canonical, nil
}

// StorageKey returns the persistent-store key of the mirror for endpoint.
func StorageKey(endpoint string) string {
	return storagePrefix + endpoint
}
