package cache

import (
	"encoding/json"
	"fmt"
)

// Variables are the GraphQL variables sent alongside a query.
type Variables map[string]any

// Fingerprint is the deterministic cache address of a (query, variables) pair.
type Fingerprint string

// fingerprintPayload mirrors the wire shape of the key. encoding/json writes map
// keys in sorted order at every depth, so variable order never leaks into it.
type fingerprintPayload struct {
	Query     string    `json:"q"`
	Variables Variables `json:"v"`
}

// FingerprintOf builds the cache key for a query and its variables.
// Nil variables are treated as an empty object.
//
// Example:
//
//	{"q":"query Q { a }","v":{"skip":0,"take":20}}
func FingerprintOf(query string, variables Variables) Fingerprint {
	if variables == nil {
		variables = Variables{}
	}

	data, err := json.Marshal(fingerprintPayload{Query: query, Variables: variables})
	if err != nil {
		// Values json cannot encode (funcs, channels, NaN) still need a stable
		// key. fmt also prints map keys sorted.
		return Fingerprint(fmt.Sprintf("%q:%v", query, map[string]any(variables)))
	}
	return Fingerprint(data)
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return string(f)
}
