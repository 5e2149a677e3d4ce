package store

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// MakeKey computes the entry key from method+URL+Vary, per step 3 of the
// HTTP lifecycle. varyValues maps each header name the prior response named
// in its own Vary header (empty on a first request to a URL) to the current
// request's value for that header, so
// two requests that differ only in an un-varied header still collide on
// the same key.
func MakeKey(method, url string, varyValues map[string]string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{0})
	h.Write([]byte(url))

	if len(varyValues) > 0 {
		names := make([]string, 0, len(varyValues))
		for n := range varyValues {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			h.Write([]byte{0})
			h.Write([]byte(strings.ToLower(n)))
			h.Write([]byte{'='})
			h.Write([]byte(varyValues[n]))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
