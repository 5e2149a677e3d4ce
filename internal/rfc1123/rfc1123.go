// Package rfc1123 formats and parses the HTTP date formats: RFC 1123
// (preferred on the wire), RFC 850, and asctime. Parsing is forgiving about
// which of the three a peer sent; formatting always emits RFC 1123 in GMT.
package rfc1123

import (
	"strings"
	"time"
)

const (
	rfc1123Layout = "Mon, 02 Jan 2006 15:04:05 GMT"
	rfc850Layout  = "Monday, 02-Jan-06 15:04:05 GMT"
	asctimeLayout = "Mon Jan _2 15:04:05 2006"
)

// Format renders t as an RFC 1123 date in GMT.
func Format(t time.Time) string {
	return t.UTC().Format(rfc1123Layout)
}

// Parse accepts RFC 1123, RFC 850, or asctime dates and returns the instant
// in UTC. The zero time and false are returned for anything else, including
// a non-GMT zone token.
//
// The reference parser applied a fixed one-hour DST correction on platforms
// without tm_gmtoff; that correction is wrong for most zones and is not
// reproduced here.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{rfc1123Layout, rfc850Layout, asctimeLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
