package httpx

import (
	"net/http"
	"strings"
)

// requestCacheable is the request half of the §4.E cacheability table:
// reject on a stop-list match, a client no-store, or a non-cacheable
// method; accept otherwise and let the TTL rules decide lifetime.
func (s *Server) requestCacheable(r *Request) bool {
	if r.Method != "GET" && r.Method != "HEAD" {
		return false
	}
	url := r.CanonicalURL()
	for _, stop := range s.StopList {
		if strings.Contains(url, stop) {
			return false
		}
	}
	cc := strings.ToLower(r.Header.Get("Cache-Control"))
	if strings.Contains(cc, "no-store") {
		return false
	}
	if strings.ToLower(r.Header.Get("Pragma")) == "no-cache" && !s.AllowViolations {
		return false
	}
	return true
}

// responseCacheable is the response half: private and no-store responses
// are never retained, nor are statuses without heuristic cacheability.
func responseCacheable(status int, hdr http.Header) bool {
	cc := strings.ToLower(hdr.Get("Cache-Control"))
	if strings.Contains(cc, "private") || strings.Contains(cc, "no-store") {
		return false
	}
	switch status {
	case http.StatusOK, http.StatusNonAuthoritativeInfo, http.StatusMultipleChoices,
		http.StatusMovedPermanently, http.StatusGone, http.StatusNotFound:
		return true
	default:
		return false
	}
}
