package httpx

import (
	"fmt"
	"net/http"
)

// ErrorPageRenderer formats the generated error body for a transactional
// failure. Error-page templating is an external collaborator; this is the
// interface the core expects from it, with a minimal built-in default.
type ErrorPageRenderer func(status int, reason string, detail error) []byte

// DefaultErrorPage is the built-in renderer used when none is configured.
func DefaultErrorPage(status int, reason string, detail error) []byte {
	text := http.StatusText(status)
	body := fmt.Sprintf(
		"<html><head><title>%d %s</title></head><body><h1>%d %s</h1><p>%s</p></body></html>\n",
		status, text, status, text, reason)
	return []byte(body)
}
