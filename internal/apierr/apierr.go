// Package apierr maps internal errors to HTTP status codes, per spec.md
// §7's taxonomy. The correlation, incident and environment handlers fold
// their failures into 200 payloads and never call it. The alert handlers
// use it for not-found (404); they answer other alert-store errors with a
// 500 and a bad feedback value with a 400, so alert routes do not degrade.
package apierr

import (
	"errors"
	"net/http"

	"pulsecorr/internal/alerts"
)

// StatusFor maps an error to the HTTP status code a handler should respond
// with. Most query-layer errors never reach here — they're swallowed into
// degraded payloads upstream — so this mainly covers the alert store's
// not-found case and falls back to 500 for anything unrecognized.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, alerts.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
