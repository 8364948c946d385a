package middleware

import (
	"net/http"
	"time"
)

// noCacheValue disables caching in browsers and intermediaries.
const noCacheValue = "no-cache, no-store, must-revalidate, max-age=0"

var epoch = time.Unix(0, 0).UTC().Format(http.TimeFormat)

// NoCache returns a middleware that marks every response as uncacheable.
// Headers set later by the handler take precedence.
func NoCache() Func {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Cache-Control", noCacheValue)
			h.Set("Pragma", "no-cache")
			h.Set("Expires", epoch)
			next.ServeHTTP(w, r)
		})
	}
}
