// Package middleware provides the HTTP middleware used around the
// documentation endpoints and demo services: no-cache headers, request
// ids, CORS and panic recovery.
package middleware

import "net/http"

// Func wraps an http.Handler.
type Func func(http.Handler) http.Handler

// Chain applies middlewares to h. The first middleware is the outermost.
func Chain(h http.Handler, mws ...Func) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
