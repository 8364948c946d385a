package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDFromContext returns the request id stored by RequestID, or ""
// when there is none.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestIDConfig configures RequestID.
type RequestIDConfig struct {
	// HeaderName defaults to "X-Request-ID".
	HeaderName string

	// Generate returns a new id. Defaults to a time-ordered UUIDv7.
	Generate func(r *http.Request) string

	// TrustIncoming reuses an id sent by the client.
	TrustIncoming bool
}

// RequestID returns a middleware that assigns every request an id. The id
// is stored in the request context and echoed in the response header.
func RequestID(cfg RequestIDConfig) Func {
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = "X-Request-ID"
	}

	generate := cfg.Generate
	if generate == nil {
		generate = newRequestID
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cfg.TrustIncoming {
				id = r.Header.Get(headerName)
			}
			if id == "" {
				id = generate(r)
			}

			if id != "" {
				w.Header().Set(headerName, id)
				r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RFC 9562 section 5.7
func newRequestID(_ *http.Request) string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
