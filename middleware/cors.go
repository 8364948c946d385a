package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// ErrWildcardCredentials is returned when AllowedOrigins contains "*" and
// AllowCredentials is true.
var ErrWildcardCredentials = errors.New("wildcard origin \"*\" cannot be used with AllowCredentials")

// CORSConfig configures the CORS middleware. It lets documentation viewers
// hosted elsewhere (editor.swagger.io, internal portals) read the served
// documents.
//
// See: https://fetch.spec.whatwg.org/#http-cors-protocol
type CORSConfig struct {
	// AllowedOrigins lists exact origins, "*", or subdomain patterns like
	// "https://*.example.com". Matching is case-insensitive.
	AllowedOrigins []string

	// AllowedMethods defaults to GET, HEAD and OPTIONS.
	AllowedMethods []string

	// AllowedHeaders are advertised on preflight responses. When empty the
	// requested headers are reflected.
	AllowedHeaders []string

	AllowCredentials bool

	// MaxAge in seconds. Zero omits the header.
	MaxAge int
}

type originPattern struct {
	prefix string
	suffix string
}

// CORS returns a middleware answering preflight requests itself and
// adding the allow headers to requests from allowed origins. Requests from
// other origins pass through untouched.
func CORS(cfg CORSConfig) (Func, error) {
	wildcard := slices.Contains(cfg.AllowedOrigins, "*")
	if wildcard && cfg.AllowCredentials {
		return nil, ErrWildcardCredentials
	}

	var (
		exact    []string
		patterns []originPattern
	)
	for _, o := range cfg.AllowedOrigins {
		o = strings.ToLower(o)
		prefix, suffix, found := strings.Cut(o, "*")
		switch {
		case o == "*":
		case !found:
			exact = append(exact, o)
		case strings.Contains(suffix, "*"):
			return nil, errors.New("origin pattern contains multiple wildcards: " + o)
		default:
			patterns = append(patterns, originPattern{prefix: prefix, suffix: suffix})
		}
	}

	allowed := func(origin string) bool {
		if wildcard {
			return true
		}
		origin = strings.ToLower(origin)
		if slices.Contains(exact, origin) {
			return true
		}
		for _, p := range patterns {
			if len(origin) >= len(p.prefix)+len(p.suffix) &&
				strings.HasPrefix(origin, p.prefix) && strings.HasSuffix(origin, p.suffix) {
				return true
			}
		}
		return false
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	}
	allowMethods := strings.Join(methods, ",")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if !wildcard {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed(origin) {
				next.ServeHTTP(w, r)
				return
			}

			if wildcard {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Methods", allowMethods)
			if len(cfg.AllowedHeaders) > 0 {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ","))
			} else if h := r.Header.Get("Access-Control-Request-Headers"); h != "" {
				w.Header().Set("Access-Control-Allow-Headers", h)
			}
			if cfg.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
			w.Header().Add("Vary", "Access-Control-Request-Method")
			w.Header().Add("Vary", "Access-Control-Request-Headers")
			w.WriteHeader(http.StatusNoContent)
		})
	}, nil
}
