package httpx

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures cross-origin access for the front desk UI.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsHeaders struct {
	methods string
	headers string
	exposed string
	maxAge  string
}

// WithCORS answers preflights and decorates responses for allowed origins. Requests from other
// origins pass through undecorated and the browser blocks them. No origins means no CORS.
func WithCORS(policy CORSPolicy) Middleware {
	origins := compact(policy.AllowedOrigins)
	if len(origins) == 0 {
		return passthrough
	}
	wildcard := slices.Contains(origins, "*")
	h := corsHeaders{
		methods: strings.Join(compact(policy.AllowedMethods), ", "),
		headers: strings.Join(compact(policy.AllowedHeaders), ", "),
		exposed: strings.Join(compact(policy.ExposedHeaders), ", "),
	}
	if secs := int(policy.MaxAge / time.Second); secs > 0 {
		h.maxAge = strconv.Itoa(secs)
	}

	allowed := func(origin string) bool {
		return wildcard || slices.ContainsFunc(origins, func(o string) bool { return strings.EqualFold(o, origin) })
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			out := w.Header()
			out.Add("Vary", "Origin")
			if origin == "" || !allowed(origin) {
				next.ServeHTTP(w, r)
				return
			}

			// A credentialed response may not use the wildcard.
			if wildcard && !policy.AllowCredentials {
				out.Set("Access-Control-Allow-Origin", "*")
			} else {
				out.Set("Access-Control-Allow-Origin", origin)
			}
			if policy.AllowCredentials {
				out.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				out.Add("Vary", "Access-Control-Request-Method")
				out.Add("Vary", "Access-Control-Request-Headers")
				setIf(out, "Access-Control-Allow-Methods", h.methods)
				setIf(out, "Access-Control-Allow-Headers", h.headers)
				setIf(out, "Access-Control-Max-Age", h.maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			setIf(out, "Access-Control-Expose-Headers", h.exposed)
			next.ServeHTTP(w, r)
		})
	}
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
