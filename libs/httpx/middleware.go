package httpx

import (
	"context"
	"net/http"
	"time"
)

type Middleware func(http.Handler) http.Handler

// Chain wraps h so that Chain(h, a, b) serves through a, then b, then h.
func Chain(h http.Handler, m ...Middleware) http.Handler {
	for i := range m {
		h = m[len(m)-1-i](h)
	}
	return h
}

func passthrough(next http.Handler) http.Handler { return next }

// WithBodyLimit caps request bodies at limitBytes. Declared oversize bodies are refused with
// 413 before the handler runs; the rest fail on read past the limit.
func WithBodyLimit(limitBytes int64) Middleware {
	if limitBytes <= 0 {
		return passthrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limitBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// WithTimeout bounds the request context. Handlers and the reverse proxy stop on the
// deadline; a handler that has not written anything by then gets a 504.
func WithTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return passthrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			rec := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))
			if rec.status == 0 && ctx.Err() == context.DeadlineExceeded {
				WriteError(w, http.StatusGatewayTimeout, "request timed out")
			}
		})
	}
}
