package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Tracing starts a server span named "<METHOD> <route pattern>". Use it
// inside the router so the pattern is already resolved.
func Tracing() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			operation := r.Method + " " + routePattern(r)
			otelhttp.NewHandler(next, operation).ServeHTTP(w, r)
		})
	}
}
