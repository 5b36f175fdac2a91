package middleware

import (
	"net/http"

	"shortly/pkg/logging"
)

// Correlation tags every request context with a correlation ID.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithCorrelationID(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
