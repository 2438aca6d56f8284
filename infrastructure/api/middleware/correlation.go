package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// CorrelationHeader carries the correlation ID across service boundaries.
const CorrelationHeader = "X-Correlation-ID"

// CorrelationID ensures every request carries a correlation ID. An
// incoming header value is kept; otherwise a new one is generated. The
// ID is echoed on the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(CorrelationHeader, id)
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r)
	})
}
