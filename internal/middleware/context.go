package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/rentman-app/matching-service/internal/logging"
)

// CorrelationID is middleware that injects a correlation ID into the context
// so a requester's call can be traced through matching and assignment logs.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse a correlation ID supplied by the caller, otherwise mint one
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := logging.WithCorrelationID(r.Context(), correlationID)

		// Carry the chi request ID alongside it if present
		if requestID := middleware.GetReqID(r.Context()); requestID != "" {
			ctx = logging.WithRequestID(ctx, requestID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
