package httpmw

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const correlationHeader = "X-Correlation-ID"

type correlationKey struct{}

// CorrelationIDFromContext returns the request's correlation id, or "" if none has
// been attached (e.g. outside a request served through CorrelationID
// middleware).
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// CorrelationID propagates the caller's X-Correlation-ID, or mints one, and
// attaches it to the request context and response so it threads through
// audit.Record.CorrelationID end to end.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		ctx := context.WithValue(r.Context(), correlationKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
