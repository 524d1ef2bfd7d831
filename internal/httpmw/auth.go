package httpmw

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/identity"
)

type claimsKey struct{}

// ClaimsFromContext returns the caller's verified identity, as attached by
// Authenticate. Handlers on authenticated routes may assume it is present.
func ClaimsFromContext(ctx context.Context) *identity.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*identity.Claims)
	return claims
}

// Authenticate extracts a Bearer credential, verifies it against verifier,
// and attaches the resulting claims to the request context.
func Authenticate(verifier identity.Verifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				apperrors.WriteHTTP(w, log, apperrors.New(apperrors.KindUnauthenticated, "httpmw.Authenticate", "missing authorization header"))
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				apperrors.WriteHTTP(w, log, apperrors.New(apperrors.KindUnauthenticated, "httpmw.Authenticate", "invalid authorization header format"))
				return
			}

			credential := strings.TrimSpace(parts[1])
			if credential == "" {
				apperrors.WriteHTTP(w, log, apperrors.New(apperrors.KindUnauthenticated, "httpmw.Authenticate", "empty bearer credential"))
				return
			}

			claims, err := verifier.Verify(r.Context(), credential)
			if err != nil {
				apperrors.WriteHTTP(w, log, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
