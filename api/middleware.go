package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/warp/finance-engine/auth"
	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/logging"
)

type ownerKey struct{}

// WithOwner returns a context carrying the authenticated owner.
func WithOwner(ctx context.Context, owner ledger.OwnerID) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner stored by the auth middleware.
func OwnerFrom(ctx context.Context) (ledger.OwnerID, bool) {
	owner, ok := ctx.Value(ownerKey{}).(ledger.OwnerID)
	return owner, ok && owner != ""
}

// Authenticate verifies the bearer token on every request and stores the
// owner it names in the request context. Requests without a valid token
// get 401 and never reach a handler.
func Authenticate(secret []byte, log logging.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logging.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token", Code: "unauthorized"})
				return
			}

			owner, err := auth.OwnerFromToken(strings.TrimSpace(token), secret)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, auth.ErrTokenExpired) {
					msg = "token expired"
				}
				log.Debug(r.Context(), "rejected token", "error", err)
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: msg, Code: "unauthorized"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}
