package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/filedrop/filedrop/internal/common"
	"github.com/filedrop/filedrop/internal/server/auth"
)

// contextKey avoids collisions with other packages' context values.
type contextKey string

const contextKeyClaims contextKey = "claims"

// authenticate extracts and validates the Bearer token and puts the claims
// into the request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			h.writeError(w, r, common.ErrInvalidToken)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			h.writeError(w, r, common.ErrInvalidToken)
			return
		}

		claims, err := auth.ParseToken(parts[1], h.secretKey)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFromContext returns the claims set by authenticate; nil outside the
// authenticated route group.
func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(contextKeyClaims).(*auth.Claims)
	return claims
}
