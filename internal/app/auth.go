package app

import (
	"context"
	"net/http"

	"mapchat/api/internal/auth"
	"mapchat/api/internal/tier"
)

type userKey struct{}

// authenticate resolves an optional bearer token into a user id. Requests
// without a token continue anonymously; a token that does not verify is
// rejected.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := auth.ParseToken(s.deps.JWTSecret, token)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, claims.UserID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userKey{}).(string)
	return userID
}

// tierOf resolves the caller's tier. Anonymous callers are free.
func (s *HTTPServer) tierOf(r *http.Request) tier.Tier {
	userID := userFromContext(r.Context())
	if userID == "" {
		return tier.Free
	}
	return s.deps.Tiers.Resolve(r.Context(), userID)
}
