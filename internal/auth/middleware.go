package auth

import (
	"context"
	"net/http"

	"github.com/tasklane/tasklane/internal/database"
	"github.com/tasklane/tasklane/internal/model"
	tlhttp "github.com/tasklane/tasklane/pkg/http"
)

type userKey string

var userContextKey userKey = "user"

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the user attached by Authenticated, if any.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

// Authenticated protects endpoints with the caller's bearer session token.
// The resolved user is attached to the request context.
func (s *Service) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Authorization")

		bearer, err := ParseBearerAuthorizationHeader(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			tlhttp.WriteError(w, r, model.ErrUnauthorized("no token provided"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
		user, err := s.Authenticate(ctx, bearer)
		cancel()
		if err != nil {
			if model.KindOf(err) == model.ErrorKindUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			}
			tlhttp.WriteError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}
