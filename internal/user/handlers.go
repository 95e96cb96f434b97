package user

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tasklane/tasklane/internal/auth"
	"github.com/tasklane/tasklane/internal/model"
	tlhttp "github.com/tasklane/tasklane/pkg/http"
)

// UserEndpoint returns the profile of the authenticated caller.
const UserEndpoint = "/user"

// SetupRoutes initializes user routes.
func SetupRoutes(r *mux.Router, authenticated mux.MiddlewareFunc) {
	r.Handle(UserEndpoint, authenticated(http.HandlerFunc(handleUserInfo))).Methods(http.MethodGet)
}

func handleUserInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		tlhttp.WriteError(w, r, model.ErrUnauthorized("no token provided"))
		return
	}

	tlhttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"user": user.ToUserData()})
}
