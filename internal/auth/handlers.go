package auth

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	"github.com/tasklane/tasklane/internal/database"
	"github.com/tasklane/tasklane/internal/model"
	tlhttp "github.com/tasklane/tasklane/pkg/http"
)

const (
	// RegisterEndpoint creates a password account.
	RegisterEndpoint = "/auth/register"

	// LoginEndpoint signs in with email and password.
	LoginEndpoint = "/auth/login"

	// ForgotPasswordEndpoint issues a password reset token.
	ForgotPasswordEndpoint = "/auth/forgot-password"

	// ResetPasswordEndpoint consumes a reset token.
	ResetPasswordEndpoint = "/auth/reset-password"

	// OAuthEndpoint redirects to the external provider.
	OAuthEndpoint = "/auth/oauth"

	// OAuthCallbackEndpoint receives the provider's authorization code.
	OAuthCallbackEndpoint = "/auth/oauth/callback"

	stateCookieName = "oauth_state"
	stateCookieAge  = 10 * 60
)

// OAuthProvider runs the external half of an OAuth sign-in.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*model.OAuthProfile, error)
}

// Options configures the auth routes.
type Options struct {
	// Provider is nil when OAuth sign-in is disabled.
	Provider OAuthProvider

	// FrontendURL receives the session token after OAuth sign-in.
	FrontendURL string

	// SecureCookies marks the OAuth state cookie Secure.
	SecureCookies bool

	// Middleware wraps every auth route, e.g. rate limiting.
	Middleware []mux.MiddlewareFunc
}

// SetupRoutes configures routing for the given mux.
func SetupRoutes(r *mux.Router, svc *Service, opts Options) {
	h := &handler{svc: svc, opts: opts}

	s := r.PathPrefix("/auth").Subrouter()
	for _, mw := range opts.Middleware {
		s.Use(mw)
	}
	s.HandleFunc("/register", h.register).Methods(http.MethodPost)
	s.HandleFunc("/login", h.login).Methods(http.MethodPost)
	s.HandleFunc("/forgot-password", h.forgotPassword).Methods(http.MethodPost)
	s.HandleFunc("/reset-password", h.resetPassword).Methods(http.MethodPost)

	oauth := s.PathPrefix("/oauth").Subrouter()
	oauth.Use(tlhttp.SuppressReferrer)
	oauth.HandleFunc("", h.oauthRedirect).Methods(http.MethodGet)
	oauth.HandleFunc("/callback", h.oauthCallback).Methods(http.MethodGet)
}

type handler struct {
	svc  *Service
	opts Options
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := tlhttp.DecodeJSON(w, r, &input, false); err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	session, err := h.svc.Register(ctx, input.Name, input.Email, input.Password)
	if err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	tlhttp.WriteJSON(w, http.StatusCreated, session)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := tlhttp.DecodeJSON(w, r, &input, false); err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	session, err := h.svc.Login(ctx, input.Email, input.Password)
	if err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	tlhttp.WriteJSON(w, http.StatusOK, session)
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email string `json:"email"`
	}
	if err := tlhttp.DecodeJSON(w, r, &input, false); err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	resetToken, err := h.svc.RequestPasswordReset(ctx, input.Email)
	if err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	tlhttp.WriteJSON(w, http.StatusOK, map[string]string{"resetToken": resetToken})
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := tlhttp.DecodeJSON(w, r, &input, false); err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	if err := h.svc.ResetPassword(ctx, input.Token, input.NewPassword); err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}
	tlhttp.WriteMessage(w, http.StatusOK, "password has been reset")
}

func (h *handler) oauthRedirect(w http.ResponseWriter, r *http.Request) {
	if h.opts.Provider == nil {
		tlhttp.WriteError(w, r, model.ErrNotFound("oauth is not configured"))
		return
	}

	state := uuid.Must(uuid.NewV4()).String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     OAuthEndpoint,
		MaxAge:   stateCookieAge,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.opts.Provider.AuthCodeURL(state), http.StatusFound)
}

func (h *handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	if h.opts.Provider == nil {
		tlhttp.WriteError(w, r, model.ErrNotFound("oauth is not configured"))
		return
	}

	// The state is single use.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     OAuthEndpoint,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	query := r.URL.Query()
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != query.Get("state") {
		tlhttp.WriteError(w, r, model.ErrValidation("invalid oauth state"))
		return
	}
	if providerErr := query.Get("error"); providerErr != "" {
		log.Printf("OAuth provider returned error: %s\n", providerErr)
		tlhttp.WriteError(w, r, model.ErrValidation("oauth sign-in was cancelled or denied"))
		return
	}
	code := query.Get("code")
	if code == "" {
		tlhttp.WriteError(w, r, model.ErrValidation("missing authorization code"))
		return
	}

	profile, err := h.opts.Provider.Exchange(r.Context(), code)
	if err != nil {
		log.Printf("Error exchanging OAuth code: %v\n", err)
		tlhttp.WriteFail(w, http.StatusBadGateway, "oauth provider failure")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), database.DefaultTimeout)
	defer cancel()

	session, err := h.svc.OAuthLogin(ctx, *profile)
	if err != nil {
		tlhttp.WriteError(w, r, err)
		return
	}

	if h.opts.FrontendURL == "" {
		tlhttp.WriteJSON(w, http.StatusOK, session)
		return
	}
	redirect := strings.TrimRight(h.opts.FrontendURL, "/") + OAuthEndpoint + "?token=" + url.QueryEscape(session.Token)
	http.Redirect(w, r, redirect, http.StatusFound)
}
