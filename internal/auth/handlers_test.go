package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasklane/tasklane/internal/mock"
	"github.com/tasklane/tasklane/internal/model"
)

type fakeProvider struct {
	profile *model.OAuthProfile
	err     error
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example.com/auth?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*model.OAuthProfile, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.profile, nil
}

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T, opts Options) (*mux.Router, *Service) {
	svc, _ := newTestService(t)
	r := mux.NewRouter()
	SetupRoutes(r, svc, opts)
	return r, svc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, response) {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestRegisterHandler(t *testing.T) {
	r, _ := newTestRouter(t, Options{})

	rec, resp := doJSON(t, r, http.MethodPost, RegisterEndpoint, map[string]string{
		"name":     "Ada",
		"email":    "ada@example.com",
		"password": mock.DefaultPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "success", resp.Status)

	var session struct {
		User  map[string]interface{} `json:"user"`
		Token string                 `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "ada@example.com", session.User["email"])
	assert.NotContains(t, session.User, "password_hash")
	assert.NotContains(t, session.User, "passwordHash")

	rec, resp = doJSON(t, r, http.MethodPost, RegisterEndpoint, map[string]string{
		"name":     "Ada Again",
		"email":    "ada@example.com",
		"password": mock.DefaultPassword,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "fail", resp.Status)

	rec, _ = doJSON(t, r, http.MethodPost, RegisterEndpoint, map[string]string{
		"name":  "Ada",
		"email": "bad",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, r, http.MethodPost, RegisterEndpoint, map[string]interface{}{
		"name":     "Ada",
		"email":    "ada2@example.com",
		"password": mock.DefaultPassword,
		"admin":    true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginHandler(t *testing.T) {
	r, svc := newTestRouter(t, Options{})
	register(t, svc, "Ada", "ada@example.com")

	rec, resp := doJSON(t, r, http.MethodPost, LoginEndpoint, map[string]string{
		"email":    "ada@example.com",
		"password": mock.DefaultPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)

	rec, resp = doJSON(t, r, http.MethodPost, LoginEndpoint, map[string]string{
		"email":    "ada@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", resp.Message)

	rec, resp = doJSON(t, r, http.MethodPost, LoginEndpoint, map[string]string{
		"email":    "nobody@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", resp.Message)

	rec, _ = doJSON(t, r, http.MethodGet, LoginEndpoint, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPasswordResetHandlers(t *testing.T) {
	r, svc := newTestRouter(t, Options{})
	register(t, svc, "Ada", "ada@example.com")

	rec, _ := doJSON(t, r, http.MethodPost, ForgotPasswordEndpoint, map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, resp := doJSON(t, r, http.MethodPost, ForgotPasswordEndpoint, map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		ResetToken string `json:"resetToken"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	require.NotEmpty(t, data.ResetToken)

	rec, resp = doJSON(t, r, http.MethodPost, ResetPasswordEndpoint, map[string]string{
		"token":       "wrong",
		"newPassword": "a-brand-new-password",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid or expired token", resp.Message)

	rec, resp = doJSON(t, r, http.MethodPost, ResetPasswordEndpoint, map[string]string{
		"token":       data.ResetToken,
		"newPassword": "a-brand-new-password",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)

	_, err := svc.Login(context.Background(), "ada@example.com", "a-brand-new-password")
	require.NoError(t, err)
}

func TestOAuthDisabled(t *testing.T) {
	r, _ := newTestRouter(t, Options{})

	rec, _ := doJSON(t, r, http.MethodGet, OAuthEndpoint, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, r, http.MethodGet, OAuthCallbackEndpoint+"?code=x&state=y", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func startOAuth(t *testing.T, r http.Handler) *http.Cookie {
	req := httptest.NewRequest(http.MethodGet, OAuthEndpoint, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)

	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
	return state
}

func callback(r http.Handler, query string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, OAuthCallbackEndpoint+"?"+query, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestOAuthFlow(t *testing.T) {
	provider := &fakeProvider{
		profile: &model.OAuthProfile{ID: "google-1", Email: "ada@example.com", Name: "Ada"},
	}
	r, svc := newTestRouter(t, Options{
		Provider:    provider,
		FrontendURL: "https://app.example.com/",
	})

	t.Run("Success", func(t *testing.T) {
		state := startOAuth(t, r)
		rec := callback(r, "code=abc&state="+url.QueryEscape(state.Value), state)
		require.Equal(t, http.StatusFound, rec.Code)

		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "app.example.com", loc.Host)
		assert.Equal(t, "/auth/oauth", loc.Path)

		user, err := svc.Authenticate(context.Background(), loc.Query().Get("token"))
		require.NoError(t, err)
		assert.Equal(t, "google-1", user.OAuthID)
	})

	t.Run("Missing cookie", func(t *testing.T) {
		rec := callback(r, "code=abc&state=whatever", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("State mismatch", func(t *testing.T) {
		state := startOAuth(t, r)
		rec := callback(r, "code=abc&state=forged", state)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Missing code", func(t *testing.T) {
		state := startOAuth(t, r)
		rec := callback(r, "state="+url.QueryEscape(state.Value), state)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Provider error", func(t *testing.T) {
		state := startOAuth(t, r)
		rec := callback(r, "error=access_denied&state="+url.QueryEscape(state.Value), state)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Exchange failure", func(t *testing.T) {
		provider.err = errors.New("provider down")
		defer func() { provider.err = nil }()

		state := startOAuth(t, r)
		rec := callback(r, "code=abc&state="+url.QueryEscape(state.Value), state)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}
