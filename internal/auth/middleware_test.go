package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tasklane/tasklane/internal/token"
)

func TestAuthenticated(t *testing.T) {
	svc, db := newTestService(t)
	session := register(t, svc, "Ada", "ada@example.com")
	deleted := register(t, svc, "Gone", "gone@example.com")
	require.NoError(t, db.Users().Delete(context.Background(), deleted.User.ID))

	other, err := token.NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue(session.User.ID)
	require.NoError(t, err)

	var seenUserID string
	handler := svc.Authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seenUserID = user.ID
		w.WriteHeader(http.StatusOK)
	}))

	tt := []struct {
		name        string
		authHeader  string
		wantStatus  int
		wantMessage string
	}{
		{
			name:        "Empty",
			authHeader:  "",
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "no token provided",
		},
		{
			name:        "Wrong scheme",
			authHeader:  "Basic " + session.Token,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "no token provided",
		},
		{
			name:        "Forged",
			authHeader:  "Bearer " + forged,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "invalid token",
		},
		{
			name:        "Deleted user",
			authHeader:  "Bearer " + deleted.Token,
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "user not found",
		},
		{
			name:       "Valid",
			authHeader: "Bearer " + session.Token,
			wantStatus: http.StatusOK,
		},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			seenUserID = ""

			req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
			if test.authHeader != "" {
				req.Header.Set("Authorization", test.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, test.wantStatus, rec.Code)
			if test.wantStatus == http.StatusOK {
				assert.Equal(t, session.User.ID, seenUserID)
				return
			}

			assert.Empty(t, seenUserID)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "fail", body["status"])
			assert.Equal(t, test.wantMessage, body["message"])
		})
	}
}

func TestUserFromContext(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	svc, _ := newTestService(t)
	session := register(t, svc, "Ada", "ada@example.com")
	user, err := svc.Authenticate(context.Background(), session.Token)
	require.NoError(t, err)

	got, ok := UserFromContext(WithUser(context.Background(), user))
	assert.True(t, ok)
	assert.Equal(t, user.ID, got.ID)
}
