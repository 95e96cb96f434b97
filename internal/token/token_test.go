package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIssuer(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	require.Error(t, err)

	iss, err := NewIssuer("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLife, iss.life)
}

func TestIssueAndVerify(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)

	enc, err := iss.Issue("user-1")
	require.NoError(t, err)

	claims, err := iss.Verify(enc)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.ExpiresAt)
	require.NotNil(t, claims.IssuedAt)
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestIssueMissingUser(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)

	_, err = iss.Issue("")
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	require.NoError(t, err)

	other, err := NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)

	tt := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name: "Valid",
			token: func(t *testing.T) string {
				enc, err := iss.Issue("user-1")
				require.NoError(t, err)
				return enc
			},
		},
		{
			name: "Garbage",
			token: func(*testing.T) string {
				return "not.a.token"
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "Wrong secret",
			token: func(t *testing.T) string {
				enc, err := other.Issue("user-1")
				require.NoError(t, err)
				return enc
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "Tampered",
			token: func(t *testing.T) string {
				enc, err := iss.Issue("user-1")
				require.NoError(t, err)
				parts := strings.Split(enc, ".")
				parts[2] = strings.Repeat("A", len(parts[2]))
				return strings.Join(parts, ".")
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "Expired",
			token: func(t *testing.T) string {
				past, err := NewIssuer("secret", time.Hour)
				require.NoError(t, err)
				past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
				enc, err := past.Issue("user-1")
				require.NoError(t, err)
				return enc
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "Unsigned",
			token: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
					Subject:   "user-1",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				})
				enc, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return enc
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "Missing subject",
			token: func(t *testing.T) string {
				tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				})
				enc, err := tok.SignedString([]byte("secret"))
				require.NoError(t, err)
				return enc
			},
			wantErr: ErrInvalidToken,
		},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			claims, err := iss.Verify(test.token(t))
			if test.wantErr != nil {
				assert.ErrorIs(t, err, test.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", claims.UserID())
		})
	}
}
