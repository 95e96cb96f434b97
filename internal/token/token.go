package token

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

// Verification errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// DefaultLife is how long a session token stays valid.
const DefaultLife = 24 * time.Hour

// Claims are the contents of a session token. The subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
}

// UserID returns the user the token was issued to.
func (c *Claims) UserID() string {
	return c.Subject
}

// Issuer signs and verifies session tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	life   time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. A non-positive life uses DefaultLife.
func NewIssuer(secret string, life time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("empty signing secret")
	}
	if life <= 0 {
		life = DefaultLife
	}
	return &Issuer{
		secret: []byte(secret),
		life:   life,
		now:    time.Now,
	}, nil
}

// Issue provisions and signs a new session token for userID.
func (iss *Issuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("missing user ID")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	now := iss.now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(iss.life)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(iss.secret)
}

// Verify checks the signature and expiry of a session token and returns
// its claims.
func (iss *Issuer) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(t *jwt.Token) (interface{}, error) {
			return iss.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(iss.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
