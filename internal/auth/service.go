package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/tasklane/tasklane/internal/database"
	"github.com/tasklane/tasklane/internal/model"
	"github.com/tasklane/tasklane/internal/token"
	"github.com/tasklane/tasklane/pkg/util/passwordutil"
)

// DefaultResetTokenLife is how long a password reset token stays valid.
const DefaultResetTokenLife = 10 * time.Minute

const resetTokenBytes = 32

var errInvalidCredentials = model.ErrUnauthorized("invalid credentials")

// Session is returned after a successful sign-in.
type Session struct {
	User  *model.UserData `json:"user"`
	Token string          `json:"token"`
}

// Service manages credentials and issues session tokens.
type Service struct {
	users     database.UserDB
	hasher    passwordutil.Hasher
	tokens    *token.Issuer
	resetLife time.Duration
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates an auth service. A non-positive resetLife uses
// DefaultResetTokenLife.
func NewService(users database.UserDB, hasher passwordutil.Hasher, tokens *token.Issuer, resetLife time.Duration) *Service {
	if resetLife <= 0 {
		resetLife = DefaultResetTokenLife
	}
	return &Service{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		resetLife: resetLife,
		now:       time.Now,
	}
}

func (s *Service) newSession(user *model.User) (*Session, error) {
	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, model.ErrInternal(err)
	}
	return &Session{User: user.ToUserData(), Token: tok}, nil
}

// Register creates a password account and signs it in.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = model.NormalizeEmail(email)

	v := model.NewValidator()
	v.CheckCond(name != "", "name", "must be provided")
	v.CheckCond(len(name) <= 255, "name", "must be at most 255 characters")
	v.CheckEmail(email)
	v.CheckPassword("password", password)
	if err := v.Err(); err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, model.ErrConflict("email already registered")
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, model.ErrInternal(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, model.ErrInternal(err)
	}

	user := &model.User{
		ID:           uuid.Must(uuid.NewV4()).String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, model.ErrConflict("email already registered")
		}
		return nil, model.ErrInternal(err)
	}

	log.Printf("Registered user %s\n", user.ID)
	return s.newSession(user)
}

// Login signs in with email and password. Unknown emails, wrong passwords
// and accounts without a password all fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = model.NormalizeEmail(email)

	v := model.NewValidator()
	v.CheckCond(email != "", "email", "must be provided")
	v.CheckCond(password != "", "password", "must be provided")
	if err := v.Err(); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			return nil, model.ErrInternal(err)
		}
		// Spend the same time as a real comparison.
		s.hasher.Compare(s.getDummyHash(), password)
		return nil, errInvalidCredentials
	}

	if !user.HasPassword() {
		s.hasher.Compare(s.getDummyHash(), password)
		return nil, errInvalidCredentials
	}
	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, errInvalidCredentials
	}
	return s.newSession(user)
}

func (s *Service) getDummyHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.Must(uuid.NewV4()).String())
		if err != nil {
			log.Printf("Error generating dummy hash: %v\n", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// OAuthLogin signs in with an external identity. The user is found by
// OAuth ID, then by email (linking the identity), and is otherwise created
// without a password.
func (s *Service) OAuthLogin(ctx context.Context, profile model.OAuthProfile) (*Session, error) {
	profile.Email = model.NormalizeEmail(profile.Email)

	v := model.NewValidator()
	v.CheckCond(profile.ID != "", "id", "must be provided")
	v.CheckEmail(profile.Email)
	if err := v.Err(); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByOAuthID(ctx, profile.ID)
	if err == nil {
		return s.newSession(user)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, model.ErrInternal(err)
	}

	user, err = s.users.GetUserByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		if user.OAuthID != "" && user.OAuthID != profile.ID {
			return nil, model.ErrConflict("email is linked to another account")
		}
		user.OAuthID = profile.ID
		if err := s.users.Update(ctx, user); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return nil, model.ErrConflict("oauth account already linked")
			}
			return nil, model.ErrInternal(err)
		}
		log.Printf("Linked OAuth identity to user %s\n", user.ID)
		return s.newSession(user)
	case !errors.Is(err, database.ErrNotFound):
		return nil, model.ErrInternal(err)
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = profile.Email[:strings.Index(profile.Email, "@")]
	}
	user = &model.User{
		ID:      uuid.Must(uuid.NewV4()).String(),
		Name:    name,
		Email:   profile.Email,
		OAuthID: profile.ID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, model.ErrConflict("email already registered")
		}
		return nil, model.ErrInternal(err)
	}

	log.Printf("Registered OAuth user %s\n", user.ID)
	return s.newSession(user)
}

// hashResetToken returns the hex SHA-256 digest stored for a reset token.
func hashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// RequestPasswordReset issues a reset token for email and returns it in
// plaintext. Only its digest is stored.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = model.NormalizeEmail(email)

	v := model.NewValidator()
	v.CheckEmail(email)
	if err := v.Err(); err != nil {
		return "", err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", model.ErrNotFound("no account with that email")
		}
		return "", model.ErrInternal(err)
	}

	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", model.ErrInternal(err)
	}
	plain := hex.EncodeToString(b)

	expiry := s.now().Add(s.resetLife).UTC()
	user.ResetTokenHash = hashResetToken(plain)
	user.ResetTokenExpiry = &expiry
	if err := s.users.Update(ctx, user); err != nil {
		return "", model.ErrInternal(err)
	}
	return plain, nil
}

// ResetPassword replaces the password of the user holding plainToken and
// consumes the token.
func (s *Service) ResetPassword(ctx context.Context, plainToken, newPassword string) error {
	if plainToken == "" {
		return model.ErrValidation("invalid or expired token")
	}
	v := model.NewValidator()
	v.CheckPassword("newPassword", newPassword)
	if err := v.Err(); err != nil {
		return err
	}

	now := s.now()
	digest := hashResetToken(plainToken)
	user, err := s.users.GetUserByResetToken(ctx, digest, now)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return model.ErrValidation("invalid or expired token")
		}
		return model.ErrInternal(err)
	}
	if !user.HasValidResetToken(digest, now) {
		return model.ErrValidation("invalid or expired token")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return model.ErrInternal(err)
	}
	user, err = s.users.ConsumeResetToken(ctx, digest, hash, now)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return model.ErrValidation("invalid or expired token")
		}
		return model.ErrInternal(err)
	}

	log.Printf("Reset password for user %s\n", user.ID)
	return nil
}

// Authenticate resolves a session token to a live user.
func (s *Service) Authenticate(ctx context.Context, tokenStr string) (*model.User, error) {
	claims, err := s.tokens.Verify(tokenStr)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			return nil, model.ErrUnauthorized("token expired")
		}
		return nil, model.ErrUnauthorized("invalid token")
	}

	user, err := s.users.Get(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, model.ErrUnauthorized("user not found")
		}
		return nil, model.ErrInternal(err)
	}
	return user, nil
}
