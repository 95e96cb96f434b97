package database

import (
	"context"
	"errors"
	"time"

	"github.com/tasklane/tasklane/internal/model"
)

// DefaultTimeout is the default length of time to wait
// for a database operation to complete.
const DefaultTimeout = time.Second * 3

// Store errors. Implementations wrap these so callers can use errors.Is.
var (
	// ErrNotFound means no record matched the lookup.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate means a unique field (email, OAuth ID) is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// Repository is the storage capability shared by every entity type.
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Get(ctx context.Context, id string) (*T, error)
	Update(ctx context.Context, entity *T) error
	Delete(ctx context.Context, id string) error
}

// UserDB handles interactions with the credential store.
type UserDB interface {
	Repository[model.User]
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByOAuthID(ctx context.Context, oauthID string) (*model.User, error)

	// GetUserByResetToken returns the user holding the reset token hash
	// whose expiry is after now.
	GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)

	// ConsumeResetToken atomically replaces the password of the user
	// holding the unexpired reset token and clears the token.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*model.User, error)
}

// TaskDB handles interactions with the task store.
type TaskDB interface {
	Repository[model.Task]

	// ListTasksByOwner returns the owner's tasks sorted ascending by order.
	ListTasksByOwner(ctx context.Context, userID string) ([]*model.Task, error)

	// MaxOrder returns the highest order among the owner's tasks, and
	// false if the owner has none.
	MaxOrder(ctx context.Context, userID string) (int, bool, error)

	// UpdateTaskOrders sets the order of every listed task in a single
	// transaction. Either all orders change or none do.
	UpdateTaskOrders(ctx context.Context, orders []model.TaskOrder) error
}

// Database handles all interactions with the data backend.
type Database interface {
	Users() UserDB
	Tasks() TaskDB
	Ping(ctx context.Context) error
	Close() error
}
