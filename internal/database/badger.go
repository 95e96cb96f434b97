package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"github.com/tasklane/tasklane/internal/model"
)

// BadgerDB holds a connection to a Badger backend.
type BadgerDB struct {
	InMemory bool
	DB       *badger.DB

	users *badgerUserDB
	tasks *badgerTaskDB
}

const (
	prefixUser       = "user"
	prefixTask       = "task"
	prefixEmailIndex = "idx_email"
	prefixOAuthIndex = "idx_oauth"
	prefixResetIndex = "idx_reset"
	prefixOwnerIndex = "idx_owner"
)

func makeUserKey(id string) []byte {
	return makeKey(prefixUser, id)
}

func makeTaskKey(id string) []byte {
	return makeKey(prefixTask, id)
}

func makeEmailKey(email string) []byte {
	return makeKey(prefixEmailIndex, email)
}

func makeOAuthKey(oauthID string) []byte {
	return makeKey(prefixOAuthIndex, oauthID)
}

func makeResetKey(tokenHash string) []byte {
	return makeKey(prefixResetIndex, tokenHash)
}

func makeOwnerPrefix(userID string) []byte {
	return makeKey(prefixOwnerIndex, userID+"_")
}

func makeOwnerKey(userID, taskID string) []byte {
	return append(makeOwnerPrefix(userID), taskID...)
}

func makeKey(prefix, id string) []byte {
	return []byte(fmt.Sprintf("%s_%s", prefix, id))
}

// NewBadgerDB creates a new database with a Badger backend stored in dir.
// Pass `true` to create an in-memory database (useful in tests, for example).
func NewBadgerDB(inMemory bool, dir string) (*BadgerDB, error) {
	path := dir
	if inMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(inMemory).
		WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening badger")
	}

	badgerDB := &BadgerDB{DB: db, InMemory: inMemory}
	badgerDB.users = &badgerUserDB{db: db}
	badgerDB.tasks = &badgerTaskDB{db: db}
	return badgerDB, nil
}

// Users returns the credential store.
func (db *BadgerDB) Users() UserDB {
	return db.users
}

// Tasks returns the task store.
func (db *BadgerDB) Tasks() TaskDB {
	return db.tasks
}

// Ping reports whether the database is open.
func (db *BadgerDB) Ping(ctx context.Context) error {
	if db.DB.IsClosed() {
		return errors.New("badger is closed")
	}
	return ctx.Err()
}

// Close handles closing all connections to the database.
func (db *BadgerDB) Close() error {
	return db.DB.Close()
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(b []byte) error {
		return json.Unmarshal(b, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

func getIndex(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return "", ErrNotFound
		}
		return "", err
	}
	b, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == nil {
		return true, nil
	}
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return false, err
}

type badgerUserDB struct {
	db *badger.DB
}

// Create registers a new user, enforcing unique email and OAuth ID.
func (s *badgerUserDB) Create(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	err := s.db.Update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, makeUserKey(user.ID)); err != nil {
			return err
		} else if exists {
			return errors.Wrapf(ErrDuplicate, "user %s", user.ID)
		}
		if err := putUserIndexes(txn, nil, user); err != nil {
			return err
		}
		return setJSON(txn, makeUserKey(user.ID), user)
	})
	return errors.Wrap(err, "creating user")
}

// Get retrieves a user by ID.
func (s *badgerUserDB) Get(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user model.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, makeUserKey(id), &user)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "getting user %s", id)
	}
	return &user, nil
}

// Update overwrites the stored user and moves any changed index entries.
func (s *badgerUserDB) Update(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	user.UpdatedAt = time.Now().UTC()

	err := s.db.Update(func(txn *badger.Txn) error {
		var old model.User
		if err := getJSON(txn, makeUserKey(user.ID), &old); err != nil {
			return err
		}
		if err := putUserIndexes(txn, &old, user); err != nil {
			return err
		}
		return setJSON(txn, makeUserKey(user.ID), user)
	})
	return errors.Wrapf(err, "updating user %s", user.ID)
}

// Delete removes the user and its index entries.
func (s *badgerUserDB) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var old model.User
		if err := getJSON(txn, makeUserKey(id), &old); err != nil {
			return err
		}
		if err := txn.Delete(makeEmailKey(old.Email)); err != nil {
			return err
		}
		if old.OAuthID != "" {
			if err := txn.Delete(makeOAuthKey(old.OAuthID)); err != nil {
				return err
			}
		}
		if old.ResetTokenHash != "" {
			if err := txn.Delete(makeResetKey(old.ResetTokenHash)); err != nil {
				return err
			}
		}
		return txn.Delete(makeUserKey(id))
	})
	return errors.Wrapf(err, "deleting user %s", id)
}

// putUserIndexes writes the lookup keys for user, removing those of old
// that no longer apply. old is nil for a new user.
func putUserIndexes(txn *badger.Txn, old, user *model.User) error {
	var oldEmail, oldOAuthID, oldReset string
	if old != nil {
		oldEmail, oldOAuthID, oldReset = old.Email, old.OAuthID, old.ResetTokenHash
	}

	if user.Email != oldEmail {
		if exists, err := keyExists(txn, makeEmailKey(user.Email)); err != nil {
			return err
		} else if exists {
			return errors.Wrapf(ErrDuplicate, "email %s", user.Email)
		}
		if oldEmail != "" {
			if err := txn.Delete(makeEmailKey(oldEmail)); err != nil {
				return err
			}
		}
		if err := txn.Set(makeEmailKey(user.Email), []byte(user.ID)); err != nil {
			return err
		}
	}

	if user.OAuthID != oldOAuthID {
		if user.OAuthID != "" {
			if exists, err := keyExists(txn, makeOAuthKey(user.OAuthID)); err != nil {
				return err
			} else if exists {
				return errors.Wrapf(ErrDuplicate, "oauth id %s", user.OAuthID)
			}
			if err := txn.Set(makeOAuthKey(user.OAuthID), []byte(user.ID)); err != nil {
				return err
			}
		}
		if oldOAuthID != "" {
			if err := txn.Delete(makeOAuthKey(oldOAuthID)); err != nil {
				return err
			}
		}
	}

	if user.ResetTokenHash != oldReset {
		if oldReset != "" {
			if err := txn.Delete(makeResetKey(oldReset)); err != nil {
				return err
			}
		}
		if user.ResetTokenHash != "" {
			entry := badger.NewEntry(makeResetKey(user.ResetTokenHash), []byte(user.ID))
			if user.ResetTokenExpiry != nil {
				ttl := time.Until(*user.ResetTokenExpiry)
				if ttl <= 0 {
					return nil
				}
				entry = entry.WithTTL(ttl)
			}
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
	}

	return nil
}

// ConsumeResetToken sets passwordHash on the user holding the unexpired
// reset token and clears the token. A token already consumed by a
// concurrent call reports ErrNotFound.
func (s *badgerUserDB) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tokenHash == "" {
		return nil, ErrNotFound
	}

	var user model.User
	err := s.db.Update(func(txn *badger.Txn) error {
		id, err := getIndex(txn, makeResetKey(tokenHash))
		if err != nil {
			return err
		}
		var old model.User
		if err := getJSON(txn, makeUserKey(id), &old); err != nil {
			return err
		}
		if !old.HasValidResetToken(tokenHash, now) {
			return ErrNotFound
		}

		user = old
		user.PasswordHash = passwordHash
		user.ClearResetToken()
		user.UpdatedAt = time.Now().UTC()
		if err := putUserIndexes(txn, &old, &user); err != nil {
			return err
		}
		return setJSON(txn, makeUserKey(id), &user)
	})
	if errors.Is(err, badger.ErrConflict) {
		err = ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "consuming reset token")
	}
	return &user, nil
}

func (s *badgerUserDB) getByIndex(ctx context.Context, key []byte) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var user model.User
	err := s.db.View(func(txn *badger.Txn) error {
		id, err := getIndex(txn, key)
		if err != nil {
			return err
		}
		return getJSON(txn, makeUserKey(id), &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by normalized email.
func (s *badgerUserDB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := s.getByIndex(ctx, makeEmailKey(email))
	return user, errors.Wrap(err, "getting user by email")
}

// GetUserByOAuthID retrieves a user by external identity.
func (s *badgerUserDB) GetUserByOAuthID(ctx context.Context, oauthID string) (*model.User, error) {
	if oauthID == "" {
		return nil, ErrNotFound
	}
	user, err := s.getByIndex(ctx, makeOAuthKey(oauthID))
	return user, errors.Wrap(err, "getting user by oauth id")
}

// GetUserByResetToken retrieves the user holding an unexpired reset token.
func (s *badgerUserDB) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	if tokenHash == "" {
		return nil, ErrNotFound
	}
	user, err := s.getByIndex(ctx, makeResetKey(tokenHash))
	if err != nil {
		return nil, errors.Wrap(err, "getting user by reset token")
	}
	// The index TTL is coarse; the record is authoritative.
	if !user.HasValidResetToken(tokenHash, now) {
		return nil, errors.Wrap(ErrNotFound, "getting user by reset token")
	}
	return user, nil
}

type badgerTaskDB struct {
	db *badger.DB
}

// Create stores a new task and indexes it under its owner.
func (s *badgerTaskDB) Create(ctx context.Context, task *model.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	err := s.db.Update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, makeTaskKey(task.ID)); err != nil {
			return err
		} else if exists {
			return errors.Wrapf(ErrDuplicate, "task %s", task.ID)
		}
		if err := txn.Set(makeOwnerKey(task.UserID, task.ID), nil); err != nil {
			return err
		}
		return setJSON(txn, makeTaskKey(task.ID), task)
	})
	return errors.Wrap(err, "creating task")
}

// Get retrieves a task by ID.
func (s *badgerTaskDB) Get(ctx context.Context, id string) (*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var task model.Task
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, makeTaskKey(id), &task)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "getting task %s", id)
	}
	return &task, nil
}

// Update stores the task's title, description and status. Owner and
// order keep their stored values, and task is refreshed with them.
func (s *badgerTaskDB) Update(ctx context.Context, task *model.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var stored model.Task
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, makeTaskKey(task.ID), &stored); err != nil {
			return err
		}
		stored.Title = task.Title
		stored.Description = task.Description
		stored.Status = task.Status
		stored.UpdatedAt = time.Now().UTC()
		return setJSON(txn, makeTaskKey(stored.ID), &stored)
	})
	if err != nil {
		return errors.Wrapf(err, "updating task %s", task.ID)
	}
	*task = stored
	return nil
}

// Delete removes the task and its owner index entry.
func (s *badgerTaskDB) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var old model.Task
		if err := getJSON(txn, makeTaskKey(id), &old); err != nil {
			return err
		}
		if err := txn.Delete(makeOwnerKey(old.UserID, old.ID)); err != nil {
			return err
		}
		return txn.Delete(makeTaskKey(id))
	})
	return errors.Wrapf(err, "deleting task %s", id)
}

func (s *badgerTaskDB) listByOwner(txn *badger.Txn, userID string) ([]*model.Task, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := makeOwnerPrefix(userID)
	tasks := make([]*model.Task, 0)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		taskID := string(it.Item().Key()[len(prefix):])

		var task model.Task
		if err := getJSON(txn, makeTaskKey(taskID), &task); err != nil {
			return nil, err
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

// ListTasksByOwner lists the owner's tasks sorted by order.
func (s *badgerTaskDB) ListTasksByOwner(ctx context.Context, userID string) ([]*model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tasks []*model.Task
	err := s.db.View(func(txn *badger.Txn) (err error) {
		tasks, err = s.listByOwner(txn, userID)
		return
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing tasks for %s", userID)
	}
	SortTasks(tasks)
	return tasks, nil
}

// MaxOrder returns the highest order among the owner's tasks.
func (s *badgerTaskDB) MaxOrder(ctx context.Context, userID string) (maxOrder int, ok bool, err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	err = s.db.View(func(txn *badger.Txn) error {
		tasks, err := s.listByOwner(txn, userID)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if !ok || task.Order > maxOrder {
				maxOrder, ok = task.Order, true
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, errors.Wrapf(err, "finding max order for %s", userID)
	}
	return
}

// UpdateTaskOrders applies every order in one transaction.
func (s *badgerTaskDB) UpdateTaskOrders(ctx context.Context, orders []model.TaskOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, o := range orders {
			var task model.Task
			if err := getJSON(txn, makeTaskKey(o.TaskID), &task); err != nil {
				return errors.Wrapf(err, "task %s", o.TaskID)
			}
			task.Order = o.Order
			task.UpdatedAt = now
			if err := setJSON(txn, makeTaskKey(task.ID), &task); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "updating task orders")
}
