package database

import (
	"context"
	"database/sql"
	_ "embed"
	"log"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/tasklane/tasklane/internal/model"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresOptions configures the PostgreSQL connection pool.
type PostgresOptions struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration

	// ConnectAttempts bounds the startup retries. Zero means 5.
	ConnectAttempts int
}

// PostgresDB holds a connection pool to a PostgreSQL server.
type PostgresDB struct {
	DB *sql.DB

	users *postgresUserDB
	tasks *postgresTaskDB
}

// NewPostgresDB connects to PostgreSQL, retrying with exponential backoff
// while the server is unreachable, and ensures the schema exists.
func NewPostgresDB(ctx context.Context, opts PostgresOptions) (*PostgresDB, error) {
	if opts.URL == "" {
		return nil, errors.New("missing database URL")
	}
	db, err := sql.Open("postgres", opts.URL)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxIdleTime(opts.MaxIdleTime)

	attempts := opts.ConnectAttempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := 500 * time.Millisecond
	for i := 1; ; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			break
		}
		if i == attempts {
			db.Close()
			return nil, errors.Wrapf(err, "connecting to postgres after %d attempts", attempts)
		}
		log.Printf("Error connecting to postgres (attempt %d/%d): %v\n", i, attempts, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		}
		delay *= 2
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(migrateCtx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "applying schema")
	}

	return &PostgresDB{
		DB:    db,
		users: &postgresUserDB{db: db},
		tasks: &postgresTaskDB{db: db},
	}, nil
}

// Users returns the credential store.
func (db *PostgresDB) Users() UserDB {
	return db.users
}

// Tasks returns the task store.
func (db *PostgresDB) Tasks() TaskDB {
	return db.tasks
}

// Ping verifies the server is reachable.
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

// Close handles closing all connections to the database.
func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

func mapSQLError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return errors.Wrap(ErrDuplicate, pqErr.Constraint)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type postgresUserDB struct {
	db *sql.DB
}

const userColumns = `id, name, email, password_hash, oauth_id, reset_token_hash, reset_token_expiry, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u                                model.User
		passwordHash, oauthID, resetHash sql.NullString
		resetExpiry                      sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &passwordHash, &oauthID, &resetHash, &resetExpiry, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapSQLError(err)
	}
	u.PasswordHash = passwordHash.String
	u.OAuthID = oauthID.String
	u.ResetTokenHash = resetHash.String
	if resetExpiry.Valid {
		expiry := resetExpiry.Time
		u.ResetTokenExpiry = &expiry
	}
	return &u, nil
}

// Create registers a new user.
func (s *postgresUserDB) Create(ctx context.Context, u *model.User) error {
	query := `INSERT INTO users (id, name, email, password_hash, oauth_id, reset_token_hash, reset_token_expiry)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING created_at, updated_at`
	row := s.db.QueryRowContext(ctx, query,
		u.ID, u.Name, u.Email,
		nullString(u.PasswordHash), nullString(u.OAuthID), nullString(u.ResetTokenHash), u.ResetTokenExpiry,
	)
	err := row.Scan(&u.CreatedAt, &u.UpdatedAt)
	return errors.Wrap(mapSQLError(err), "creating user")
}

// Get retrieves a user by ID.
func (s *postgresUserDB) Get(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	return u, errors.Wrapf(err, "getting user %s", id)
}

// Update overwrites the stored user.
func (s *postgresUserDB) Update(ctx context.Context, u *model.User) error {
	query := `UPDATE users
			  SET name = $2, email = $3, password_hash = $4, oauth_id = $5,
			      reset_token_hash = $6, reset_token_expiry = $7, updated_at = now()
			  WHERE id = $1
			  RETURNING updated_at`
	row := s.db.QueryRowContext(ctx, query,
		u.ID, u.Name, u.Email,
		nullString(u.PasswordHash), nullString(u.OAuthID), nullString(u.ResetTokenHash), u.ResetTokenExpiry,
	)
	err := row.Scan(&u.UpdatedAt)
	return errors.Wrapf(mapSQLError(err), "updating user %s", u.ID)
}

// Delete removes a user.
func (s *postgresUserDB) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(mapSQLError(err), "deleting user %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "deleting user %s", id)
	}
	return nil
}

// GetUserByEmail retrieves a user by normalized email.
func (s *postgresUserDB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	return u, errors.Wrap(err, "getting user by email")
}

// GetUserByOAuthID retrieves a user by external identity.
func (s *postgresUserDB) GetUserByOAuthID(ctx context.Context, oauthID string) (*model.User, error) {
	if oauthID == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE oauth_id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, oauthID))
	return u, errors.Wrap(err, "getting user by oauth id")
}

// GetUserByResetToken retrieves the user holding an unexpired reset token.
func (s *postgresUserDB) GetUserByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error) {
	if tokenHash == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_token_hash = $1 AND reset_token_expiry > $2`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, tokenHash, now))
	return u, errors.Wrap(err, "getting user by reset token")
}

// ConsumeResetToken sets passwordHash on the user holding the unexpired
// reset token and clears the token in a single statement, so only one
// caller can consume it.
func (s *postgresUserDB) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*model.User, error) {
	if tokenHash == "" {
		return nil, ErrNotFound
	}
	query := `UPDATE users
			  SET password_hash = $2, reset_token_hash = NULL, reset_token_expiry = NULL, updated_at = now()
			  WHERE reset_token_hash = $1 AND reset_token_expiry > $3
			  RETURNING ` + userColumns
	u, err := scanUser(s.db.QueryRowContext(ctx, query, tokenHash, passwordHash, now))
	return u, errors.Wrap(err, "consuming reset token")
}

type postgresTaskDB struct {
	db *sql.DB
}

const taskColumns = `id, user_id, title, description, status, sort_order, created_at, updated_at`

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Status, &t.Order, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapSQLError(err)
	}
	return &t, nil
}

// Create stores a new task.
func (s *postgresTaskDB) Create(ctx context.Context, t *model.Task) error {
	query := `INSERT INTO tasks (id, user_id, title, description, status, sort_order)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING created_at, updated_at`
	row := s.db.QueryRowContext(ctx, query, t.ID, t.UserID, t.Title, t.Description, t.Status, t.Order)
	err := row.Scan(&t.CreatedAt, &t.UpdatedAt)
	return errors.Wrap(mapSQLError(err), "creating task")
}

// Get retrieves a task by ID.
func (s *postgresTaskDB) Get(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	return t, errors.Wrapf(err, "getting task %s", id)
}

// Update stores the task's title, description and status. Owner and
// order keep their stored values, and t is refreshed with them.
func (s *postgresTaskDB) Update(ctx context.Context, t *model.Task) error {
	query := `UPDATE tasks
			  SET title = $2, description = $3, status = $4, updated_at = now()
			  WHERE id = $1
			  RETURNING user_id, sort_order, created_at, updated_at`
	row := s.db.QueryRowContext(ctx, query, t.ID, t.Title, t.Description, t.Status)
	err := row.Scan(&t.UserID, &t.Order, &t.CreatedAt, &t.UpdatedAt)
	return errors.Wrapf(mapSQLError(err), "updating task %s", t.ID)
}

// Delete removes a task.
func (s *postgresTaskDB) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return errors.Wrapf(mapSQLError(err), "deleting task %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "deleting task %s", id)
	}
	return nil
}

// ListTasksByOwner lists the owner's tasks sorted by order.
func (s *postgresTaskDB) ListTasksByOwner(ctx context.Context, userID string) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 ORDER BY sort_order, created_at, id`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing tasks for %s", userID)
	}
	defer rows.Close()

	tasks := make([]*model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "listing tasks for %s", userID)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "listing tasks for %s", userID)
	}
	return tasks, nil
}

// MaxOrder returns the highest order among the owner's tasks.
func (s *postgresTaskDB) MaxOrder(ctx context.Context, userID string) (int, bool, error) {
	var maxOrder sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(sort_order) FROM tasks WHERE user_id = $1`, userID).Scan(&maxOrder)
	if err != nil {
		return 0, false, errors.Wrapf(err, "finding max order for %s", userID)
	}
	return int(maxOrder.Int64), maxOrder.Valid, nil
}

// UpdateTaskOrders applies every order in one transaction.
func (s *postgresTaskDB) UpdateTaskOrders(ctx context.Context, orders []model.TaskOrder) error {
	if len(orders) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning reorder")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE tasks SET sort_order = $2, updated_at = now() WHERE id = $1`)
	if err != nil {
		return errors.Wrap(err, "preparing reorder")
	}
	defer stmt.Close()

	for _, o := range orders {
		res, err := stmt.ExecContext(ctx, o.TaskID, o.Order)
		if err != nil {
			return errors.Wrapf(mapSQLError(err), "reordering task %s", o.TaskID)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errors.Wrapf(ErrNotFound, "reordering task %s", o.TaskID)
		}
	}
	return errors.Wrap(tx.Commit(), "committing reorder")
}
