// Package postgres is a shopguard.UserProvider backed by PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yldrmabdullah/shopguard"
)

var _ shopguard.UserProvider = (*Store)(nil)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the store needs. A pgx.Tx satisfies it too.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes the users table.
type Store struct {
	db DB
}

// New wraps db.
func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects a pool to databaseURL and pings it.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_login    TIMESTAMPTZ
)`

// EnsureSchema creates the users table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const userColumns = `id, email, name, password_hash, is_active, created_at, last_login`

func (s *Store) GetUserByEmail(ctx context.Context, email string) (shopguard.UserRecord, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		return shopguard.UserRecord{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (shopguard.UserRecord, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return shopguard.UserRecord{}, shopguard.ErrUserNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return shopguard.UserRecord{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

const insertUserSQL = `INSERT INTO users (id, email, name, password_hash, is_active)
VALUES ($1, $2, $3, $4, TRUE)
RETURNING ` + userColumns

// CreateUser relies on the unique email index; a duplicate maps to
// shopguard.ErrAccountExists.
func (s *Store) CreateUser(ctx context.Context, in shopguard.CreateUserInput) (shopguard.UserRecord, error) {
	row := s.db.QueryRow(ctx, insertUserSQL, uuid.New(), in.Email, in.Name, in.PasswordHash)
	u, err := scanUser(row)
	if err != nil {
		return shopguard.UserRecord{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	return s.update(ctx, "update password hash", `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
}

func (s *Store) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	return s.update(ctx, "record login", `UPDATE users SET last_login = $2 WHERE id = $1`, userID, at.UTC())
}

// SetActive enables or disables an account.
func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	return s.update(ctx, "set active", `UPDATE users SET is_active = $2 WHERE id = $1`, userID, active)
}

func (s *Store) update(ctx context.Context, op, sql, userID string, arg any) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return shopguard.ErrUserNotFound
	}
	tag, err := s.db.Exec(ctx, sql, id, arg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return shopguard.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (shopguard.UserRecord, error) {
	var (
		u         shopguard.UserRecord
		id        uuid.UUID
		lastLogin *time.Time
	)
	if err := row.Scan(&id, &u.Email, &u.Name, &u.PasswordHash, &u.Active, &u.CreatedAt, &lastLogin); err != nil {
		return shopguard.UserRecord{}, mapError(err)
	}
	u.UserID = id.String()
	if lastLogin != nil {
		u.LastLogin = *lastLogin
	}
	return u, nil
}

// mapError translates driver errors into shopguard sentinels, keeping the
// original in the chain.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shopguard.ErrUserNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %w", shopguard.ErrAccountExists, err)
	}
	return err
}
