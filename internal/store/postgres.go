package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abarbosa/pontosledger/internal/common"
	"github.com/abarbosa/pontosledger/internal/models"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint conflicts.
const uniqueViolation = "23505"

// Store provides Postgres-backed persistence for accounts, ledger entries,
// and the registration whitelist.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database, verifies the connection, and applies
// the idempotent schema bootstrap.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying connection pool for transaction management.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			role TEXT NOT NULL DEFAULT 'colaborador',
			total_points BIGINT NOT NULL DEFAULT 0,
			quota_total BIGINT NOT NULL DEFAULT 0,
			quota_remaining BIGINT NOT NULL DEFAULT 0,
			quota_expires_at TIMESTAMPTZ,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS points_entries (
			id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			user_name TEXT NOT NULL,
			amount BIGINT NOT NULL,
			type TEXT NOT NULL,
			is_quota BOOLEAN NOT NULL DEFAULT FALSE,
			occurred_at TIMESTAMPTZ NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS points_entries_user_idx ON points_entries (user_id, occurred_at DESC);`,
		`CREATE TABLE IF NOT EXISTS whitelisted_emails (
			email TEXT PRIMARY KEY
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

const userColumns = `id, name, email, role, total_points, quota_total, quota_remaining, quota_expires_at, password_hash, created_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.TotalPoints,
		&u.Quota.Total, &u.Quota.Remaining, &u.Quota.ExpiresAt, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, common.ErrNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

// GetUser fetches an account by id.
func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetUserByEmail fetches an account by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// ListUsers returns every account, ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUser inserts a new account row. A duplicate email yields
// common.ErrAlreadyExists.
func (s *Store) CreateUser(ctx context.Context, u models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, role, total_points, quota_total, quota_remaining, quota_expires_at, password_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Name, u.Email, u.Role, u.TotalPoints,
		u.Quota.Total, u.Quota.Remaining, u.Quota.ExpiresAt, u.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UpdateUserName updates an account's display name.
func (s *Store) UpdateUserName(ctx context.Context, id, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// UpdateUserNameRole updates an account's display name and role.
func (s *Store) UpdateUserNameRole(ctx context.Context, id, name string, role models.Role) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET name = $1, role = $2 WHERE id = $3`, name, role, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

const entryColumns = `id, user_id, user_name, amount, type, is_quota, occurred_at, description`

func scanEntries(rows pgx.Rows) ([]models.PointsEntry, error) {
	defer rows.Close()
	var entries []models.PointsEntry
	for rows.Next() {
		var e models.PointsEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.UserName, &e.Amount, &e.Type,
			&e.IsQuota, &e.OccurredAt, &e.Description); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListEntries returns the full ledger, newest first.
func (s *Store) ListEntries(ctx context.Context) ([]models.PointsEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM points_entries ORDER BY occurred_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ListEntriesForUser returns one account's ledger entries, newest first.
func (s *Store) ListEntriesForUser(ctx context.Context, userID string) ([]models.PointsEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM points_entries WHERE user_id = $1 ORDER BY occurred_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// WhitelistContains reports whether email is pre-approved for registration.
func (s *Store) WhitelistContains(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM whitelisted_emails WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
