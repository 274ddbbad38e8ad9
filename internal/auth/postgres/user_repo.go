// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package postgres implements auth.UserRepository using PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keyfold/keyfold/internal/auth"
)

// pool is the subset of pgxpool.Pool the repository uses.
// pgxmock.PgxPoolIface satisfies it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Fields accepted by Update. The id is repository-assigned and immutable.
var updatableFields = map[string]struct{}{
	auth.FieldEmail:          {},
	auth.FieldHashedPassword: {},
	auth.FieldSessionID:      {},
	auth.FieldResetToken:     {},
}

// UserRepository implements auth.UserRepository using PostgreSQL.
//
// Every write is a single statement, so conflicting writes to the same
// record serialize on row-level locking inside the database.
type UserRepository struct {
	pool pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Add inserts a new user record with a repository-assigned ULID.
func (r *UserRepository) Add(ctx context.Context, email, hashedPassword string) (*auth.User, error) {
	now := time.Now().UTC()
	user := &auth.User{
		ID:             ulid.Make(),
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, hashed_password, session_id, reset_token, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, NULL, $4, $5)
	`,
		user.ID.String(),
		user.Email,
		user.HashedPassword,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_DUPLICATE").
				With("email", email).
				Wrap(auth.ErrDuplicateUser)
		}
		return nil, storageErr("insert user", err)
	}
	return user, nil
}

// FindBy returns the unique user whose fields match all given criteria.
func (r *UserRepository) FindBy(ctx context.Context, criteria map[string]any) (*auth.User, error) {
	if len(criteria) == 0 {
		return nil, oops.Code("USER_INVALID_FIELD").
			Wrapf(auth.ErrInvalidField, "at least one criterion is required")
	}

	// Deterministic clause order keeps queries stable for tests and logs.
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		if !auth.ValidUserField(k) {
			return nil, oops.Code("USER_INVALID_FIELD").
				With("field", k).
				Wrapf(auth.ErrInvalidField, "unknown user field %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		clauses []string
		args    []any
	)
	for _, k := range keys {
		v := criteria[k]
		if v == nil {
			clauses = append(clauses, k+" IS NULL")
			continue
		}
		args = append(args, sqlValue(v))
		clauses = append(clauses, fmt.Sprintf("%s = $%d", k, len(args)))
	}

	query := `
		SELECT id, email, hashed_password, session_id, reset_token, created_at, updated_at
		FROM users
		WHERE ` + strings.Join(clauses, " AND ")

	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("find user", err)
	}
	return user, nil
}

// Update applies all given field changes as one atomic UPDATE.
func (r *UserRepository) Update(ctx context.Context, id ulid.ULID, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(changes))
	for k := range changes {
		if _, ok := updatableFields[k]; !ok {
			return oops.Code("USER_INVALID_FIELD").
				With("field", k).
				Wrapf(auth.ErrInvalidField, "unknown or immutable user field %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []any{id.String()}
	var assignments []string
	for _, k := range keys {
		v := changes[k]
		if v == nil {
			assignments = append(assignments, k+" = NULL")
			continue
		}
		args = append(args, sqlValue(v))
		assignments = append(assignments, fmt.Sprintf("%s = $%d", k, len(args)))
	}
	args = append(args, time.Now().UTC())
	assignments = append(assignments, fmt.Sprintf("updated_at = $%d", len(args)))

	query := "UPDATE users SET " + strings.Join(assignments, ", ") + " WHERE id = $1"

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return storageErr("update user", err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// sqlValue converts domain values to their column representation.
func sqlValue(v any) any {
	if id, ok := v.(ulid.ULID); ok {
		return id.String()
	}
	return v
}

// storageErr wraps an underlying database failure so callers can test for
// auth.ErrStorage while the driver error stays in the chain.
func storageErr(operation string, err error) error {
	return oops.Code("STORAGE_FAILED").
		With("operation", operation).
		Wrap(fmt.Errorf("%w: %w", auth.ErrStorage, err))
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr          string
		email          string
		hashedPassword string
		sessionID      *string
		resetToken     *string
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(&idStr, &email, &hashedPassword, &sessionID, &resetToken, &createdAt, &updatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("id", idStr).
			Wrap(err)
	}

	return &auth.User{
		ID:             id,
		Email:          email,
		HashedPassword: hashedPassword,
		SessionID:      sessionID,
		ResetToken:     resetToken,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
