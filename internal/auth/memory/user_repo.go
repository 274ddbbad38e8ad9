// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package memory implements auth.UserRepository in process memory.
//
// It backs keyfold's tests and the --in-memory development mode; the
// serialization guarantees match the postgres implementation (a mutex
// instead of row-level locking).
package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keyfold/keyfold/internal/auth"
)

// UserRepository implements auth.UserRepository with a mutex-guarded map.
type UserRepository struct {
	mu    sync.RWMutex
	users map[ulid.ULID]*auth.User
}

// NewUserRepository creates an empty UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[ulid.ULID]*auth.User)}
}

// Add inserts a new user record.
func (r *UserRepository) Add(_ context.Context, email, hashedPassword string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return nil, oops.Code("USER_DUPLICATE").
				With("email", email).
				Wrap(auth.ErrDuplicateUser)
		}
	}

	user := &auth.User{
		ID:             ulid.Make(),
		Email:          email,
		HashedPassword: hashedPassword,
	}
	r.users[user.ID] = user

	clone := *user
	return &clone, nil
}

// FindBy returns the user matching all given criteria.
func (r *UserRepository) FindBy(_ context.Context, criteria map[string]any) (*auth.User, error) {
	if len(criteria) == 0 {
		return nil, oops.Code("USER_INVALID_FIELD").
			Wrapf(auth.ErrInvalidField, "at least one criterion is required")
	}
	for k := range criteria {
		if !auth.ValidUserField(k) {
			return nil, oops.Code("USER_INVALID_FIELD").
				With("field", k).
				Wrapf(auth.ErrInvalidField, "unknown user field %q", k)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if matches(u, criteria) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
}

// Update applies all given field changes atomically under the lock.
func (r *UserRepository) Update(_ context.Context, id ulid.ULID, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}

	// Validate every field before mutating anything so a bad change set
	// leaves the record untouched.
	for k := range changes {
		switch k {
		case auth.FieldEmail, auth.FieldHashedPassword, auth.FieldSessionID, auth.FieldResetToken:
		default:
			return oops.Code("USER_INVALID_FIELD").
				With("field", k).
				Wrapf(auth.ErrInvalidField, "unknown or immutable user field %q", k)
		}
	}

	for k, v := range changes {
		switch k {
		case auth.FieldEmail:
			user.Email = v.(string)
		case auth.FieldHashedPassword:
			user.HashedPassword = v.(string)
		case auth.FieldSessionID:
			user.SessionID = optString(v)
		case auth.FieldResetToken:
			user.ResetToken = optString(v)
		}
	}
	return nil
}

func matches(u *auth.User, criteria map[string]any) bool {
	for k, v := range criteria {
		switch k {
		case auth.FieldID:
			id, ok := v.(ulid.ULID)
			if sv, isStr := v.(string); isStr {
				parsed, err := ulid.Parse(sv)
				if err != nil {
					return false
				}
				id, ok = parsed, true
			}
			if !ok || u.ID != id {
				return false
			}
		case auth.FieldEmail:
			if v != u.Email {
				return false
			}
		case auth.FieldHashedPassword:
			if v != u.HashedPassword {
				return false
			}
		case auth.FieldSessionID:
			if !optEqual(u.SessionID, v) {
				return false
			}
		case auth.FieldResetToken:
			if !optEqual(u.ResetToken, v) {
				return false
			}
		}
	}
	return true
}

func optString(v any) *string {
	if v == nil {
		return nil
	}
	s := v.(string)
	return &s
}

func optEqual(field *string, v any) bool {
	if v == nil {
		return field == nil
	}
	return field != nil && *field == v
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
