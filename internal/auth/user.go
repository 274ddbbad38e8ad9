// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Field names recognized by UserRepository lookups and updates.
// Any other name is rejected with ErrInvalidField.
const (
	FieldID             = "id"
	FieldEmail          = "email"
	FieldHashedPassword = "hashed_password"
	FieldSessionID      = "session_id"
	FieldResetToken     = "reset_token"
)

var userFields = map[string]struct{}{
	FieldID:             {},
	FieldEmail:          {},
	FieldHashedPassword: {},
	FieldSessionID:      {},
	FieldResetToken:     {},
}

// ValidUserField reports whether name is a recognized user attribute.
func ValidUserField(name string) bool {
	_, ok := userFields[name]
	return ok
}

// User is the identity record owned by the credential core.
//
// SessionID and ResetToken are nil while no session is active and no reset
// is pending. Both are set and cleared only by the Service; at most one
// live session id exists per user at a time.
type User struct {
	ID             ulid.ULID
	Email          string
	HashedPassword string
	SessionID      *string
	ResetToken     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserRepository manages user persistence.
//
// Lookups match all given criteria exactly (conjunction). Updates apply all
// given changes as one atomic operation; conflicting writes to the same
// record must not interleave.
type UserRepository interface {
	// Add inserts a new user record. The insert is atomic: on failure no
	// partial record is left behind.
	// Returns ErrDuplicateUser if the email is already registered, or an
	// error wrapping ErrStorage on I/O failure.
	Add(ctx context.Context, email, hashedPassword string) (*User, error)

	// FindBy returns the unique user matching every given criterion.
	// Criteria keys must be recognized field names (ErrInvalidField
	// otherwise); a value of nil matches a cleared nullable field.
	// Returns ErrNotFound when nothing matches.
	FindBy(ctx context.Context, criteria map[string]any) (*User, error)

	// Update applies all given field changes to the identified record as
	// a single atomic operation. A nil value clears a nullable field.
	// Empty changes succeed without touching storage.
	// Returns ErrNotFound if the id does not exist and ErrInvalidField
	// for unknown field names.
	Update(ctx context.Context, id ulid.ULID, changes map[string]any) error
}
