// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth

import "errors"

// Sentinel errors shared between the service and repository implementations.
// Repositories wrap these with oops codes; callers test with errors.Is.
var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUser is returned when inserting a user whose email
	// is already registered.
	ErrDuplicateUser = errors.New("duplicate user")

	// ErrInvalidField is returned when a lookup or update names a field
	// that is not a recognized user attribute. This indicates a caller
	// bug, not a runtime condition.
	ErrInvalidField = errors.New("invalid field")

	// ErrTokenInvalid is returned when a reset token matches no user.
	ErrTokenInvalid = errors.New("invalid reset token")

	// ErrHashFormat is returned when a stored password hash cannot be
	// parsed. A corrupt hash is a data-integrity fault and is never
	// collapsed into a failed verification.
	ErrHashFormat = errors.New("malformed password hash")

	// ErrStorage is returned for underlying I/O failures in a repository.
	ErrStorage = errors.New("storage failure")
)
