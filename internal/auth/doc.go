// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package auth is the credential core of keyfold.
//
// # Domain Types
//
// User is the only stored entity. Sessions and reset tokens are not
// first-class records: each is an opaque, unguessable string carried in a
// nullable field on User, set and cleared exclusively by Service. This
// keeps the invariants local to one record: at most one live session id
// per user, and a reset token that is cleared in the same atomic update
// that redeems it.
//
// # Services
//
// Service coordinates the domain operations - registration, login
// validation, session lifecycle, and the reset-token flow - over injected
// UserRepository and PasswordHasher implementations. Construct it with
// NewService or NewServiceWithLogger; there are no package-level
// singletons.
//
// Repository implementations live in the postgres and memory subpackages.
package auth
