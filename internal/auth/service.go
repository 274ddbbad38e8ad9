// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service orchestrates registration, login validation, session lifecycle,
// and reset-token lifecycle over an injected repository and hasher.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewService creates a new Service.
func NewService(users UserRepository, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(users, hasher, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("logger is required")
	}
	return &Service{users: users, hasher: hasher, logger: logger}, nil
}

// Register creates a user with a salted hash of the password. The plaintext
// is never stored. Email and password shape are accepted as-is; form
// validation belongs to the transport layer.
// Returns an error wrapping ErrDuplicateUser if the email is taken.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := s.users.Add(ctx, email, hashed)
	if err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			return nil, oops.Code("AUTH_USER_EXISTS").
				With("email", email).
				Wrap(err)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "add user").
			Wrap(err)
	}

	s.logger.Info("user registered", "user_id", user.ID.String())
	return user, nil
}

// ValidateLogin reports whether the email/password pair identifies a user.
// An unknown email and a wrong password both yield (false, nil); the two
// cases are indistinguishable to the caller so error shape cannot be used
// for user enumeration. A dummy verification runs on lookup miss to keep
// response time uniform as well.
//
// Storage faults and corrupt stored hashes do surface as errors: a hash
// that cannot be parsed is a data-integrity fault, never a quiet false.
func (s *Service) ValidateLogin(ctx context.Context, email, password string) (bool, error) {
	targetHash := dummyPasswordHash
	userExists := false

	user, err := s.users.FindBy(ctx, map[string]any{FieldEmail: email})
	switch {
	case err == nil:
		targetHash = user.HashedPassword
		userExists = true
	case errors.Is(err, ErrNotFound):
		// fall through to dummy verification
	default:
		return false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	valid, err := s.hasher.Verify(password, targetHash)
	if err != nil {
		if !userExists {
			// The dummy hash round-trip failed; the outcome is still a plain denial.
			return false, nil
		}
		return false, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return userExists && valid, nil
}

// CreateSession stores a fresh opaque session id on the user identified by
// email and returns it, replacing any prior session id. Password checking
// is the caller's responsibility via ValidateLogin.
// Returns an error wrapping ErrNotFound if the email does not resolve.
func (s *Service) CreateSession(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindBy(ctx, map[string]any{FieldEmail: email})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("AUTH_USER_NOT_FOUND").
				With("operation", "create session").
				Wrap(err)
		}
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	sessionID, err := GenerateToken()
	if err != nil {
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "generate session id").
			Wrap(err)
	}

	if err := s.users.Update(ctx, user.ID, map[string]any{FieldSessionID: sessionID}); err != nil {
		return "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "store session id").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.Info("session created", "user_id", user.ID.String())
	return sessionID, nil
}

// UserBySessionID resolves a session id to its user. A missing or empty
// session id is an expected runtime condition and yields (nil, nil),
// never an error.
func (s *Service) UserBySessionID(ctx context.Context, sessionID string) (*User, error) {
	if sessionID == "" {
		return nil, nil
	}

	user, err := s.users.FindBy(ctx, map[string]any{FieldSessionID: sessionID})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, oops.Code("AUTH_SESSION_LOOKUP_FAILED").
			With("operation", "find user by session id").
			Wrap(err)
	}
	return user, nil
}

// DestroySession clears the session id on the identified user. An unknown
// user id is a no-op: logout is only routed here after resolving a valid
// session, so a vanished record is not worth an error.
func (s *Service) DestroySession(ctx context.Context, userID ulid.ULID) error {
	err := s.users.Update(ctx, userID, map[string]any{FieldSessionID: nil})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("destroy session for unknown user", "user_id", userID.String())
			return nil
		}
		return oops.Code("AUTH_SESSION_DESTROY_FAILED").
			With("operation", "clear session id").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.logger.Info("session destroyed", "user_id", userID.String())
	return nil
}

// ResetPasswordToken stores a fresh opaque reset token on the user
// identified by email and returns it. The transport layer maps the
// not-found failure to a non-specific denial so registered emails
// cannot be probed.
func (s *Service) ResetPasswordToken(ctx context.Context, email string) (string, error) {
	user, err := s.users.FindBy(ctx, map[string]any{FieldEmail: email})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("RESET_USER_NOT_FOUND").
				With("operation", "request reset token").
				Wrap(err)
		}
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token, err := GenerateToken()
	if err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	if err := s.users.Update(ctx, user.ID, map[string]any{FieldResetToken: token}); err != nil {
		return "", oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store reset token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.Info("reset token issued", "user_id", user.ID.String())
	return token, nil
}

// UpdatePassword redeems a reset token: the matching user gets a hash of
// the new password, and the token is cleared in the same atomic update so
// it cannot be redeemed twice.
// Returns an error wrapping ErrTokenInvalid for stale or forged tokens.
func (s *Service) UpdatePassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrTokenInvalid)
	}

	user, err := s.users.FindBy(ctx, map[string]any{FieldResetToken: token})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("RESET_TOKEN_INVALID").Wrap(ErrTokenInvalid)
		}
		return oops.Code("RESET_UPDATE_FAILED").
			With("operation", "find user by reset token").
			Wrap(err)
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_UPDATE_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	// Single update: replacing the hash and consuming the token must not
	// be separable, or a concurrent redemption could reuse the token.
	changes := map[string]any{
		FieldHashedPassword: hashed,
		FieldResetToken:     nil,
	}
	if err := s.users.Update(ctx, user.ID, changes); err != nil {
		return oops.Code("RESET_UPDATE_FAILED").
			With("operation", "store new password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	s.logger.Info("password updated", "user_id", user.ID.String())
	return nil
}
