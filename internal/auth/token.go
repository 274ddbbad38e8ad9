// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package auth

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/samber/oops"
)

// TokenBytes is the entropy of session ids and reset tokens.
// 32 bytes encode to 64 hex characters.
const TokenBytes = 32

// GenerateToken creates an unguessable opaque identifier, used for both
// session ids and password-reset tokens. The value is stored verbatim on
// the user record and handed to the client as-is.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("AUTH_TOKEN_GENERATE_FAILED").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}
