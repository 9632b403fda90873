// Copyright 2025 The go-taskhive Authors
// This file is part of the go-taskhive library.
//
// The go-taskhive library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-taskhive library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-taskhive library. If not, see <http://www.gnu.org/licenses/>.

// Package crypto provides the password hashing used to protect queues.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// StandardScryptN and StandardScryptP are suitable for long-lived
	// secrets at rest.
	StandardScryptN = 1 << 18
	StandardScryptP = 1

	// LightScryptN and LightScryptP are the server default: queue
	// passwords are verified on every uncached API request, so the
	// derivation must stay in the tens of milliseconds.
	LightScryptN = 1 << 12
	LightScryptP = 6

	scryptR     = 8
	scryptDKLen = 32
	saltLen     = 32
)

// HashPassword derives a scrypt digest of the password and encodes it
// together with its parameters and salt, so stored hashes stay verifiable
// across parameter changes. The output looks like
//
//	$scrypt$n=4096,r=8,p=6$<salt>$<digest>
//
// with salt and digest in unpadded base64.
func HashPassword(password string, n, p int) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	dk, err := scrypt.Key([]byte(password), salt, n, scryptR, p, scryptDKLen)
	if err != nil {
		return "", err
	}
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$scrypt$n=%d,r=%d,p=%d$%s$%s",
		n, scryptR, p, enc.EncodeToString(salt), enc.EncodeToString(dk)), nil
}

// VerifyPassword reports whether the password matches a stored hash. Any
// malformed hash verifies as false.
func VerifyPassword(password, stored string) bool {
	n, r, p, salt, want, err := parseHash(stored)
	if err != nil {
		return false
	}
	dk, err := scrypt.Key([]byte(password), salt, n, r, p, len(want))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(dk, want) == 1
}

func parseHash(stored string) (n, r, p int, salt, dk []byte, err error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "scrypt" {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed password hash")
	}
	if _, err := fmt.Sscanf(parts[2], "n=%d,r=%d,p=%d", &n, &r, &p); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed scrypt parameters: %v", err)
	}
	if n < 2 || r < 1 || p < 1 {
		return 0, 0, 0, nil, nil, fmt.Errorf("invalid scrypt parameters")
	}
	enc := base64.RawStdEncoding
	if salt, err = enc.DecodeString(parts[3]); err != nil {
		return 0, 0, 0, nil, nil, err
	}
	if dk, err = enc.DecodeString(parts[4]); err != nil {
		return 0, 0, 0, nil, nil, err
	}
	if len(dk) == 0 {
		return 0, 0, 0, nil, nil, fmt.Errorf("empty digest")
	}
	return n, r, p, salt, dk, nil
}
