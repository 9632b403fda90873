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

package crypto

import (
	"strings"
	"testing"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2", LightScryptN, LightScryptP)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if !strings.HasPrefix(hash, "$scrypt$n=4096,r=8,p=6$") {
		t.Fatalf("unexpected hash shape: %s", hash)
	}
	if !VerifyPassword("hunter2", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("hunter3", hash) {
		t.Error("wrong password accepted")
	}
	if VerifyPassword("", hash) {
		t.Error("empty password accepted")
	}
}

func TestPasswordSalting(t *testing.T) {
	h1, err := HashPassword("same", LightScryptN, LightScryptP)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	h2, err := HashPassword("same", LightScryptN, LightScryptP)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password are identical")
	}
	if !VerifyPassword("same", h1) || !VerifyPassword("same", h2) {
		t.Error("salted hashes failed to verify")
	}
}

func TestPasswordMalformedHash(t *testing.T) {
	bad := []string{
		"",
		"plaintext",
		"$scrypt$n=4096,r=8,p=6$onlysalt",
		"$scrypt$n=4096,r=8,p=6$!!$!!",
		"$pbkdf2$n=4096,r=8,p=6$c2FsdA$ZGln",
		"$scrypt$n=0,r=8,p=6$c2FsdA$ZGln",
		"$scrypt$garbage$c2FsdA$ZGln",
	}
	for _, hash := range bad {
		if VerifyPassword("whatever", hash) {
			t.Errorf("malformed hash verified: %q", hash)
		}
	}
}
