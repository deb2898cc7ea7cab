package users

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Password schemes.
const (
	SchemeSHA256 = "sha256"
	SchemeBcrypt = "bcrypt"
)

// Hash derives the stored hash and salt for password. The sha256 scheme
// hashes a random 16-byte salt followed by the password; bcrypt stores no
// separate salt.
func Hash(scheme, password string) (hash, salt string, err error) {
	if scheme == SchemeBcrypt {
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", "", fmt.Errorf("hash password: %w", err)
		}
		return string(b), "", nil
	}
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	return saltedSHA256(raw, password), hex.EncodeToString(raw), nil
}

// Verify checks password against a stored hash, detecting the scheme from
// the hash itself.
func Verify(hash, salt, password string) bool {
	if strings.HasPrefix(hash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	}
	raw, err := hex.DecodeString(salt)
	if err != nil || hash == "" {
		return false
	}
	got := saltedSHA256(raw, password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(hash))) == 1
}

func saltedSHA256(salt []byte, password string) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil))
}
