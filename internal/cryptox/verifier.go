// Package cryptox derives and checks password verifiers.
//
// A verifier is a one-way value stored instead of the password. Derivation is
// argon2id with a per-account random salt, so equal passwords produce equal
// verifiers only under the same salt and the stored value is useless for
// offline dictionary attacks across accounts.
package cryptox

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"

	"github.com/filedrop/filedrop/internal/common"
)

// argon2id parameters: 1 pass over 64 MiB with 4 lanes, 32-byte output.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	verifierLen  = 32

	// SaltLen is the size of per-account salts produced by NewSalt.
	SaltLen = 32
)

// NewSalt returns a fresh random per-account salt.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltLen)
}

// DeriveVerifier computes the argon2id verifier for a password under the
// given salt.
func DeriveVerifier(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, verifierLen)
}

// VerifierMatches compares a stored verifier against a candidate in constant
// time.
func VerifierMatches(verifier, candidate []byte) bool {
	return subtle.ConstantTimeCompare(verifier, candidate) == 1
}
