package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Stored digests depend on all of them except the key
// length, which CheckPassword reads from the digest.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLength   = 16
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrMalformedHash   = errors.New("malformed password hash")
)

// HashPassword returns base64(argon2id(password, salt)) + ":" + base64(salt)
// for a fresh random salt.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return encodeHash(argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen), salt), nil
}

// CheckPassword compares a password with its digest in constant time.
func CheckPassword(password, hash string) error {
	digest, salt, err := decodeHash(hash)
	if err != nil {
		return err
	}
	candidate := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, uint32(len(digest)))
	if subtle.ConstantTimeCompare(digest, candidate) != 1 {
		return ErrInvalidPassword
	}
	return nil
}

func encodeHash(digest, salt []byte) string {
	return base64.StdEncoding.EncodeToString(digest) + ":" + base64.StdEncoding.EncodeToString(salt)
}

func decodeHash(hash string) (digest, salt []byte, err error) {
	encodedDigest, encodedSalt, ok := strings.Cut(hash, ":")
	if !ok {
		return nil, nil, ErrMalformedHash
	}
	digest, err = base64.StdEncoding.DecodeString(encodedDigest)
	if err != nil || len(digest) == 0 {
		return nil, nil, ErrMalformedHash
	}
	salt, err = base64.StdEncoding.DecodeString(encodedSalt)
	if err != nil || len(salt) == 0 {
		return nil, nil, ErrMalformedHash
	}
	return digest, salt, nil
}
