// Package password hashes and verifies argon2id password digests.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// Params are the argon2id cost parameters encoded into every hash.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultParams follow the OWASP argon2id baseline.
var DefaultParams = Params{Time: 3, Memory: 64 * 1024, Threads: 2, KeyLen: 32, SaltLen: 16}

var (
	errInvalidHash = errors.New("invalid password hash")
	// ErrTooShort is returned by CheckPolicy.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong guards argon2 against oversized input.
	ErrTooLong = errors.New("password too long")
)

const maxPasswordBytes = 1024

var (
	dummyOnce sync.Once
	dummyHash string
)

// Hash returns an argon2id hash string with DefaultParams.
func Hash(password string) (string, error) {
	return HashWithParams(password, DefaultParams)
}

// HashWithParams returns an argon2id hash string including parameters and salt.
func HashWithParams(password string, p Params) (string, error) {
	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	sum := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify checks a password against the encoded argon2id hash.
func Verify(password, hash string) (bool, error) {
	p, salt, expected, err := decode(hash)
	if err != nil {
		return false, err
	}
	actual := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(actual, expected) == 1, nil
}

// VerifyDummy spends the same work as Verify against a throwaway hash and always
// reports false. It is used when the account does not exist.
func VerifyDummy(password string) bool {
	dummyOnce.Do(func() {
		h, err := Hash("dummy-password-never-matches")
		if err != nil {
			panic(err)
		}
		dummyHash = h
	})
	_, _ = Verify(password, dummyHash)
	return false
}

// CheckPolicy enforces length limits on new passwords.
func CheckPolicy(password string, minLength int) error {
	if utf8.RuneCountInString(password) < minLength {
		return ErrTooShort
	}
	if len(password) > maxPasswordBytes {
		return ErrTooLong
	}
	return nil
}

func decode(hash string) (Params, []byte, []byte, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Params{}, nil, nil, errInvalidHash
	}

	version, err := parseVersion(parts[2])
	if err != nil || version != argon2.Version {
		return Params{}, nil, nil, errInvalidHash
	}

	p, err := parseParams(parts[3])
	if err != nil {
		return Params{}, nil, nil, errInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, errInvalidHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return Params{}, nil, nil, errInvalidHash
	}
	p.SaltLen = len(salt)
	p.KeyLen = uint32(len(expected))
	return p, salt, expected, nil
}

func parseVersion(value string) (int, error) {
	if !strings.HasPrefix(value, "v=") {
		return 0, errInvalidHash
	}
	return strconv.Atoi(strings.TrimPrefix(value, "v="))
}

func parseParams(value string) (Params, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return Params{}, errInvalidHash
	}

	mem, err := parseUint32Param(parts[0], "m=")
	if err != nil {
		return Params{}, err
	}
	timeCost, err := parseUint32Param(parts[1], "t=")
	if err != nil {
		return Params{}, err
	}
	threads, err := parseUint32Param(parts[2], "p=")
	if err != nil || threads == 0 || threads > 255 {
		return Params{}, errInvalidHash
	}
	return Params{Time: timeCost, Memory: mem, Threads: uint8(threads)}, nil
}

func parseUint32Param(value, prefix string) (uint32, error) {
	if !strings.HasPrefix(value, prefix) {
		return 0, errInvalidHash
	}
	parsed, err := strconv.ParseUint(strings.TrimPrefix(value, prefix), 10, 32)
	if err != nil {
		return 0, errInvalidHash
	}
	return uint32(parsed), nil
}
