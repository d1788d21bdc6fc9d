package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput rejects malformed request values before they reach storage.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateUser signals that the username or phone is already registered.
	ErrDuplicateUser = errors.New("duplicate user")
	// ErrInvalidCredentials never says which part of the credentials was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTooManyAttempts signals a temporarily locked identifier.
	ErrTooManyAttempts = errors.New("too many failed attempts")
	// ErrWeakPassword rejects passwords that do not meet policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	ErrUserNotFound = errors.New("user not found")

	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")

	ErrNotMember           = errors.New("not a member of the group")
	ErrInsufficientRole    = errors.New("insufficient role")
	ErrGroupNotFound       = errors.New("group not found")
	ErrInvalidInviteCode   = errors.New("invalid invite code")
	ErrDuplicateMembership = errors.New("user is already a member of this group")

	ErrLiteratureNotFound     = errors.New("literature not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrStorageIO is matched by every *StorageError.
	ErrStorageIO = errors.New("storage io error")
)

// StorageError wraps unexpected persistence or storage collaborator failures.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err unless it is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageIO }
