package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBinding indicates the principal has no configured repository.
	ErrNoBinding = errors.New("no repository configured")
	// ErrInvalidPrincipal indicates an invalid principal identifier.
	ErrInvalidPrincipal = errors.New("invalid principal")
	// ErrDocumentNotFound indicates a requested document could not be found.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidDocumentName indicates an unsafe or malformed document name.
	ErrInvalidDocumentName = errors.New("invalid document name")
	// ErrEmptyDescription indicates a replace request without a description.
	ErrEmptyDescription = errors.New("change description is required")
	// ErrLockNotHeld indicates an unlock of a path that is not locked.
	ErrLockNotHeld = errors.New("document is not locked")
	// ErrNotLockOwner indicates the principal may not release the lock.
	ErrNotLockOwner = errors.New("lock is held by another user")
	// ErrAdminOnly indicates an operation restricted to administrators.
	ErrAdminOnly = errors.New("operation requires admin rights")
	// ErrInvalidRemoteURL indicates a repository URL that cannot be used.
	ErrInvalidRemoteURL = errors.New("invalid repository URL")
	// ErrWorkingCopyMissing indicates a binding whose local clone is gone.
	ErrWorkingCopyMissing = errors.New("working copy missing")
)

// ConfigurationError indicates setup could not configure the repository:
// an unclassifiable remote, missing credentials, or a broken working copy.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// LockConflictError indicates the path is locked by a different principal.
type LockConflictError struct {
	Path  string
	Owner string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("%s is locked by %s", e.Path, e.Owner)
}

// TransportError indicates a network or authentication failure against the
// remote. Detail is truncated remote output, never the raw stream.
type TransportError struct {
	Op     string
	Detail string
}

func (e *TransportError) Error() string {
	if e.Detail == "" {
		return e.Op + ": transport failure"
	}
	return fmt.Sprintf("%s: transport failure: %s", e.Op, e.Detail)
}

// SyncBlockedError indicates local and remote history diverged and could not
// be reconciled automatically. A stash or aborted rebase is left behind.
type SyncBlockedError struct {
	Diagnostic string
}

func (e *SyncBlockedError) Error() string {
	return "sync blocked: " + e.Diagnostic
}

// IntegrityError indicates an uploaded artifact failed integrity checks.
type IntegrityError struct {
	Reason string
	Size   int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: %s (size %d)", e.Reason, e.Size)
}

// PushRejectedError indicates the remote refused pushed commits.
type PushRejectedError struct {
	Detail string
}

func (e *PushRejectedError) Error() string {
	return "push rejected: " + e.Detail
}
