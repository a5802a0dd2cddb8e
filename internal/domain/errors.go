package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live attempt exists for an id.
	ErrSessionNotFound = errors.New("test session not found")
	// ErrTestNotFound indicates the test definition could not be loaded.
	ErrTestNotFound = errors.New("test not found")
	// ErrAccessDenied is returned when the user's plan does not cover the test.
	ErrAccessDenied = errors.New("access to test denied")
	// ErrUnauthorized signals an invalid or expired auth token. Never retried.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidDefinition wraps structural problems in a test definition.
	ErrInvalidDefinition = errors.New("invalid test definition")
	// ErrSessionCompleted is returned when an attempt has already been submitted.
	ErrSessionCompleted = errors.New("test session already completed")
	// ErrCorruptBackup marks a backup that cannot be restored against its definition.
	ErrCorruptBackup = errors.New("corrupt session backup")
	// ErrStorageUnavailable indicates the durable backup store could not be reached.
	ErrStorageUnavailable = errors.New("backup storage unavailable")
)
