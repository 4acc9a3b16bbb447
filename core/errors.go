package core

import "errors"

var (
	// ErrEmptyKey is returned when a caller passes an empty key to any
	// write or read operation.
	ErrEmptyKey = errors.New("key must not be empty")

	// ErrReservedValue is returned when a caller tries to store the
	// tombstone marker as a live value.
	ErrReservedValue = errors.New("value is the reserved tombstone marker")

	// ErrCorruptLine marks a WAL or SSTable line without a '=' separator.
	// Readers log and skip such lines rather than failing the operation.
	ErrCorruptLine = errors.New("corrupt record line: missing separator")

	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")
)
