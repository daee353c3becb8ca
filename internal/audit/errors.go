package audit

import "errors"

var (
	// ErrInvalidEntry indicates an entry failed validation and was not stored.
	ErrInvalidEntry = errors.New("audit: invalid entry")
	// ErrDuplicateEntry indicates an entry with the same ID already exists.
	ErrDuplicateEntry = errors.New("audit: duplicate entry")
	// ErrStoreNotConfigured indicates the recorder has no backing store.
	ErrStoreNotConfigured = errors.New("audit: store not configured")
	// ErrRecorderClosed indicates Dispatch after Close.
	ErrRecorderClosed = errors.New("audit: recorder closed")
	// ErrBufferFull indicates the async buffer could not accept the entry.
	ErrBufferFull = errors.New("audit: dispatch buffer full")
)
