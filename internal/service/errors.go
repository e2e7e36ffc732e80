package service

import (
	"errors"
	"fmt"
)

var (
	// ErrGroupNotFound is returned when no group has the requested fingerprint.
	ErrGroupNotFound = errors.New("group not found")
	// ErrNothingToShare is returned when Share is called without transactions.
	ErrNothingToShare = errors.New("no items selected")
	// ErrNoShareURL is returned when the store answered without a usable link.
	ErrNoShareURL = errors.New("could not extract link from response")
)

// ValidationError rejects a group name. Message is safe to show to the user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InvalidInviteError rejects an invite at any stage of JoinGroup.
type InvalidInviteError struct {
	Message string
	Err     error
}

func (e *InvalidInviteError) Error() string {
	return e.Message
}

func (e *InvalidInviteError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed read or write of the durable store.
// Group mutations log it and keep going: the in-memory list stays
// authoritative for the session, but the change may be lost on restart.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// TransportError reports a failed upload: a network error or a non-200 status.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StoreError carries an error message returned by the store itself.
type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return "store error: " + e.Message
}
