// Package service implements the group store, the share uploader and the
// import handler on top of the crypto engine and the transaction codec.
// Everything outside the process (preference store, HTTP transport,
// clipboard, organizer) is reached through the small interfaces below.
package service

import (
	"context"
	"net/http"

	"github.com/atinyakov/CoOrganizer/internal/models"
)

// Preferences is a durable string key-value store.
type Preferences interface {
	// GetString returns the value and whether the key exists. An existing
	// key may hold the empty string.
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Sink receives reconstructed transactions, one call per item.
type Sink interface {
	Forward(ctx context.Context, tx models.Transaction) error
}

// HTTPDoer sends one request and returns one response. *http.Client fits.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	WriteAll(text string) error
}

// Notifier shows a short message to the user.
type Notifier interface {
	Success(msg string)
	Failure(msg string)
}

type nopClipboard struct{}

func (nopClipboard) WriteAll(string) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Failure(string) {}
