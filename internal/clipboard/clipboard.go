// Package clipboard places share links and invites on the system clipboard.
package clipboard

import (
	"errors"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned on systems without a usable clipboard utility.
var ErrUnsupported = errors.New("clipboard unavailable")

// System writes to the desktop clipboard.
type System struct{}

// WriteAll copies text to the clipboard.
func (System) WriteAll(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	return clipboard.WriteAll(text)
}
