package models

import "strings"

// ShareResponse is the store's reply to an upload: either a link or an error.
type ShareResponse struct {
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// HasURL reports whether a non-blank url was returned.
func (r ShareResponse) HasURL() bool {
	return strings.TrimSpace(r.URL) != ""
}

// HasError reports whether the store returned a non-blank error.
func (r ShareResponse) HasError() bool {
	return strings.TrimSpace(r.Error) != ""
}
