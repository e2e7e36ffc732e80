package models

import "time"

// OrganizerItem is a transaction that arrived through an import and was
// handed to the organizer.
type OrganizerItem struct {
	ID          string      `json:"id"`
	Transaction Transaction `json:"transaction"`
	ImportedAt  time.Time   `json:"importedAt"`
}
