// Package models defines the core data structures shared between the
// group store, the crypto engine, the transaction codec and the import path.
package models

import (
	"fmt"
	"regexp"
	"time"
)

// Fingerprint is the public identifier of a group: a truncated SHA-256
// rendered as XXXX-XXXX-XXXX-XXXX. It addresses a group, it does not
// authenticate anybody.
type Fingerprint string

var fingerprintPattern = regexp.MustCompile(`^[A-F0-9]{4}-[A-F0-9]{4}-[A-F0-9]{4}-[A-F0-9]{4}$`)

// Valid reports whether f has the canonical text form.
func (f Fingerprint) Valid() bool {
	return fingerprintPattern.MatchString(string(f))
}

// String implements fmt.Stringer.
func (f Fingerprint) String() string {
	return string(f)
}

// Group is a named set of collaborators sharing one symmetric key.
// Two groups are the same group if their fingerprints are equal.
type Group struct {
	// Name is the display name chosen by the creator.
	Name string `json:"name"`
	// SymmetricKey is the base64-encoded 256-bit group key.
	SymmetricKey string `json:"symmetricKey"`
	// Fingerprint is derived from Name and SymmetricKey once, at creation.
	Fingerprint Fingerprint `json:"fingerprint"`
	// CreatedAt is a unix timestamp in milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// Equal compares groups by fingerprint only.
func (g Group) Equal(other Group) bool {
	return g.Fingerprint == other.Fingerprint
}

// Created returns CreatedAt as a time.Time.
func (g Group) Created() time.Time {
	return time.UnixMilli(g.CreatedAt)
}

// String omits the key on purpose so groups can be logged.
func (g Group) String() string {
	return fmt.Sprintf("Group{name=%q, fingerprint=%s}", g.Name, g.Fingerprint)
}

// GroupInvite is the bearer credential exchanged between members.
// Whoever holds a valid invite holds the group key.
type GroupInvite struct {
	Name        string      `json:"name"`
	Key         string      `json:"key"`
	Fingerprint Fingerprint `json:"fingerprint"`
}

// Complete reports whether every field of the invite is set.
func (i GroupInvite) Complete() bool {
	return i.Name != "" && i.Key != "" && i.Fingerprint != ""
}

// ToGroup converts the invite into a group joined at the given time.
func (i GroupInvite) ToGroup(joinedAt time.Time) Group {
	return Group{
		Name:         i.Name,
		SymmetricKey: i.Key,
		Fingerprint:  i.Fingerprint,
		CreatedAt:    joinedAt.UnixMilli(),
	}
}

// InviteFor builds the invite that reproduces g on another installation.
func InviteFor(g Group) GroupInvite {
	return GroupInvite{Name: g.Name, Key: g.SymmetricKey, Fingerprint: g.Fingerprint}
}
