package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DebugIDKey is the preference key holding the install-scoped debug id.
const DebugIDKey = "co-organizer.debug-id"

// DebugID is an installation identifier sent with uploads so store
// operators can correlate reports. A stored empty value means the user
// opted out and no id is sent.
type DebugID struct {
	mu    sync.RWMutex
	id    string
	prefs Preferences
	log   *zap.Logger
}

// LoadDebugID reads the id, generating and persisting one when the key has
// never been set.
func LoadDebugID(ctx context.Context, prefs Preferences, log *zap.Logger) (*DebugID, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := &DebugID{prefs: prefs, log: log}

	id, ok, err := prefs.GetString(ctx, DebugIDKey)
	if err != nil {
		return nil, &PersistenceError{Op: "load debug id", Err: err}
	}
	if ok {
		d.id = id
		if id == "" {
			log.Info("debug id is empty, respecting privacy preference")
		}
		return d, nil
	}

	d.id = uuid.NewString()
	if err := prefs.SetString(ctx, DebugIDKey, d.id); err != nil {
		log.Error("failed to persist debug id", zap.Error(&PersistenceError{Op: "save debug id", Err: err}))
	}
	log.Info("generated debug id", zap.String("prefix", d.id[:8]))
	return d, nil
}

// Value returns the id, or "" when disabled.
func (d *DebugID) Value() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.id
}

// Enabled reports whether the id should be sent.
func (d *DebugID) Enabled() bool {
	return d.Value() != ""
}

// Clear disables the id and remembers the choice.
func (d *DebugID) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.prefs.SetString(ctx, DebugIDKey, ""); err != nil {
		return &PersistenceError{Op: "clear debug id", Err: err}
	}
	d.id = ""
	d.log.Info("debug id cleared")
	return nil
}

// Regenerate stores and returns a fresh id.
func (d *DebugID) Regenerate(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.NewString()
	if err := d.prefs.SetString(ctx, DebugIDKey, id); err != nil {
		return "", &PersistenceError{Op: "regenerate debug id", Err: err}
	}
	d.id = id
	d.log.Info("regenerated debug id", zap.String("prefix", id[:8]))
	return id, nil
}
