package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/atinyakov/CoOrganizer/internal/crypto"
	"github.com/atinyakov/CoOrganizer/internal/models"
	"go.uber.org/zap"
)

const (
	// GroupsKey is the preference key holding the JSON group list.
	GroupsKey = "co-organizer.groups"
	// InvitePrefix is the sentence placed before the code when an invite is
	// sent as a chat message.
	InvitePrefix = "Join my Co-Organizer group so that we can start sharing findings today!"
	// MaxInviteLength bounds the input accepted by JoinGroup.
	MaxInviteLength = 10000

	minGroupNameLen = 2
	maxGroupNameLen = 50
)

var groupNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// GroupStore is the authoritative list of groups this installation belongs
// to. The list is cached in memory and mirrored as one JSON document to
// Preferences after every change.
type GroupStore struct {
	mu     sync.RWMutex
	groups []models.Group
	// gen counts mutations; Refresh only installs a list loaded under the
	// generation it started with.
	gen uint64

	prefs     Preferences
	engine    *crypto.Engine
	events    *GroupEvents
	clipboard Clipboard
	log       *zap.Logger
	now       func() time.Time
}

// GroupStoreOption configures a GroupStore.
type GroupStoreOption func(*GroupStore)

// WithGroupEvents shares an existing subject instead of creating one.
func WithGroupEvents(ev *GroupEvents) GroupStoreOption {
	return func(s *GroupStore) { s.events = ev }
}

// WithClipboard sets the clipboard used by CopyInvite.
func WithClipboard(c Clipboard) GroupStoreOption {
	return func(s *GroupStore) { s.clipboard = c }
}

// WithClock overrides time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) GroupStoreOption {
	return func(s *GroupStore) { s.now = now }
}

// NewGroupStore builds a store and loads the persisted list. Load problems
// are logged; the store then starts empty.
func NewGroupStore(ctx context.Context, prefs Preferences, engine *crypto.Engine, log *zap.Logger, opts ...GroupStoreOption) *GroupStore {
	if log == nil {
		log = zap.NewNop()
	}
	s := &GroupStore{
		prefs:     prefs,
		engine:    engine,
		clipboard: nopClipboard{},
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = NewGroupEvents(log)
	}

	groups, err := s.load(ctx)
	if err != nil {
		log.Error("failed to load groups", zap.Error(err))
	}
	s.groups = groups
	return s
}

// Events returns the subject notified about added and removed groups.
func (s *GroupStore) Events() *GroupEvents {
	return s.events
}

// load reads the persisted list. A corrupted document is cleared so the
// next start does not trip over it again.
func (s *GroupStore) load(ctx context.Context) ([]models.Group, error) {
	raw, ok, err := s.prefs.GetString(ctx, GroupsKey)
	if err != nil {
		return nil, &PersistenceError{Op: "load groups", Err: err}
	}
	if !ok || strings.TrimSpace(raw) == "" {
		s.log.Debug("no saved groups found")
		return nil, nil
	}

	var groups []models.Group
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		s.log.Error("corrupted group data in preferences, starting fresh", zap.Error(err))
		if derr := s.prefs.Delete(ctx, GroupsKey); derr != nil {
			s.log.Error("failed to clear corrupted group data", zap.Error(derr))
		}
		return nil, nil
	}
	s.log.Debug("loaded groups", zap.Int("count", len(groups)))
	return groups, nil
}

// persist writes the snapshot. Callers hold the write lock so snapshots
// reach the store in mutation order.
func (s *GroupStore) persist(ctx context.Context, snapshot []models.Group) {
	s.gen++
	if snapshot == nil {
		snapshot = []models.Group{}
	}
	data, err := json.Marshal(snapshot)
	if err == nil {
		err = s.prefs.SetString(ctx, GroupsKey, string(data))
	}
	if err != nil {
		perr := &PersistenceError{Op: "save groups", Err: err}
		s.log.Error("failed to save groups, changes may be lost on restart", zap.Error(perr))
		return
	}
	s.log.Debug("saved groups", zap.Int("count", len(snapshot)))
}

func (s *GroupStore) copyLocked() []models.Group {
	out := make([]models.Group, len(s.groups))
	copy(out, s.groups)
	return out
}

// Groups returns a copy of the current list in display order.
func (s *GroupStore) Groups() []models.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

// FindByFingerprint looks up a group by exact fingerprint match.
func (s *GroupStore) FindByFingerprint(fp models.Fingerprint) (models.Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.Fingerprint == fp {
			return g, true
		}
	}
	return models.Group{}, false
}

// refreshAttempts bounds how often Refresh reloads when mutations keep
// landing while it reads.
const refreshAttempts = 3

// Refresh discards the cache and reloads the list from Preferences so that
// changes made by another process are honoured. On a read error the cache
// is left as it was and the error is returned. The lock is not held while
// reading; a list read before a concurrent mutation is never installed.
func (s *GroupStore) Refresh(ctx context.Context) error {
	for attempt := 0; attempt < refreshAttempts; attempt++ {
		s.mu.RLock()
		gen := s.gen
		s.mu.RUnlock()

		groups, err := s.load(ctx)
		if err != nil {
			s.log.Error("failed to refresh groups", zap.Error(err))
			return err
		}

		s.mu.Lock()
		if s.gen == gen {
			s.groups = groups
			s.mu.Unlock()
			s.log.Debug("refreshed groups", zap.Int("count", len(groups)))
			return nil
		}
		s.mu.Unlock()
		s.log.Debug("groups changed during refresh, reloading", zap.Int("attempt", attempt+1))
	}
	// every read raced a local mutation, so the cache already holds the
	// latest persisted snapshot
	s.log.Debug("keeping cached groups after concurrent mutations")
	return nil
}

func (s *GroupStore) validateNameLocked(name string) error {
	invalid := func(msg string) error {
		return &ValidationError{Field: "name", Message: msg}
	}
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		return invalid("Group name cannot be empty")
	case n < minGroupNameLen:
		return invalid("Group name must be at least 2 characters long")
	case n > maxGroupNameLen:
		return invalid("Group name must be at most 50 characters long")
	case !groupNamePattern.MatchString(name):
		return invalid("Group name can only contain letters, numbers, spaces, hyphens, and underscores")
	case strings.Contains(name, "  "):
		return invalid("Group name cannot contain consecutive spaces")
	}
	for _, g := range s.groups {
		if strings.EqualFold(g.Name, name) {
			return invalid("A group with this name already exists")
		}
	}
	return nil
}

// CreateGroup validates name, generates a fresh key and adds the group.
// No key material is generated for a name that fails validation.
func (s *GroupStore) CreateGroup(ctx context.Context, name string) (models.Group, error) {
	name = strings.TrimSpace(name)

	s.mu.Lock()
	if err := s.validateNameLocked(name); err != nil {
		s.mu.Unlock()
		return models.Group{}, err
	}
	key, err := s.engine.GenerateKey()
	if err != nil {
		s.mu.Unlock()
		return models.Group{}, err
	}
	g := models.Group{
		Name:         name,
		SymmetricKey: key.String(),
		Fingerprint:  s.engine.Fingerprint(name, key),
		CreatedAt:    s.now().UnixMilli(),
	}
	s.groups = append(s.groups, g)
	s.persist(ctx, s.copyLocked())
	s.mu.Unlock()

	s.log.Info("created group", zap.String("name", g.Name), zap.String("fingerprint", g.Fingerprint.String()))
	s.events.groupAdded(g)
	return g, nil
}

func invalidInvite(msg string, err error) error {
	return &InvalidInviteError{Message: msg, Err: err}
}

// extractInviteCode accepts a bare code or a chat message carrying the
// code after InvitePrefix.
func extractInviteCode(input string) (string, error) {
	idx := strings.Index(input, InvitePrefix)
	if idx < 0 {
		return input, nil
	}
	code := strings.TrimSpace(input[idx+len(InvitePrefix):])
	if code == "" {
		return "", invalidInvite("The group invite was malformed.", nil)
	}
	return code, nil
}

// JoinGroup parses an invite and adds the group it describes. Every
// failure is an *InvalidInviteError.
func (s *GroupStore) JoinGroup(ctx context.Context, input string) (models.Group, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return models.Group{}, invalidInvite("Invite code cannot be empty", nil)
	}
	if len(input) > MaxInviteLength {
		return models.Group{}, invalidInvite("Invite code is too long", nil)
	}

	code, err := extractInviteCode(input)
	if err != nil {
		return models.Group{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(code)
	if err != nil {
		s.log.Debug("invite base64 decode failed", zap.Error(err))
		return models.Group{}, invalidInvite("The invite code contains invalid characters and cannot be decoded.", err)
	}
	var inv models.GroupInvite
	if err := json.Unmarshal(raw, &inv); err != nil {
		s.log.Debug("invite json parse failed", zap.Error(err))
		return models.Group{}, invalidInvite("The invite code does not contain valid group information.", err)
	}
	if !inv.Complete() {
		return models.Group{}, invalidInvite("The group invite was malformed.", nil)
	}
	if _, err := crypto.ParseKey(inv.Key); err != nil {
		return models.Group{}, invalidInvite("The group invite carries an invalid key.", err)
	}

	g := inv.ToGroup(s.now())

	s.mu.Lock()
	for _, existing := range s.groups {
		if existing.Equal(g) {
			s.mu.Unlock()
			return models.Group{}, invalidInvite("You are already a member of this group.", nil)
		}
	}
	s.groups = append(s.groups, g)
	s.persist(ctx, s.copyLocked())
	s.mu.Unlock()

	s.log.Info("joined group", zap.String("name", g.Name), zap.String("fingerprint", g.Fingerprint.String()))
	s.events.groupAdded(g)
	return g, nil
}

// LeaveGroup removes the group with fingerprint fp and discards its key.
func (s *GroupStore) LeaveGroup(ctx context.Context, fp models.Fingerprint) (models.Group, error) {
	s.mu.Lock()
	idx := -1
	for i, g := range s.groups {
		if g.Fingerprint == fp {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		s.log.Warn("group not found", zap.String("fingerprint", fp.String()))
		return models.Group{}, ErrGroupNotFound
	}
	removed := s.groups[idx]
	s.groups = append(s.groups[:idx:idx], s.groups[idx+1:]...)
	s.persist(ctx, s.copyLocked())
	s.mu.Unlock()

	s.log.Info("left group", zap.String("name", removed.Name), zap.String("fingerprint", removed.Fingerprint.String()))
	s.events.groupRemoved(removed)
	return removed, nil
}

// MoveGroup moves the group at index from to index to. Out-of-range or
// equal indices are ignored. It reports whether anything moved.
func (s *GroupStore) MoveGroup(ctx context.Context, from, to int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.groups)
	if from < 0 || from >= n || to < 0 || to >= n || from == to {
		return false
	}
	g := s.groups[from]
	rest := append(s.groups[:from:from], s.groups[from+1:]...)
	moved := make([]models.Group, 0, n)
	moved = append(moved, rest[:to]...)
	moved = append(moved, g)
	moved = append(moved, rest[to:]...)
	s.groups = moved
	s.persist(ctx, s.copyLocked())

	s.log.Debug("moved group", zap.String("name", g.Name), zap.Int("from", from), zap.Int("to", to))
	return true
}

// GenerateInviteCode returns base64(JSON{name,key,fingerprint}). The code
// is the group key in disguise and must be handled as a secret.
func (s *GroupStore) GenerateInviteCode(g models.Group) string {
	data, _ := json.Marshal(models.InviteFor(g))
	return base64.StdEncoding.EncodeToString(data)
}

// InviteMessage returns the chat-ready form of the invite.
func (s *GroupStore) InviteMessage(g models.Group) string {
	return InvitePrefix + " " + s.GenerateInviteCode(g)
}

// CopyInvite places the invite message on the clipboard.
func (s *GroupStore) CopyInvite(g models.Group) error {
	if err := s.clipboard.WriteAll(s.InviteMessage(g)); err != nil {
		s.log.Error("failed to copy invite to clipboard", zap.Error(err))
		return err
	}
	s.log.Info("copied invite message to clipboard", zap.String("name", g.Name))
	return nil
}

// IsInvalidInvite reports whether err came from JoinGroup input handling.
func IsInvalidInvite(err error) bool {
	var inv *InvalidInviteError
	return errors.As(err, &inv)
}
