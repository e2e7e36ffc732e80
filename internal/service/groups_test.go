package service_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/CoOrganizer/internal/crypto"
	"github.com/atinyakov/CoOrganizer/internal/models"
	"github.com/atinyakov/CoOrganizer/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T, prefs service.Preferences, opts ...service.GroupStoreOption) *service.GroupStore {
	t.Helper()
	return service.NewGroupStore(context.Background(), prefs, crypto.New(), zap.NewNop(), opts...)
}

// countingReader records how many bytes of randomness were requested.
type countingReader struct {
	mu sync.Mutex
	n  int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += len(p)
	for i := range p {
		p[i] = byte(i)
	}
	return len(p), nil
}

func TestCreateGroup_Validation(t *testing.T) {
	cases := map[string]string{
		"empty":          "   ",
		"too short":      "a",
		"too long":       strings.Repeat("x", 51),
		"bad characters": "red/team",
		"unicode":        "équipe",
		"double space":   "red  team",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			rnd := &countingReader{}
			store := service.NewGroupStore(context.Background(), newMemPrefs(), crypto.New(crypto.WithRandom(rnd)), zap.NewNop())

			_, err := store.CreateGroup(context.Background(), input)
			var verr *service.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.NotEmpty(t, verr.Message)
			assert.Zero(t, rnd.n, "no key material may be generated for an invalid name")
			assert.Empty(t, store.Groups())
		})
	}
}

func TestCreateGroup_Success(t *testing.T) {
	prefs := newMemPrefs()
	now := time.UnixMilli(1234)
	store := newStore(t, prefs, service.WithClock(func() time.Time { return now }))

	g, err := store.CreateGroup(context.Background(), "  Red_Team-1 ")
	require.NoError(t, err)
	assert.Equal(t, "Red_Team-1", g.Name)
	assert.True(t, g.Fingerprint.Valid())
	assert.Equal(t, int64(1234), g.CreatedAt)
	assert.Equal(t, crypto.Fingerprint(g.Name, g.SymmetricKey), g.Fingerprint)

	key, err := crypto.ParseKey(g.SymmetricKey)
	require.NoError(t, err)
	assert.Len(t, key, crypto.KeySize)

	raw, ok := prefs.get(service.GroupsKey)
	require.True(t, ok)
	var persisted []models.Group
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	require.Len(t, persisted, 1)
	assert.Equal(t, g, persisted[0])
	assert.Contains(t, raw, `"symmetricKey"`)
	assert.Contains(t, raw, `"createdAt":1234`)
}

func TestCreateGroup_DuplicateNameIgnoresCase(t *testing.T) {
	store := newStore(t, newMemPrefs())
	_, err := store.CreateGroup(context.Background(), "Blue Team")
	require.NoError(t, err)

	_, err = store.CreateGroup(context.Background(), "blue team")
	var verr *service.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Message, "already exists")
	assert.Len(t, store.Groups(), 1)
}

func TestJoinGroup_AcrossStores(t *testing.T) {
	a := newStore(t, newMemPrefs())
	b := newStore(t, newMemPrefs())

	g, err := a.CreateGroup(context.Background(), "shared")
	require.NoError(t, err)

	joined, err := b.JoinGroup(context.Background(), a.GenerateInviteCode(g))
	require.NoError(t, err)
	assert.Equal(t, g.Fingerprint, joined.Fingerprint)
	assert.Equal(t, g.SymmetricKey, joined.SymmetricKey)
	assert.Equal(t, g.Name, joined.Name)

	found, ok := b.FindByFingerprint(g.Fingerprint)
	require.True(t, ok)
	assert.Equal(t, joined, found)
}

func TestJoinGroup_InviteMessage(t *testing.T) {
	a := newStore(t, newMemPrefs())
	b := newStore(t, newMemPrefs())
	g, err := a.CreateGroup(context.Background(), "chatty")
	require.NoError(t, err)

	msg := a.InviteMessage(g)
	assert.True(t, strings.HasPrefix(msg, service.InvitePrefix+" "))

	joined, err := b.JoinGroup(context.Background(), "hey!\n"+msg+"\n\n")
	require.NoError(t, err)
	assert.True(t, joined.Equal(g))
}

func TestJoinGroup_Duplicate(t *testing.T) {
	prefs := newMemPrefs()
	store := newStore(t, prefs)
	g, err := store.CreateGroup(context.Background(), "mine")
	require.NoError(t, err)
	setsBefore := prefs.sets

	_, err = store.JoinGroup(context.Background(), store.GenerateInviteCode(g))
	var inv *service.InvalidInviteError
	require.True(t, errors.As(err, &inv))
	assert.Contains(t, inv.Message, "already a member")
	assert.Len(t, store.Groups(), 1)
	assert.Equal(t, setsBefore, prefs.sets, "a rejected invite must not persist anything")
}

func TestJoinGroup_InvalidInputs(t *testing.T) {
	encode := func(v any) string {
		b, _ := json.Marshal(v)
		return base64.StdEncoding.EncodeToString(b)
	}
	validKey, err := crypto.New().GenerateKey()
	require.NoError(t, err)

	cases := map[string]string{
		"empty":          "  ",
		"too long":       strings.Repeat("A", service.MaxInviteLength+1),
		"prefix only":    service.InvitePrefix + "   ",
		"bad base64":     "not*base64",
		"not json":       base64.StdEncoding.EncodeToString([]byte("hello")),
		"missing field":  encode(map[string]string{"name": "x", "key": validKey.String()}),
		"short key":      encode(models.GroupInvite{Name: "x", Key: "c2hvcnQ=", Fingerprint: "AAAA-AAAA-AAAA-AAAA"}),
		"json array":     base64.StdEncoding.EncodeToString([]byte(`[1]`)),
		"prefixed junk":  service.InvitePrefix + " ???",
		"null document":  base64.StdEncoding.EncodeToString([]byte(`null`)),
		"wrong key type": base64.StdEncoding.EncodeToString([]byte(`{"name":"x","key":1,"fingerprint":"y"}`)),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			store := newStore(t, newMemPrefs())
			_, err := store.JoinGroup(context.Background(), input)
			require.Error(t, err)
			assert.True(t, service.IsInvalidInvite(err), "got %T: %v", err, err)
			assert.NotEmpty(t, err.Error())
			assert.Empty(t, store.Groups())
		})
	}
}

func TestLeaveGroup(t *testing.T) {
	prefs := newMemPrefs()
	store := newStore(t, prefs)
	g, err := store.CreateGroup(context.Background(), "temp")
	require.NoError(t, err)

	removed, err := store.LeaveGroup(context.Background(), g.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, g, removed)
	assert.Empty(t, store.Groups())

	raw, _ := prefs.get(service.GroupsKey)
	assert.Equal(t, "[]", raw)
	assert.NotContains(t, raw, g.SymmetricKey)

	_, err = store.LeaveGroup(context.Background(), g.Fingerprint)
	assert.ErrorIs(t, err, service.ErrGroupNotFound)
}

func TestMoveGroup(t *testing.T) {
	store := newStore(t, newMemPrefs())
	for _, n := range []string{"aa", "bb", "cc"} {
		_, err := store.CreateGroup(context.Background(), n)
		require.NoError(t, err)
	}
	names := func() []string {
		var out []string
		for _, g := range store.Groups() {
			out = append(out, g.Name)
		}
		return out
	}

	assert.True(t, store.MoveGroup(context.Background(), 0, 2))
	assert.Equal(t, []string{"bb", "cc", "aa"}, names())

	assert.True(t, store.MoveGroup(context.Background(), 2, 0))
	assert.Equal(t, []string{"aa", "bb", "cc"}, names())

	assert.False(t, store.MoveGroup(context.Background(), 1, 1))
	assert.False(t, store.MoveGroup(context.Background(), -1, 0))
	assert.False(t, store.MoveGroup(context.Background(), 0, 3))
	assert.Equal(t, []string{"aa", "bb", "cc"}, names())
}

func TestGroupStore_LoadsPersistedList(t *testing.T) {
	prefs := newMemPrefs()
	first := newStore(t, prefs)
	g, err := first.CreateGroup(context.Background(), "persisted")
	require.NoError(t, err)

	second := newStore(t, prefs)
	require.Len(t, second.Groups(), 1)
	assert.Equal(t, g, second.Groups()[0])
}

func TestGroupStore_CorruptedDataCleared(t *testing.T) {
	prefs := newMemPrefs()
	prefs.values[service.GroupsKey] = "{definitely not a list"

	store := newStore(t, prefs)
	assert.Empty(t, store.Groups())
	assert.Equal(t, []string{service.GroupsKey}, prefs.deletes)
	_, ok := prefs.get(service.GroupsKey)
	assert.False(t, ok)
}

func TestGroupStore_PersistFailureKeepsMemoryState(t *testing.T) {
	prefs := newMemPrefs()
	prefs.setErr = errors.New("read-only")
	store := newStore(t, prefs)

	g, err := store.CreateGroup(context.Background(), "volatile")
	require.NoError(t, err, "persistence failure must not fail the mutation")
	found, ok := store.FindByFingerprint(g.Fingerprint)
	assert.True(t, ok)
	assert.Equal(t, g, found)
}

func TestRefresh_SeesExternalChanges(t *testing.T) {
	prefs := newMemPrefs()
	ui := newStore(t, prefs)
	proxy := newStore(t, prefs)

	g, err := ui.CreateGroup(context.Background(), "late")
	require.NoError(t, err)
	_, ok := proxy.FindByFingerprint(g.Fingerprint)
	assert.False(t, ok, "cache is stale until refreshed")

	require.NoError(t, proxy.Refresh(context.Background()))
	_, ok = proxy.FindByFingerprint(g.Fingerprint)
	assert.True(t, ok)

	_, err = ui.LeaveGroup(context.Background(), g.Fingerprint)
	require.NoError(t, err)
	require.NoError(t, proxy.Refresh(context.Background()))
	_, ok = proxy.FindByFingerprint(g.Fingerprint)
	assert.False(t, ok)
}

func TestRefresh_ReadErrorKeepsCache(t *testing.T) {
	prefs := newMemPrefs()
	store := newStore(t, prefs)
	_, err := store.CreateGroup(context.Background(), "kept")
	require.NoError(t, err)

	prefs.getErr = errors.New("locked")
	err = store.Refresh(context.Background())
	var perr *service.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Len(t, store.Groups(), 1)
}

func TestGroups_ReturnsSnapshot(t *testing.T) {
	store := newStore(t, newMemPrefs())
	_, err := store.CreateGroup(context.Background(), "one")
	require.NoError(t, err)

	snap := store.Groups()
	snap[0].Name = "mutated"
	_, err = store.CreateGroup(context.Background(), "two")
	require.NoError(t, err)

	assert.Len(t, snap, 1)
	assert.Equal(t, "one", store.Groups()[0].Name)
}

func TestListeners_PanicIsolated(t *testing.T) {
	store := newStore(t, newMemPrefs())

	var added, removed []string
	store.Events().Subscribe(service.ListenerFuncs{
		Added: func(models.Group) { panic("listener bug") },
	})
	unsubscribe := store.Events().Subscribe(service.ListenerFuncs{
		Added:   func(g models.Group) { added = append(added, g.Name) },
		Removed: func(g models.Group) { removed = append(removed, g.Name) },
	})

	g, err := store.CreateGroup(context.Background(), "observed")
	require.NoError(t, err)
	assert.Equal(t, []string{"observed"}, added)
	assert.Len(t, store.Groups(), 1, "a failing listener must not roll back the change")

	_, err = store.LeaveGroup(context.Background(), g.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, []string{"observed"}, removed)

	unsubscribe()
	unsubscribe()
	_, err = store.CreateGroup(context.Background(), "unobserved")
	require.NoError(t, err)
	assert.Equal(t, []string{"observed"}, added)
}

func TestCopyInvite(t *testing.T) {
	var copied string
	store := newStore(t, newMemPrefs(), service.WithClipboard(clipboardFunc(func(s string) error {
		copied = s
		return nil
	})))
	g, err := store.CreateGroup(context.Background(), "clip")
	require.NoError(t, err)

	require.NoError(t, store.CopyInvite(g))
	assert.Equal(t, store.InviteMessage(g), copied)

	failing := newStore(t, newMemPrefs(), service.WithClipboard(clipboardFunc(func(string) error {
		return errors.New("no display")
	})))
	assert.Error(t, failing.CopyInvite(g))
}

func TestGroupStore_ConcurrentAccess(t *testing.T) {
	store := newStore(t, newMemPrefs())
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = store.CreateGroup(context.Background(), "group "+string(rune('a'+i))+string(rune('a'+i)))
		}(i)
		go func() {
			defer wg.Done()
			for _, g := range store.Groups() {
				store.FindByFingerprint(g.Fingerprint)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, store.Groups(), 10)
}

// stallingPrefs hands its first armed read a snapshot taken on entry and
// holds it until released, so the read lands after later writes.
type stallingPrefs struct {
	*memPrefs
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (p *stallingPrefs) GetString(ctx context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	stall := p.armed
	p.armed = false
	p.mu.Unlock()
	if !stall {
		return p.memPrefs.GetString(ctx, key)
	}
	v, ok, err := p.memPrefs.GetString(ctx, key)
	close(p.entered)
	<-p.release
	return v, ok, err
}

func TestGroupStore_RefreshDoesNotUndoConcurrentCreate(t *testing.T) {
	prefs := &stallingPrefs{
		memPrefs: newMemPrefs(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	store := newStore(t, prefs)
	_, err := store.CreateGroup(context.Background(), "existing")
	require.NoError(t, err)

	prefs.mu.Lock()
	prefs.armed = true
	prefs.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- store.Refresh(context.Background()) }()
	<-prefs.entered

	raced, err := store.CreateGroup(context.Background(), "raced")
	require.NoError(t, err)
	close(prefs.release)
	require.NoError(t, <-done)

	_, ok := store.FindByFingerprint(raced.Fingerprint)
	assert.True(t, ok, "group created during refresh must stay cached")

	_, err = store.CreateGroup(context.Background(), "next")
	require.NoError(t, err)

	raw, ok := prefs.get(service.GroupsKey)
	require.True(t, ok)
	var persisted []models.Group
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	names := make([]string, 0, len(persisted))
	for _, g := range persisted {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"existing", "raced", "next"}, names)
}
