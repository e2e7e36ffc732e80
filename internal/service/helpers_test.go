package service_test

import (
	"context"
	"sync"

	"github.com/atinyakov/CoOrganizer/internal/models"
)

// memPrefs is an in-memory Preferences with injectable failures.
type memPrefs struct {
	mu      sync.Mutex
	values  map[string]string
	getErr  error
	setErr  error
	sets    int
	deletes []string
}

func newMemPrefs() *memPrefs {
	return &memPrefs{values: map[string]string{}}
}

func (m *memPrefs) GetString(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memPrefs) SetString(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *memPrefs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	delete(m.values, key)
	return nil
}

func (m *memPrefs) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

type mockSink struct {
	ForwardFunc func(ctx context.Context, tx models.Transaction) error

	mu  sync.Mutex
	got []models.Transaction
}

func (m *mockSink) Forward(ctx context.Context, tx models.Transaction) error {
	m.mu.Lock()
	m.got = append(m.got, tx)
	m.mu.Unlock()
	if m.ForwardFunc != nil {
		return m.ForwardFunc(ctx, tx)
	}
	return nil
}

type recordingNotifier struct {
	successes []string
	failures  []string
}

func (n *recordingNotifier) Success(msg string) { n.successes = append(n.successes, msg) }
func (n *recordingNotifier) Failure(msg string) { n.failures = append(n.failures, msg) }

type clipboardFunc func(string) error

func (f clipboardFunc) WriteAll(s string) error { return f(s) }
