package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var errCorruptPreferences = errors.New("preferences file is corrupt")

// FilePreferences keeps preferences as one JSON object in a local file.
// Every write replaces the whole file via a temp file and rename, so a
// crash never leaves a half-written document behind.
type FilePreferences struct {
	path string
	mu   sync.Mutex
}

// NewFilePreferences returns a store backed by path. The file and its
// directory are created on first write.
func NewFilePreferences(path string) *FilePreferences {
	return &FilePreferences{path: path}
}

// Path returns the backing file location.
func (p *FilePreferences) Path() string {
	return p.path
}

func (p *FilePreferences) load() (map[string]string, error) {
	f, err := os.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	defer f.Close()

	values := map[string]string{}
	if err := json.NewDecoder(f).Decode(&values); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", errCorruptPreferences, p.path, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

func (p *FilePreferences) save(values map[string]string) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(values); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

// GetString returns the stored value and whether the key exists.
func (p *FilePreferences) GetString(_ context.Context, key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.load()
	if err != nil {
		return "", false, fmt.Errorf("get preference %q: %w", key, err)
	}
	v, ok := values[key]
	return v, ok, nil
}

// SetString stores value under key.
func (p *FilePreferences) SetString(_ context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.load()
	if err != nil {
		if !errors.Is(err, errCorruptPreferences) {
			return fmt.Errorf("set preference %q: %w", key, err)
		}
		// an unreadable document is replaced rather than blocking every write
		values = map[string]string{}
	}
	values[key] = value
	if err := p.save(values); err != nil {
		return fmt.Errorf("set preference %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (p *FilePreferences) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.load()
	if err != nil {
		return fmt.Errorf("delete preference %q: %w", key, err)
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	if err := p.save(values); err != nil {
		return fmt.Errorf("delete preference %q: %w", key, err)
	}
	return nil
}
