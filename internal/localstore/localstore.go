// Package localstore provides the durable client-side key-value area that
// backs credentials and the sourcing session.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"leviosa/internal/logging"
)

// ErrQuotaExceeded is returned when a write would grow the area past its byte quota.
var ErrQuotaExceeded = errors.New("localstore: quota exceeded")

// KV is a string key-value area.
type KV interface {
	// Get returns the stored value and whether it was present.
	Get(key string) (string, bool, error)
	// Set stores a single value.
	Set(key, value string) error
	// SetMany stores every value in one write.
	SetMany(values map[string]string) error
	// Remove deletes keys. Missing keys are not an error.
	Remove(keys ...string) error
}

// FileKV is a KV persisted as a single JSON object on disk.
type FileKV struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
}

// NewFileKV returns a file-backed area at path. maxBytes <= 0 disables the quota.
func NewFileKV(path string, maxBytes int64) (*FileKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileKV{path: path, maxBytes: maxBytes}, nil
}

// Path returns the backing file.
func (f *FileKV) Path() string {
	return f.path
}

func (f *FileKV) readLocked() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	m := map[string]string{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return m, nil
}

// writeLocked replaces the file through a rename so readers never see a torn write.
func (f *FileKV) writeLocked(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return ErrQuotaExceeded
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".kv-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// modify runs fn over the current contents and persists the result.
// A corrupt file is discarded rather than blocking every future write.
func (f *FileKV) modify(fn func(m map[string]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.readLocked()
	if err != nil {
		logging.StoreWarn("discarding unreadable key-value file: %v", err)
		m = map[string]string{}
	}
	fn(m)
	return f.writeLocked(m)
}

// Get implements KV.
func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, err := f.readLocked()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// Set implements KV.
func (f *FileKV) Set(key, value string) error {
	return f.modify(func(m map[string]string) { m[key] = value })
}

// SetMany implements KV.
func (f *FileKV) SetMany(values map[string]string) error {
	return f.modify(func(m map[string]string) {
		for k, v := range values {
			m[k] = v
		}
	})
}

// Remove implements KV.
func (f *FileKV) Remove(keys ...string) error {
	return f.modify(func(m map[string]string) {
		for _, k := range keys {
			delete(m, k)
		}
	})
}

// MemoryKV is an in-process KV, used by tests and one-shot commands.
type MemoryKV struct {
	mu       sync.Mutex
	data     map[string]string
	maxBytes int
}

// NewMemoryKV returns an empty area. maxBytes <= 0 disables the quota, which
// counts the summed length of keys and values.
func NewMemoryKV(maxBytes int) *MemoryKV {
	return &MemoryKV{data: map[string]string{}, maxBytes: maxBytes}
}

func (m *MemoryKV) sizeWith(values map[string]string) int {
	n := 0
	for k, v := range m.data {
		if _, replaced := values[k]; replaced {
			continue
		}
		n += len(k) + len(v)
	}
	for k, v := range values {
		n += len(k) + len(v)
	}
	return n
}

// Get implements KV.
func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements KV.
func (m *MemoryKV) Set(key, value string) error {
	return m.SetMany(map[string]string{key: value})
}

// SetMany implements KV.
func (m *MemoryKV) SetMany(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.maxBytes > 0 && m.sizeWith(values) > m.maxBytes {
		return ErrQuotaExceeded
	}
	for k, v := range values {
		m.data[k] = v
	}
	return nil
}

// Remove implements KV.
func (m *MemoryKV) Remove(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
