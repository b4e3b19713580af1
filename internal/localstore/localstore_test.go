package localstore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kvImplementations(t *testing.T) map[string]KV {
	fkv, err := NewFileKV(filepath.Join(t.TempDir(), "state", "kv.json"), 0)
	require.NoError(t, err)
	return map[string]KV{
		"file":   fkv,
		"memory": NewMemoryKV(0),
	}
}

func TestKV_Basics(t *testing.T) {
	for name, kv := range kvImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set("a", "1"))
			require.NoError(t, kv.SetMany(map[string]string{"b": "2", "c": "3"}))

			v, ok, err := kv.Get("b")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "2", v)

			require.NoError(t, kv.Remove("a", "b", "never-set"))
			_, ok, _ = kv.Get("a")
			assert.False(t, ok)
			v, ok, _ = kv.Get("c")
			assert.True(t, ok)
			assert.Equal(t, "3", v)

			// Removing twice is fine.
			require.NoError(t, kv.Remove("a"))
		})
	}
}

func TestFileKV_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	first, err := NewFileKV(path, 0)
	require.NoError(t, err)
	require.NoError(t, first.Set("token", "abc"))

	second, err := NewFileKV(path, 0)
	require.NoError(t, err)
	v, ok, err := second.Get("token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileKV_Quota(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "kv.json"), 64)
	require.NoError(t, err)

	require.NoError(t, kv.Set("small", "x"))
	err = kv.Set("big", string(make([]byte, 200)))
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// The failed write left earlier contents intact.
	v, ok, err := kv.Get("small")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	_, ok, _ = kv.Get("big")
	assert.False(t, ok)
}

func TestFileKV_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	kv, err := NewFileKV(path, 0)
	require.NoError(t, err)

	_, _, err = kv.Get("k")
	assert.Error(t, err)

	// Writes recover by starting over.
	require.NoError(t, kv.Set("k", "v"))
	v, ok, err := kv.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestMemoryKV_Quota(t *testing.T) {
	kv := NewMemoryKV(10)
	require.NoError(t, kv.Set("k", "12345"))
	assert.ErrorIs(t, kv.Set("k2", "123456789"), ErrQuotaExceeded)
	// Replacing a value only counts the new size.
	require.NoError(t, kv.Set("k", "123456789"))
}

func TestFileKV_ConcurrentWriters(t *testing.T) {
	kv, err := NewFileKV(filepath.Join(t.TempDir(), "kv.json"), 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, kv.Set(key, key))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		key := string(rune('a' + i))
		v, ok, err := kv.Get(key)
		require.NoError(t, err)
		assert.True(t, ok, key)
		assert.Equal(t, key, v)
	}
}
