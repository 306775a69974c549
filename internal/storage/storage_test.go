package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return newSQLite(t) },
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			s := open(t)

			assert.False(t, s.Contains(KeySeen))
			_, err := s.Get(KeySeen)
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, s.Put(KeySeen, []byte("one")))
			assert.True(t, s.Contains(KeySeen))
			got, err := s.Get(KeySeen)
			require.NoError(t, err)
			assert.Equal(t, []byte("one"), got)

			require.NoError(t, s.Put(KeySeen, []byte("two")))
			got, err = s.Get(KeySeen)
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), got)

			assert.Error(t, s.Put(Key("bogus"), []byte("x")))
			assert.False(t, s.Contains(KeyLoadedPlugins))
		})
	}
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, PutJSON(s, KeyLoadedPlugins, []string{"greet", "seen"}))

	var names []string
	require.NoError(t, GetJSON(s, KeyLoadedPlugins, &names))
	assert.Equal(t, []string{"greet", "seen"}, names)

	require.NoError(t, s.Put(KeySeen, []byte("{broken")))
	var seen map[string]int64
	assert.Error(t, GetJSON(s, KeySeen, &seen))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, PutJSON(s, KeyLoadedPlugins, []string{"relay"}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	var names []string
	require.NoError(t, GetJSON(s, KeyLoadedPlugins, &names))
	assert.Equal(t, []string{"relay"}, names)
	assert.Equal(t, path, s.Path())
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("")
	assert.Error(t, err)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	value := []byte("abc")
	require.NoError(t, s.Put(KeySeen, value))
	value[0] = 'x'

	got, err := s.Get(KeySeen)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[0] = 'y'
	again, _ := s.Get(KeySeen)
	assert.Equal(t, []byte("abc"), again)
}
