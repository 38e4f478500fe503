package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("a/1"), []byte("one")))
	require.NoError(t, db.WriteBatch([]Write{
		{Key: []byte("a/2"), Value: []byte("two")},
		{Key: []byte("b/1"), Value: []byte("other")},
		{Key: []byte("a/1"), Value: nil},
	}))

	_, err = db.Get([]byte("a/1"))
	require.ErrorIs(t, err, ErrNotFound)

	got, err := db.Get([]byte("a/2"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)

	keys, err := db.Keys([]byte("a/"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("a/2")}, keys)

	require.NoError(t, db.Delete([]byte("b/1")))
	_, err = db.Get([]byte("b/1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDB(t *testing.T) {
	exerciseDatabase(t, NewMemDB())
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'

	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	exerciseDatabase(t, db)
	db.Close()

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("a/2"))
	require.NoError(t, err)
	require.Equal(t, []byte("two"), got)
}
