package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"shodeposit/storage"
)

func TestKVReadWrite(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	ok, err := mgr.KVGet([]byte("missing"), new(big.Int))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.KVPut([]byte("amount"), big.NewInt(42)))
	got := new(big.Int)
	ok, err = mgr.KVGet([]byte("amount"), got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), got.Int64())

	require.NoError(t, mgr.KVDelete([]byte("amount")))
	ok, err = mgr.KVGet([]byte("amount"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.Error(t, mgr.KVPut(nil, true))
	_, err := mgr.KVGet(nil, nil)
	require.Error(t, err)
}

func TestOverlayCommitPublishesWrites(t *testing.T) {
	db := storage.NewMemDB()
	root := NewManager(db)
	require.NoError(t, root.KVPut([]byte("a"), uint64(1)))

	tx := root.Copy()
	require.NoError(t, tx.KVPut([]byte("a"), uint64(2)))
	require.NoError(t, tx.KVPut([]byte("b"), uint64(3)))

	var v uint64
	_, err := root.KVGet([]byte("a"), &v)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v, "root must not observe buffered writes")

	_, err = tx.KVGet([]byte("a"), &v)
	require.NoError(t, err)
	require.Equal(t, uint64(2), v)

	require.NoError(t, tx.Commit())
	_, err = root.KVGet([]byte("a"), &v)
	require.NoError(t, err)
	require.Equal(t, uint64(2), v)
	ok, err := root.KVGet([]byte("b"), &v)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), v)
}

func TestOverlayDiscardDropsWrites(t *testing.T) {
	root := NewManager(storage.NewMemDB())
	tx := root.Copy()
	require.NoError(t, tx.KVPut([]byte("a"), true))
	tx.Discard()
	require.NoError(t, tx.Commit())

	ok, err := root.KVGet([]byte("a"), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNestedOverlay(t *testing.T) {
	root := NewManager(storage.NewMemDB())
	outer := root.Copy()
	inner := outer.Copy()

	require.NoError(t, inner.KVPut([]byte("k"), uint64(7)))
	require.NoError(t, inner.Commit())

	ok, err := root.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.False(t, ok, "inner commit lands in the outer overlay only")

	require.NoError(t, outer.Commit())
	ok, err = root.KVGet([]byte("k"), nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOverlayKeysMergeBufferedWrites(t *testing.T) {
	root := NewManager(storage.NewMemDB())
	require.NoError(t, root.KVPut([]byte("p/1"), true))
	require.NoError(t, root.KVPut([]byte("p/2"), true))
	require.NoError(t, root.KVPut([]byte("q/1"), true))

	tx := root.Copy()
	require.NoError(t, tx.KVDelete([]byte("p/1")))
	require.NoError(t, tx.KVPut([]byte("p/3"), true))

	keys, err := tx.KVKeys([]byte("p/"))
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("p/2"), []byte("p/3")}, keys)
}
