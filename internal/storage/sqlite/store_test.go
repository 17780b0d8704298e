package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(common.NewSilentLogger(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Contract(t *testing.T) {
	storagetest.RunKVContract(t, newTestStore(t))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewStore(common.NewSilentLogger(), dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "reader_location", "/Ex/3/14"))
	require.NoError(t, first.Close())

	second, err := NewStore(common.NewSilentLogger(), dir)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, "reader_location")
	require.NoError(t, err)
	assert.Equal(t, "/Ex/3/14", got)
}

func TestStore_PrefixWithMultibyteRunes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "verse_analysis_Æt 1:1", "x"))
	require.NoError(t, store.Set(ctx, "verse_analysis_Ætb 1:1", "y"))

	keys, err := store.Keys(ctx, "verse_analysis_Æt ")
	require.NoError(t, err)
	assert.Equal(t, []string{"verse_analysis_Æt 1:1"}, keys)
}
