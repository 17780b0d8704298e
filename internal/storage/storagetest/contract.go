// Package storagetest holds the behavioural contract every KeyValueStore backend must meet.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/lectio/internal/interfaces"
)

// RunKVContract exercises store against the KeyValueStore contract.
func RunKVContract(t *testing.T, store interfaces.KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "absent")
		require.Error(t, err)
		assert.True(t, errors.Is(err, interfaces.ErrKeyNotFound), "want ErrKeyNotFound, got %v", err)
	})

	t.Run("set get overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "verse_analysis_Gn 1:1", `{"a":1}`))
		got, err := store.Get(ctx, "verse_analysis_Gn 1:1")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, got)

		require.NoError(t, store.Set(ctx, "verse_analysis_Gn 1:1", `{"a":2}`))
		got, err = store.Get(ctx, "verse_analysis_Gn 1:1")
		require.NoError(t, err)
		assert.Equal(t, `{"a":2}`, got)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "gone", "x"))
		require.NoError(t, store.Delete(ctx, "gone"))
		require.NoError(t, store.Delete(ctx, "gone"))
		_, err := store.Get(ctx, "gone")
		assert.True(t, errors.Is(err, interfaces.ErrKeyNotFound))
	})

	t.Run("prefix keys and delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "verse_analysis_Gn 1:2", "b"))
		require.NoError(t, store.Set(ctx, "verse_analysis_Ex 3:14", "c"))
		require.NoError(t, store.Set(ctx, "reader_location", "/Gn/1/1"))

		keys, err := store.Keys(ctx, "verse_analysis_")
		require.NoError(t, err)
		assert.Equal(t, []string{"verse_analysis_Ex 3:14", "verse_analysis_Gn 1:1", "verse_analysis_Gn 1:2"}, keys)

		n, err := store.DeletePrefix(ctx, "verse_analysis_")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		keys, err = store.Keys(ctx, "verse_analysis_")
		require.NoError(t, err)
		assert.Empty(t, keys)

		loc, err := store.Get(ctx, "reader_location")
		require.NoError(t, err)
		assert.Equal(t, "/Gn/1/1", loc, "other namespaces survive a prefix delete")
	})

	t.Run("concurrent writers on distinct keys", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, store.Set(ctx, fmt.Sprintf("parallel_%02d", i), fmt.Sprint(i)))
			}(i)
		}
		wg.Wait()
		keys, err := store.Keys(ctx, "parallel_")
		require.NoError(t, err)
		assert.Len(t, keys, 16)
	})
}
