// Package storetest holds behaviour every banksdk.CredentialStore must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/belgacembalti/Secure-Digital-Card/pkg/banksdk"
	"github.com/stretchr/testify/require"
)

// Run exercises a store built fresh for every subtest.
func Run(t *testing.T, newStore func(t *testing.T) banksdk.CredentialStore) {
	t.Helper()

	t.Run("empty slots read as empty", func(t *testing.T) {
		store := newStore(t)
		for _, kind := range banksdk.Kinds() {
			v, err := store.Get(context.Background(), kind)
			require.NoError(t, err)
			require.Empty(t, v)
		}
	})

	t.Run("set and get", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.Set(ctx, banksdk.KindAccess, "access-1"))
		require.NoError(t, store.Set(ctx, banksdk.KindRefresh, "refresh-1"))

		requireSlots(t, store, "access-1", "refresh-1")

		require.NoError(t, store.Set(ctx, banksdk.KindAccess, "access-2"))
		requireSlots(t, store, "access-2", "refresh-1")
	})

	t.Run("empty value clears slot", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.SetPair(ctx, "a", "r"))
		require.NoError(t, store.Set(ctx, banksdk.KindAccess, ""))
		requireSlots(t, store, "", "r")
	})

	t.Run("set pair replaces both", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.SetPair(ctx, "a1", "r1"))
		require.NoError(t, store.SetPair(ctx, "a2", "r2"))
		requireSlots(t, store, "a2", "r2")
	})

	t.Run("clear", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.SetPair(ctx, "a", "r"))
		require.NoError(t, store.Clear(ctx, banksdk.KindRefresh))
		requireSlots(t, store, "a", "")

		require.NoError(t, store.Clear(ctx))
		requireSlots(t, store, "", "")

		// Idempotent.
		require.NoError(t, store.Clear(ctx))
	})

	t.Run("unknown kind", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(context.Background(), "id_token")
		require.Error(t, err)
		require.Error(t, store.Set(context.Background(), "id_token", "x"))
	})

	t.Run("pairs are never torn", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		require.NoError(t, store.SetPair(ctx, "a0", "r0"))

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = store.SetPair(ctx, fmt.Sprintf("a%d", i), fmt.Sprintf("r%d", i))
			}()
		}
		wg.Wait()

		access, err := store.Get(ctx, banksdk.KindAccess)
		require.NoError(t, err)
		refresh, err := store.Get(ctx, banksdk.KindRefresh)
		require.NoError(t, err)
		require.Equal(t, "r"+access[1:], refresh)
	})
}

func requireSlots(t *testing.T, store banksdk.CredentialStore, access, refresh string) {
	t.Helper()

	got, err := store.Get(context.Background(), banksdk.KindAccess)
	require.NoError(t, err)
	require.Equal(t, access, got, "access")

	got, err = store.Get(context.Background(), banksdk.KindRefresh)
	require.NoError(t, err)
	require.Equal(t, refresh, got, "refresh")
}
