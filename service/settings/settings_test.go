package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/nemnotify/service/nem"
)

func strPtr(s string) *string { return &s }

func TestApply_AddressChangeResetsMarker(t *testing.T) {
	s := Settings{Address: "TALICE", Marker: "abc"}

	same := s.Apply(Update{Address: strPtr("t-alice")})
	assert.Equal(t, "abc", same.Marker, "re-entering the same address keeps the marker")

	changed := s.Apply(Update{Address: strPtr("TBOB")})
	assert.Equal(t, "TBOB", changed.Address)
	assert.Empty(t, changed.Marker)

	// The receiver is not modified.
	assert.Equal(t, "abc", s.Marker)
}

func TestApply_HarvestingFields(t *testing.T) {
	s := Settings{Address: "TALICE", Marker: "abc"}.Apply(Update{
		HarvestRemote: strPtr("tremote-xyz"),
		HarvestNode:   strPtr("alice2.nem.ninja"),
	})

	assert.Equal(t, "TREMOTEXYZ", s.HarvestRemote)
	assert.Equal(t, "alice2.nem.ninja", s.HarvestNode)
	assert.Equal(t, "abc", s.Marker)
}

func TestNetwork(t *testing.T) {
	assert.Equal(t, nem.Mainnet, Settings{Address: "NALICE"}.Network())
	assert.Equal(t, nem.Testnet, Settings{Address: "TALICE"}.Network())
}

func newTestPebbleStore(t *testing.T) *PebbleStore {
	t.Helper()
	store, err := NewPebbleStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPebbleStore_LoadEmpty(t *testing.T) {
	store := newTestPebbleStore(t)

	s, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Settings{}, s)
}

func TestPebbleStore_ApplyUpdateAndSetMarker(t *testing.T) {
	store := newTestPebbleStore(t)
	ctx := context.Background()

	s, err := ApplyUpdate(ctx, store, Update{Address: strPtr("TALICE")})
	require.NoError(t, err)
	assert.Equal(t, "TALICE", s.Address)
	assert.False(t, s.UpdatedAt.IsZero())

	require.NoError(t, store.SetMarker(ctx, "TALICE", "h1"))
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h1", loaded.Marker)

	// Changing the address drops the marker.
	_, err = ApplyUpdate(ctx, store, Update{Address: strPtr("TBOB")})
	require.NoError(t, err)
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Marker)

	// A cycle that started before the change cannot write its marker.
	err = store.SetMarker(ctx, "TALICE", "h2")
	assert.True(t, errors.Is(err, ErrAddressChanged))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Marker)
}

// markerAdvancingStore advances the marker right after every Load, the way a
// check finishing in the worker interleaves with a settings edit.
type markerAdvancingStore struct {
	*PebbleStore
	marker string
}

func (s *markerAdvancingStore) Load(ctx context.Context) (Settings, error) {
	loaded, err := s.PebbleStore.Load(ctx)
	if err != nil || loaded.Address == "" {
		return loaded, err
	}
	if err := s.PebbleStore.SetMarker(ctx, loaded.Address, s.marker); err != nil {
		return Settings{}, err
	}
	return loaded, nil
}

func TestApplyUpdate_KeepsMarkerAdvancedConcurrently(t *testing.T) {
	ctx := context.Background()
	pebbleStore := newTestPebbleStore(t)
	_, err := ApplyUpdate(ctx, pebbleStore, Update{Address: strPtr("TALICE")})
	require.NoError(t, err)
	require.NoError(t, pebbleStore.SetMarker(ctx, "TALICE", "M0"))

	store := &markerAdvancingStore{PebbleStore: pebbleStore, marker: "M1"}
	s, err := ApplyUpdate(ctx, store, Update{HarvestNode: strPtr("alice2.nem.ninja")})
	require.NoError(t, err)
	assert.Equal(t, "M1", s.Marker)

	loaded, err := pebbleStore.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "M1", loaded.Marker, "an unrelated edit must not roll the marker back")
	assert.Equal(t, "alice2.nem.ninja", loaded.HarvestNode)
}

func TestPebbleStore_SaveKeepsMarkerForSameAddress(t *testing.T) {
	ctx := context.Background()
	store := newTestPebbleStore(t)

	require.NoError(t, store.Save(ctx, Settings{Address: "TALICE", Marker: "h1"}))
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h1", loaded.Marker, "first save for an address stores its marker")

	require.NoError(t, store.Save(ctx, Settings{Address: "TALICE", Marker: "stale", HarvestNode: "n"}))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "h1", loaded.Marker)
	assert.Equal(t, "n", loaded.HarvestNode)

	require.NoError(t, store.Save(ctx, Settings{Address: "TBOB"}))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Marker, "a new address replaces the marker")
}
