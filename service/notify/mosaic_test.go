package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/brojonat/nemnotify/service/nem"
)

type mockMosaicSource struct {
	mock.Mock
}

func (m *mockMosaicSource) OwnedMosaics(ctx context.Context, address string) ([]nem.Mosaic, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]nem.Mosaic), args.Error(1)
}

// brokenCache fails every operation.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]nem.Mosaic, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenCache) Set(context.Context, string, []nem.Mosaic, time.Duration) error {
	return errors.New("cache down")
}

var acmeToken = nem.MosaicID{NamespaceID: "acme", Name: "token"}

func TestMosaicQuantity_FetchesAndCaches(t *testing.T) {
	source := new(mockMosaicSource)
	source.On("OwnedMosaics", mock.Anything, "TALICE").Return([]nem.Mosaic{
		{ID: nem.NativeMosaic, Quantity: 7000000},
		{ID: acmeToken, Quantity: 12345},
	}, nil).Once()

	cache := NewMemoryCache(time.Minute)
	defer cache.Stop()
	lookup := NewMosaicLookup(source, cache, time.Minute, nil, nil)

	q := lookup.Quantity(context.Background(), "talice", "acme", "token", 2)
	assert.True(t, q.Known)
	assert.Equal(t, "123.45", q.String())

	// Served from cache, the source is not called again.
	q = lookup.Quantity(context.Background(), "TALICE", "nem", "xem", 6)
	assert.Equal(t, "7", q.String())

	source.AssertExpectations(t)
}

func TestMosaicQuantity_ZeroIsNotUnknown(t *testing.T) {
	source := new(mockMosaicSource)
	source.On("OwnedMosaics", mock.Anything, "TALICE").Return([]nem.Mosaic{}, nil).Once()

	cache := NewMemoryCache(time.Minute)
	defer cache.Stop()
	lookup := NewMosaicLookup(source, cache, time.Minute, nil, nil)

	q := lookup.Quantity(context.Background(), "TALICE", "acme", "token", 0)
	assert.True(t, q.Known)
	assert.Equal(t, "0", q.String())

	// The empty list is cached: a second lookup is a hit, not a miss.
	q = lookup.Quantity(context.Background(), "TALICE", "acme", "token", 0)
	assert.Equal(t, "0", q.String())
	source.AssertExpectations(t)
}

func TestMosaicQuantity_FailedLookupIsUnknown(t *testing.T) {
	source := new(mockMosaicSource)
	source.On("OwnedMosaics", mock.Anything, "TALICE").
		Return(nil, fmt.Errorf("%w: all down", nem.ErrNetwork)).Twice()

	cache := NewMemoryCache(time.Minute)
	defer cache.Stop()
	lookup := NewMosaicLookup(source, cache, time.Minute, nil, nil)

	q := lookup.Quantity(context.Background(), "TALICE", "acme", "token", 0)
	assert.False(t, q.Known)
	assert.Equal(t, "unknown", q.String())

	// Failures are not cached.
	q = lookup.Quantity(context.Background(), "TALICE", "acme", "token", 0)
	assert.False(t, q.Known)
	source.AssertExpectations(t)
}

func TestMosaicQuantity_CacheErrorsDegradeToMiss(t *testing.T) {
	source := new(mockMosaicSource)
	source.On("OwnedMosaics", mock.Anything, "TALICE").
		Return([]nem.Mosaic{{ID: acmeToken, Quantity: 3}}, nil)

	lookup := NewMosaicLookup(source, brokenCache{}, time.Minute, nil, nil)

	q := lookup.Quantity(context.Background(), "TALICE", "acme", "token", 0)
	assert.True(t, q.Known)
	assert.Equal(t, "3", q.String())
}

func TestMosaicQuantity_MissingArguments(t *testing.T) {
	source := new(mockMosaicSource)
	lookup := NewMosaicLookup(source, nil, 0, nil, nil)

	assert.False(t, lookup.Quantity(context.Background(), "", "acme", "token", 0).Known)
	assert.False(t, lookup.Quantity(context.Background(), "TALICE", "", "token", 0).Known)
	source.AssertNotCalled(t, "OwnedMosaics", mock.Anything, mock.Anything)
}
