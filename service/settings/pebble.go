package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/brojonat/nemnotify/service/nem"
)

var settingsKey = []byte("settings")

// PebbleStore keeps Settings in a local pebble database, for single-host
// deployments without Postgres.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

func NewPebbleStore(storeDir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Join(storeDir, "nemnotify-settings"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (ps *PebbleStore) Load(_ context.Context) (Settings, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.load()
}

func (ps *PebbleStore) load() (Settings, error) {
	value, closer, err := ps.db.Get(settingsKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("getting settings: %w", err)
	}
	defer closer.Close()

	var s Settings
	if err := json.Unmarshal(value, &s); err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	return s, nil
}

func (ps *PebbleStore) Save(_ context.Context, s Settings) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	current, err := ps.load()
	if err != nil {
		return err
	}
	if current.Address == s.Address {
		s.Marker = current.Marker
	}
	return ps.save(s)
}

func (ps *PebbleStore) save(s Settings) error {
	value, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := ps.db.Set(settingsKey, value, pebble.Sync); err != nil {
		return fmt.Errorf("setting settings: %w", err)
	}
	return nil
}

func (ps *PebbleStore) SetMarker(_ context.Context, address, marker string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	s, err := ps.load()
	if err != nil {
		return err
	}
	if s.Address != nem.NormalizeAddress(address) {
		return ErrAddressChanged
	}
	s.Marker = marker
	s.UpdatedAt = time.Now().UTC()
	return ps.save(s)
}

func (ps *PebbleStore) Close() error {
	return ps.db.Close()
}
