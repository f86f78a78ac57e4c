// Package settings holds the persisted notifier configuration: the monitored
// address, its marker, and the harvesting account to watch.
package settings

import (
	"context"
	"errors"
	"time"

	"github.com/brojonat/nemnotify/service/nem"
)

// ErrAddressChanged is returned by SetMarker when the monitored address was
// changed after the caller loaded it. The marker belongs to the old address
// and is dropped.
var ErrAddressChanged = errors.New("monitored address changed")

// Settings is the notifier state that survives between checks.
type Settings struct {
	Address       string    `json:"address"`
	Marker        string    `json:"marker"`
	HarvestRemote string    `json:"harvest_remote"`
	HarvestNode   string    `json:"harvest_node"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Update is a partial change to Settings. Nil fields are left alone.
type Update struct {
	Address       *string `json:"address,omitempty"`
	HarvestRemote *string `json:"harvest_remote,omitempty"`
	HarvestNode   *string `json:"harvest_node,omitempty"`
}

// Apply returns s with u applied. Changing the address clears the marker so
// the new address starts from a fresh baseline.
func (s Settings) Apply(u Update) Settings {
	if u.Address != nil {
		addr := nem.NormalizeAddress(*u.Address)
		if addr != s.Address {
			s.Address = addr
			s.Marker = ""
		}
	}
	if u.HarvestRemote != nil {
		s.HarvestRemote = nem.NormalizeAddress(*u.HarvestRemote)
	}
	if u.HarvestNode != nil {
		s.HarvestNode = *u.HarvestNode
	}
	return s
}

// Network returns the network of the monitored address.
func (s Settings) Network() nem.Network {
	return nem.NetworkForAddress(s.Address)
}

// Store persists Settings. Load returns zero Settings when nothing is stored.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	// Save stores s. The stored marker is replaced only when s changes the
	// address; otherwise it is kept, so a settings edit racing a check can
	// never move the marker back.
	Save(ctx context.Context, s Settings) error
	// SetMarker stores marker if address is still the monitored address,
	// otherwise it returns ErrAddressChanged.
	SetMarker(ctx context.Context, address, marker string) error
}

// ApplyUpdate applies u to the stored settings and returns what was stored.
func ApplyUpdate(ctx context.Context, store Store, u Update) (Settings, error) {
	current, err := store.Load(ctx)
	if err != nil {
		return Settings{}, err
	}
	next := current.Apply(u)
	next.UpdatedAt = time.Now().UTC()
	if err := store.Save(ctx, next); err != nil {
		return Settings{}, err
	}
	return store.Load(ctx)
}
