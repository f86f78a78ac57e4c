package notify

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brojonat/nemnotify/service/metrics"
	"github.com/brojonat/nemnotify/service/nem"
)

// MosaicSource returns the full mosaic holdings of an address.
type MosaicSource interface {
	OwnedMosaics(ctx context.Context, address string) ([]nem.Mosaic, error)
}

// Quantity is a mosaic balance that may be unknown.
// Known is false when the holdings could not be fetched.
type Quantity struct {
	Value decimal.Decimal `json:"value"`
	Known bool            `json:"known"`
}

func (q Quantity) String() string {
	if !q.Known {
		return "unknown"
	}
	return q.Value.String()
}

// MosaicLookup answers "how much of mosaic X does address Y hold",
// caching the full holdings list per address.
type MosaicLookup struct {
	source  MosaicSource
	cache   MosaicCache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewMosaicLookup(source MosaicSource, cache MosaicCache, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *MosaicLookup {
	if ttl <= 0 {
		ttl = DefaultMosaicTTL
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &MosaicLookup{
		source:  source,
		cache:   cache,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// Quantity returns the balance of namespace:name held by address, scaled by
// divisibility. Holding none of it is a known zero; a failed fetch is unknown.
func (l *MosaicLookup) Quantity(ctx context.Context, address, namespace, name string, divisibility int32) Quantity {
	address = nem.NormalizeAddress(address)
	if address == "" || namespace == "" || name == "" {
		return Quantity{}
	}

	holdings, ok := l.holdings(ctx, address)
	if !ok {
		return Quantity{}
	}

	id := nem.MosaicID{NamespaceID: namespace, Name: name}
	for _, m := range holdings {
		if m.ID == id {
			return Quantity{Value: m.Value(divisibility), Known: true}
		}
	}
	return Quantity{Value: decimal.Zero, Known: true}
}

func (l *MosaicLookup) holdings(ctx context.Context, address string) ([]nem.Mosaic, bool) {
	key := MosaicCacheKey(address)

	if l.cache != nil {
		cached, found, err := l.cache.Get(ctx, key)
		switch {
		case err != nil:
			l.recordLookup("error")
			l.logger.WarnContext(ctx, "mosaic cache read failed", "key", key, "error", err)
		case found:
			l.recordLookup("hit")
			return cached, true
		default:
			l.recordLookup("miss")
		}
	}

	holdings, err := l.source.OwnedMosaics(ctx, address)
	if err != nil {
		l.logger.WarnContext(ctx, "failed to fetch mosaic holdings",
			"address", address,
			"error", err,
		)
		return nil, false
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, holdings, l.ttl); err != nil {
			l.logger.WarnContext(ctx, "mosaic cache write failed", "key", key, "error", err)
		}
	}
	return holdings, true
}

func (l *MosaicLookup) recordLookup(result string) {
	if l.metrics != nil {
		l.metrics.RecordCacheLookup(result)
	}
}
