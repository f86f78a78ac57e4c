package nem

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/nemnotify/service/metrics"
)

const (
	// DefaultPageSize is the number of transactions NIS returns per transfers page.
	DefaultPageSize = 25

	// DefaultMaxPages bounds how far back a single reconciliation will walk.
	DefaultMaxPages = 40
)

// TransferFetcher returns one page of transfers older than cursor, newest first.
// *Client satisfies it; tests substitute an in-memory history.
type TransferFetcher interface {
	Transfers(ctx context.Context, direction Direction, address, cursor string) ([]Transaction, error)
}

// StopReason records why a reconciliation finished.
type StopReason string

const (
	StopMarker     StopReason = "marker"
	StopShortPage  StopReason = "short_page"
	StopEmptyPage  StopReason = "empty_page"
	StopFetchError StopReason = "fetch_error"
	StopPageLimit  StopReason = "page_limit"
	StopStalled    StopReason = "stalled"
)

// ReconcilerOptions configures a Reconciler. Zero values take defaults.
type ReconcilerOptions struct {
	PageSize  int
	MaxPages  int
	Direction Direction
}

// Reconciler walks the backwards-only transfers API until it reaches a
// marker, and returns everything newer than it.
//
// It holds no state between calls. Callers must not run two reconciliations
// for the same address and marker concurrently.
type Reconciler struct {
	fetcher TransferFetcher
	opts    ReconcilerOptions
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler. If metrics is nil no metrics are recorded.
func NewReconciler(fetcher TransferFetcher, opts ReconcilerOptions, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Direction == "" {
		opts.Direction = Incoming
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Reconciler{
		fetcher: fetcher,
		opts:    opts,
		metrics: m,
		logger:  logger,
	}
}

// Reconciliation is the outcome of one reconciliation pass.
type Reconciliation struct {
	// Transactions strictly newer than the marker, newest first, without duplicates.
	Transactions []Transaction
	Pages        int
	Stop         StopReason
	// Err is the fetch error when Stop is StopFetchError.
	Err error
}

// NewestHash returns the hash of the newest collected transaction, or "".
func (r *Reconciliation) NewestHash() string {
	if len(r.Transactions) == 0 {
		return ""
	}
	return r.Transactions[0].Hash
}

// reconcileState is the pagination state machine.
type reconcileState struct {
	cursor    string
	collected []Transaction
	seen      map[string]struct{}
	pages     int
}

// TransactionsSince returns every transaction to address strictly after
// marker, newest first. An empty marker walks back until a short page or the
// page limit. It never fails: on error it returns what was collected so far.
func (r *Reconciler) TransactionsSince(ctx context.Context, address, marker string) []Transaction {
	return r.Reconcile(ctx, address, marker).Transactions
}

// Reconcile is TransactionsSince with the termination details.
func (r *Reconciler) Reconcile(ctx context.Context, address, marker string) *Reconciliation {
	start := time.Now()
	st := &reconcileState{seen: make(map[string]struct{})}

	var stop StopReason
	var fetchErr error
	for stop == "" {
		stop, fetchErr = r.step(ctx, st, address, marker)
	}

	result := &Reconciliation{
		Transactions: st.collected,
		Pages:        st.pages,
		Stop:         stop,
		Err:          fetchErr,
	}

	if r.metrics != nil {
		r.metrics.RecordReconciliation(string(r.opts.Direction), string(stop), st.pages, len(st.collected), time.Since(start).Seconds())
	}

	level := slog.LevelInfo
	if stop == StopFetchError || stop == StopStalled || stop == StopPageLimit {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "reconciliation finished",
		"address", address,
		"direction", r.opts.Direction,
		"marker", marker,
		"pages", st.pages,
		"count", len(st.collected),
		"stop", stop,
		"error", fetchErr,
	)
	return result
}

// step fetches one page and folds it into st. It returns a non-empty
// StopReason when the walk is over.
func (r *Reconciler) step(ctx context.Context, st *reconcileState, address, marker string) (StopReason, error) {
	if st.pages >= r.opts.MaxPages {
		return StopPageLimit, nil
	}

	page, err := r.fetcher.Transfers(ctx, r.opts.Direction, address, st.cursor)
	st.pages++
	if err != nil {
		return StopFetchError, err
	}
	if len(page) == 0 {
		return StopEmptyPage, nil
	}

	added := 0
	for _, txn := range page {
		if marker != "" && txn.Hash == marker {
			return StopMarker, nil
		}
		st.cursor = txn.Hash
		if _, dup := st.seen[txn.Hash]; dup {
			continue
		}
		st.seen[txn.Hash] = struct{}{}
		st.collected = append(st.collected, txn)
		added++
	}

	if len(page) < r.opts.PageSize {
		return StopShortPage, nil
	}
	if added == 0 {
		// The node ignored the cursor and replayed a page we already have.
		return StopStalled, nil
	}
	return "", nil
}
