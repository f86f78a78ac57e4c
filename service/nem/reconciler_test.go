package nem

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/nemnotify/service/metrics"
)

// fakeHistory serves a synthetic newest-first transfer history the way NIS
// does: each page holds up to pageSize transactions older than the cursor.
type fakeHistory struct {
	txns     []Transaction
	pageSize int
	calls    int
	failOn   int  // 1-based call number that fails; 0 never fails
	ignoreAt bool // replay the first page regardless of cursor
}

func newFakeHistory(n int) *fakeHistory {
	h := &fakeHistory{pageSize: DefaultPageSize}
	for i := n; i >= 1; i-- {
		h.txns = append(h.txns, Transaction{
			Hash:  fmt.Sprintf("tx%03d", i),
			Kind:  KindRegular,
			Outer: TransferData{Type: TypeTransfer, TimeStamp: int64(i)},
		})
	}
	return h
}

func (h *fakeHistory) Transfers(ctx context.Context, direction Direction, address, cursor string) ([]Transaction, error) {
	h.calls++
	if h.failOn == h.calls {
		return nil, fmt.Errorf("%w: simulated", ErrNetwork)
	}

	start := 0
	if cursor != "" && !h.ignoreAt {
		start = len(h.txns)
		for i, txn := range h.txns {
			if txn.Hash == cursor {
				start = i + 1
				break
			}
		}
	}
	end := start + h.pageSize
	if end > len(h.txns) {
		end = len(h.txns)
	}
	return append([]Transaction(nil), h.txns[start:end]...), nil
}

func hashes(txns []Transaction) []string {
	out := make([]string, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.Hash)
	}
	return out
}

func newTestReconciler(f TransferFetcher, opts ReconcilerOptions) *Reconciler {
	return NewReconciler(f, opts, metrics.NewMetrics(prometheus.NewRegistry()), nil)
}

func TestReconcile_StopsAtMarker(t *testing.T) {
	for _, markerIdx := range []int{0, 1, 24, 25, 26, 60, 79} {
		t.Run(fmt.Sprintf("marker at %d", markerIdx), func(t *testing.T) {
			h := newFakeHistory(80)
			marker := h.txns[markerIdx].Hash
			r := newTestReconciler(h, ReconcilerOptions{})

			res := r.Reconcile(context.Background(), "TALICE", marker)

			assert.Equal(t, StopMarker, res.Stop)
			assert.Equal(t, hashes(h.txns[:markerIdx]), hashes(res.Transactions))
			assert.NotContains(t, hashes(res.Transactions), marker)
			assert.Equal(t, markerIdx/DefaultPageSize+1, h.calls)
		})
	}
}

func TestReconcile_SingleShortPage(t *testing.T) {
	h := newFakeHistory(7)
	r := newTestReconciler(h, ReconcilerOptions{})

	got := r.TransactionsSince(context.Background(), "TALICE", "")

	assert.Equal(t, 1, h.calls)
	assert.Equal(t, hashes(h.txns), hashes(got))
}

func TestReconcile_Pagination(t *testing.T) {
	h := newFakeHistory(2*DefaultPageSize + 3)
	r := newTestReconciler(h, ReconcilerOptions{})

	res := r.Reconcile(context.Background(), "TALICE", "")

	assert.Equal(t, 3, h.calls)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, StopShortPage, res.Stop)
	require.Len(t, res.Transactions, 2*DefaultPageSize+3)
	assert.Equal(t, hashes(h.txns), hashes(res.Transactions))
	assert.Equal(t, "tx053", res.NewestHash())
}

func TestReconcile_ExactMultipleEndsOnEmptyPage(t *testing.T) {
	h := newFakeHistory(2 * DefaultPageSize)
	r := newTestReconciler(h, ReconcilerOptions{})

	res := r.Reconcile(context.Background(), "TALICE", "")

	assert.Equal(t, StopEmptyPage, res.Stop)
	assert.Equal(t, 3, h.calls)
	assert.Len(t, res.Transactions, 2*DefaultPageSize)
}

func TestReconcile_FailSoftOnSecondPage(t *testing.T) {
	h := newFakeHistory(60)
	h.failOn = 2
	r := newTestReconciler(h, ReconcilerOptions{})

	res := r.Reconcile(context.Background(), "TALICE", "")

	assert.Equal(t, StopFetchError, res.Stop)
	assert.True(t, errors.Is(res.Err, ErrNetwork))
	assert.Equal(t, hashes(h.txns[:DefaultPageSize]), hashes(res.Transactions))
}

func TestReconcile_FirstPageFails(t *testing.T) {
	h := newFakeHistory(10)
	h.failOn = 1
	r := newTestReconciler(h, ReconcilerOptions{})

	got := r.TransactionsSince(context.Background(), "TALICE", "tx001")

	assert.Empty(t, got)
}

func TestReconcile_MarkerNotFoundWalksToEnd(t *testing.T) {
	h := newFakeHistory(30)
	r := newTestReconciler(h, ReconcilerOptions{})

	res := r.Reconcile(context.Background(), "TALICE", "gone")

	assert.Equal(t, StopShortPage, res.Stop)
	assert.Len(t, res.Transactions, 30)
}

func TestReconcile_OverlappingPagesTerminate(t *testing.T) {
	h := newFakeHistory(100)
	h.ignoreAt = true
	r := newTestReconciler(h, ReconcilerOptions{})

	res := r.Reconcile(context.Background(), "TALICE", "")

	assert.Equal(t, StopStalled, res.Stop)
	assert.Equal(t, 2, h.calls)
	assert.Equal(t, hashes(h.txns[:DefaultPageSize]), hashes(res.Transactions))
}

func TestReconcile_PageLimit(t *testing.T) {
	h := newFakeHistory(500)
	r := newTestReconciler(h, ReconcilerOptions{MaxPages: 3})

	res := r.Reconcile(context.Background(), "TALICE", "")

	assert.Equal(t, StopPageLimit, res.Stop)
	assert.Equal(t, 3, h.calls)
	assert.Len(t, res.Transactions, 3*DefaultPageSize)
}

func TestReconcile_CustomPageSize(t *testing.T) {
	h := newFakeHistory(12)
	h.pageSize = 5
	r := newTestReconciler(h, ReconcilerOptions{PageSize: 5})

	res := r.Reconcile(context.Background(), "TALICE", "tx002")

	assert.Equal(t, StopMarker, res.Stop)
	assert.Equal(t, 3, h.calls)
	assert.Equal(t, hashes(h.txns[:10]), hashes(res.Transactions))
}

func TestNewReconciler_Defaults(t *testing.T) {
	r := NewReconciler(newFakeHistory(0), ReconcilerOptions{}, nil, nil)

	assert.Equal(t, DefaultPageSize, r.opts.PageSize)
	assert.Equal(t, DefaultMaxPages, r.opts.MaxPages)
	assert.Equal(t, Incoming, r.opts.Direction)

	res := r.Reconcile(context.Background(), "TALICE", "")
	assert.Equal(t, StopEmptyPage, res.Stop)
	assert.Empty(t, res.NewestHash())
}
