package nem

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/nemnotify/service/metrics"
)

// newTestClient creates a client over the given test servers, in order.
func newTestClient(t *testing.T, servers ...*httptest.Server) *Client {
	t.Helper()
	nodes := make(NodeSet, 0, len(servers))
	for _, s := range servers {
		nodes = append(nodes, nodeFor(t, s))
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(nodes, nil, metrics.NewMetrics(prometheus.NewRegistry()), logger)
}

func nodeFor(t *testing.T, s *httptest.Server) Node {
	t.Helper()
	node, err := ParseNode(strings.TrimPrefix(s.URL, "http://"))
	require.NoError(t, err)
	return node
}

func statusServer(code int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}))
}

func bodyServer(body string, hits *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
}

const transfersPage = `{"data":[
 {"meta":{"hash":{"data":"h2"},"height":102,"id":2},
  "transaction":{"type":257,"timeStamp":100,"amount":2000000,"fee":50000,
   "signer":"abc","recipient":"TALICE",
   "mosaics":[{"mosaicId":{"namespaceId":"nem","name":"xem"},"quantity":500000}],
   "message":{"type":1,"payload":"68656c6c6f"}}},
 {"meta":{"hash":{"data":"h1"},"height":101,"id":1},
  "transaction":{"type":4100,"timeStamp":50,"fee":150000,"signer":"cosig",
   "otherTrans":{"type":257,"timeStamp":49,"amount":1000000,"recipient":"TALICE"}}}
]}`

func TestQuery_FailsOverInOrder(t *testing.T) {
	down := statusServer(http.StatusServiceUnavailable)
	defer down.Close()
	var hits int32
	up := bodyServer(`{"data":[]}`, &hits)
	defer up.Close()
	var laterHits int32
	later := bodyServer(`{"data":[]}`, &laterHits)
	defer later.Close()

	client := newTestClient(t, down, up, later)

	body, err := client.Query(context.Background(), client.NodesFor("TALICE"), "/account/transfers/incoming?address=TALICE")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, int32(0), atomic.LoadInt32(&laterHits), "nodes after the first success must not be queried")
	assert.Empty(t, client.LastError())
}

func TestQuery_AllNodesFail(t *testing.T) {
	a := statusServer(http.StatusServiceUnavailable)
	defer a.Close()
	b := statusServer(http.StatusNotFound)
	defer b.Close()

	client := newTestClient(t, a, b)

	_, err := client.Query(context.Background(), client.NodesFor("TALICE"), "/account/status?address=TALICE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetwork))
	assert.Contains(t, client.LastError(), "status 503")
	assert.Contains(t, client.LastError(), "status 404")
}

func TestQuery_UnreachableNode(t *testing.T) {
	dead := statusServer(http.StatusOK)
	dead.Close()
	up := bodyServer(`{"status":"UNLOCKED"}`, nil)
	defer up.Close()

	client := newTestClient(t, dead, up)

	body, err := client.Query(context.Background(), client.NodesFor("TALICE"), "/account/status")
	require.NoError(t, err)
	assert.Contains(t, string(body), "UNLOCKED")
}

func TestQuery_ExplicitNodesBypassNodeList(t *testing.T) {
	var listHits int32
	listed := bodyServer(`{"status":"LOCKED"}`, &listHits)
	defer listed.Close()
	override := bodyServer(`{"status":"UNLOCKED"}`, nil)
	defer override.Close()

	client := newTestClient(t, listed)

	body, err := client.Query(context.Background(), NodeSet{nodeFor(t, override)}, "/account/status")
	require.NoError(t, err)
	assert.Contains(t, string(body), "UNLOCKED")
	assert.Equal(t, int32(0), atomic.LoadInt32(&listHits))
}

func TestQuery_LastErrorClearedOnSuccess(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)

	_, err := client.Query(context.Background(), client.NodesFor("TALICE"), "/x")
	require.Error(t, err)
	assert.NotEmpty(t, client.LastError())

	fail.Store(false)
	_, err = client.Query(context.Background(), client.NodesFor("TALICE"), "/x")
	require.NoError(t, err)
	assert.Empty(t, client.LastError())
}

func TestQuery_NoNodes(t *testing.T) {
	client := NewClient(nil, nil, nil, nil)

	_, err := client.Query(context.Background(), nil, "/x")
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestNodesFor(t *testing.T) {
	t.Run("network follows the address", func(t *testing.T) {
		client := NewClient(nil, nil, nil, nil)

		assert.Equal(t, DefaultNodes(Mainnet), client.NodesFor("NALICE"))
		assert.Equal(t, DefaultNodes(Testnet), client.NodesFor("TALICE"))
		assert.Equal(t, DefaultNodes(Testnet), client.NodesFor("t-alice-bob"))
	})

	t.Run("fixed nodes serve every network", func(t *testing.T) {
		fixed := NodeSet{{Host: "my.node", Port: 7891}}
		client := NewClient(fixed, nil, nil, nil)

		assert.Equal(t, fixed, client.NodesFor("NALICE"))
		assert.Equal(t, fixed, client.NodesFor("TALICE"))
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestClient_QueriesTheAddressNetwork(t *testing.T) {
	var hosts []string
	transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		hosts = append(hosts, r.URL.Host)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`{"data":[]}`)),
			Header:     make(http.Header),
		}, nil
	})
	client := NewClient(nil, &http.Client{Transport: transport}, nil, nil)
	ctx := context.Background()

	_, err := client.IncomingTransfers(ctx, "TALICE", "")
	require.NoError(t, err)
	_, err = client.OwnedMosaics(ctx, "TALICE")
	require.NoError(t, err)
	_, err = client.OwnedMosaics(ctx, "NALICE")
	require.NoError(t, err)

	assert.Equal(t, []string{"bob.nem.ninja:7890", "bob.nem.ninja:7890", "bigalice3.nem.ninja:7890"}, hosts)
}

func TestAccountStatus_BadNode(t *testing.T) {
	client := NewClient(nil, nil, nil, nil)

	_, err := client.AccountStatus(context.Background(), "TREMOTE", "host:abc")
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestTransfers_ParsesPage(t *testing.T) {
	var gotPath, gotAddress, gotHash string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAddress = r.URL.Query().Get("address")
		gotHash = r.URL.Query().Get("hash")
		_, _ = io.WriteString(w, transfersPage)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)

	txns, err := client.IncomingTransfers(context.Background(), "talice-bob", "h9")
	require.NoError(t, err)
	assert.Equal(t, "/account/transfers/incoming", gotPath)
	assert.Equal(t, "TALICEBOB", gotAddress)
	assert.Equal(t, "h9", gotHash)

	require.Len(t, txns, 2)
	assert.Equal(t, "h2", txns[0].Hash)
	assert.Equal(t, KindRegular, txns[0].Kind)
	assert.Equal(t, "2.5", txns[0].TotalAmount(NativeMosaic).String())
	assert.Equal(t, "hello", txns[0].MessageText())

	assert.Equal(t, "h1", txns[1].Hash)
	assert.Equal(t, KindMultisig, txns[1].Kind)
	assert.Equal(t, TypeMultisig, txns[1].Outer.Type)
	assert.Equal(t, TypeTransfer, txns[1].Type())
	assert.Equal(t, "1", txns[1].TotalAmount(NativeMosaic).String())
}

func TestTransfers_OutgoingOmitsEmptyCursor(t *testing.T) {
	var gotPath string
	var hasHash bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		hasHash = r.URL.Query().Has("hash")
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)

	txns, err := client.OutgoingTransfers(context.Background(), "TALICE", "")
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.Equal(t, "/account/transfers/outgoing", gotPath)
	assert.False(t, hasHash)
}

func TestTransfers_BadResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing data field", body: `{"items":[]}`},
		{name: "not json", body: `<html>oops</html>`},
		{name: "missing hash", body: `{"data":[{"meta":{},"transaction":{"type":257}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := bodyServer(tt.body, nil)
			defer srv.Close()
			client := newTestClient(t, srv)

			_, err := client.IncomingTransfers(context.Background(), "TALICE", "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBadResponse))
			assert.False(t, errors.Is(err, ErrNetwork))
		})
	}
}

func TestTransfers_RequiresAddress(t *testing.T) {
	client := NewClient(DefaultNodes(Testnet), nil, nil, nil)

	_, err := client.IncomingTransfers(context.Background(), "  ", "")
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestOwnedMosaics(t *testing.T) {
	srv := bodyServer(`{"data":[
		{"mosaicId":{"namespaceId":"nem","name":"xem"},"quantity":1500000},
		{"mosaicId":{"namespaceId":"acme","name":"token"},"quantity":42}
	]}`, nil)
	defer srv.Close()
	client := newTestClient(t, srv)

	mosaics, err := client.OwnedMosaics(context.Background(), "TALICE")
	require.NoError(t, err)
	require.Len(t, mosaics, 2)
	assert.Equal(t, NativeMosaic, mosaics[0].ID)
	assert.Equal(t, "1.5", mosaics[0].Value(6).String())
	assert.Equal(t, "acme:token", mosaics[1].ID.String())
	assert.Equal(t, int64(42), mosaics[1].Quantity)
}

func TestAccountStatus(t *testing.T) {
	srv := bodyServer(`{"status":"UNLOCKED","remoteStatus":"ACTIVE"}`, nil)
	defer srv.Close()
	client := NewClient(nil, nil, nil, nil)

	status, err := client.AccountStatus(context.Background(), "TREMOTE", nodeFor(t, srv).String())
	require.NoError(t, err)
	assert.Equal(t, "UNLOCKED", status)
}

func TestAccountStatus_MissingStatus(t *testing.T) {
	srv := bodyServer(`{"remoteStatus":"ACTIVE"}`, nil)
	defer srv.Close()
	client := NewClient(nil, nil, nil, nil)

	_, err := client.AccountStatus(context.Background(), "TREMOTE", nodeFor(t, srv).String())
	assert.True(t, errors.Is(err, ErrBadResponse))
}

func TestAccountStatus_NotConfigured(t *testing.T) {
	client := NewClient(nil, nil, nil, nil)

	_, err := client.AccountStatus(context.Background(), "", "node.example")
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = client.AccountStatus(context.Background(), "TREMOTE", "")
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/account/status", endpointLabel("/account/status?address=TALICE"))
	assert.Equal(t, "/account/transfers/incoming", endpointLabel("/account/transfers/incoming"))
}
