package nem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/brojonat/nemnotify/service/metrics"
)

var (
	// ErrNetwork means no candidate node answered with HTTP 200.
	ErrNetwork = errors.New("no node reachable")

	// ErrBadResponse means a node answered 200 with a body we could not use.
	ErrBadResponse = errors.New("bad response from node")

	// ErrNotConfigured means a required address or node setting is missing.
	ErrNotConfigured = errors.New("not configured")
)

// maxBodySize caps how much of a node response we read.
const maxBodySize = 8 << 20

// Client queries NIS nodes over HTTP with ordered failover.
// It records the last failure so callers can report it without
// propagating errors through the notification path.
//
// A client built without fixed nodes picks the built-in node list of the
// network each queried address belongs to.
type Client struct {
	nodes      NodeSet
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	lastErr string
}

// NewClient creates a client over nodes. An empty nodes selects the network
// defaults per address. If httpClient is nil a client with a 10 second
// timeout is used. If metrics is nil no metrics are recorded.
func NewClient(nodes NodeSet, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		nodes:      nodes,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// NodesFor returns the nodes queried for address, in order.
func (c *Client) NodesFor(address string) NodeSet {
	if len(c.nodes) > 0 {
		return c.nodes
	}
	return DefaultNodes(NetworkForAddress(address))
}

// LastError returns the most recent network failure, or "" if the last query succeeded.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) setLastError(s string) {
	c.mu.Lock()
	c.lastErr = s
	c.mu.Unlock()
}

// Query issues GET path against candidates in order and returns the first
// 200 body.
func (c *Client) Query(ctx context.Context, candidates NodeSet, path string) ([]byte, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrNotConfigured)
	}

	var errs []error
	for _, node := range candidates {
		body, err := c.get(ctx, node, path)
		if err == nil {
			c.setLastError("")
			return body, nil
		}
		c.logger.WarnContext(ctx, "node query failed",
			"node", node.String(),
			"path", path,
			"error", err,
		)
		errs = append(errs, fmt.Errorf("%s: %w", node, err))
		if ctx.Err() != nil {
			break
		}
	}

	joined := errors.Join(errs...)
	c.setLastError(joined.Error())
	return nil, fmt.Errorf("%w: %w", ErrNetwork, joined)
}

// get performs one request. Non-200 statuses are returned as errors.
func (c *Client) get(ctx context.Context, node Node, path string) ([]byte, error) {
	start := time.Now()
	status := "success"
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordNodeCall(endpointLabel(path), status, node.String(), time.Since(start).Seconds())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, node.URL(path), nil)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status = "error"
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		status = "error"
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

// Direction selects the incoming or outgoing transfers endpoint.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Transfers returns one page (newest first) of transfers for address that are
// strictly older than cursor. An empty cursor returns the newest page.
func (c *Client) Transfers(ctx context.Context, direction Direction, address, cursor string) ([]Transaction, error) {
	if direction != Outgoing {
		direction = Incoming
	}
	address = NormalizeAddress(address)
	if address == "" {
		return nil, fmt.Errorf("%w: address", ErrNotConfigured)
	}

	q := url.Values{}
	q.Set("address", address)
	if cursor != "" {
		q.Set("hash", cursor)
	}
	path := "/account/transfers/" + string(direction) + "?" + q.Encode()

	body, err := c.Query(ctx, c.NodesFor(address), path)
	if err != nil {
		return nil, err
	}
	txns, err := parseTransactions(body)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to parse transfers page",
			"address", address,
			"direction", direction,
			"error", err,
		)
		return nil, err
	}

	c.logger.DebugContext(ctx, "fetched transfers page",
		"address", address,
		"direction", direction,
		"cursor", cursor,
		"count", len(txns),
	)
	return txns, nil
}

// IncomingTransfers returns one page of incoming transfers older than cursor.
func (c *Client) IncomingTransfers(ctx context.Context, address, cursor string) ([]Transaction, error) {
	return c.Transfers(ctx, Incoming, address, cursor)
}

// OutgoingTransfers returns one page of outgoing transfers older than cursor.
func (c *Client) OutgoingTransfers(ctx context.Context, address, cursor string) ([]Transaction, error) {
	return c.Transfers(ctx, Outgoing, address, cursor)
}

// OwnedMosaics returns every mosaic held by address.
func (c *Client) OwnedMosaics(ctx context.Context, address string) ([]Mosaic, error) {
	address = NormalizeAddress(address)
	if address == "" {
		return nil, fmt.Errorf("%w: address", ErrNotConfigured)
	}
	body, err := c.Query(ctx, c.NodesFor(address), "/account/mosaic/owned?address="+url.QueryEscape(address))
	if err != nil {
		return nil, err
	}
	return parseMosaics(body)
}

// AccountStatus returns the harvesting status of address as reported by node,
// e.g. "UNLOCKED" or "LOCKED". Only node is queried.
func (c *Client) AccountStatus(ctx context.Context, address, node string) (string, error) {
	address = NormalizeAddress(address)
	if address == "" || node == "" {
		return "", ErrNotConfigured
	}
	n, err := ParseNode(node)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	body, err := c.Query(ctx, NodeSet{n}, "/account/status?address="+url.QueryEscape(address))
	if err != nil {
		return "", err
	}
	return parseAccountStatus(body)
}

// endpointLabel keeps metric cardinality bounded by dropping the query string.
func endpointLabel(path string) string {
	if u, err := url.Parse(path); err == nil {
		return u.Path
	}
	return "unknown"
}
