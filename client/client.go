// Package client is the HTTP client for the nemnotify server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Settings is the notifier configuration stored on the server.
type Settings struct {
	Address       string    `json:"address"`
	Network       string    `json:"network,omitempty"`
	Marker        string    `json:"marker"`
	HarvestRemote string    `json:"harvest_remote"`
	HarvestNode   string    `json:"harvest_node"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SettingsUpdate is a partial settings change. Nil fields are left alone and
// an empty string clears a field.
type SettingsUpdate struct {
	Address       *string `json:"address,omitempty"`
	HarvestRemote *string `json:"harvest_remote,omitempty"`
	HarvestNode   *string `json:"harvest_node,omitempty"`
}

// MosaicQuantity is a mosaic balance. Quantity is nil when it could not be
// determined.
type MosaicQuantity struct {
	Address   string  `json:"address"`
	Namespace string  `json:"namespace"`
	Name      string  `json:"name"`
	Known     bool    `json:"known"`
	Quantity  *string `json:"quantity"`
}

// HarvestingStatus is the result of a harvesting check.
type HarvestingStatus struct {
	Remote    string `json:"remote"`
	Node      string `json:"node"`
	Active    bool   `json:"active"`
	Status    string `json:"status"`
	LastError string `json:"last_error,omitempty"`
}

// Transaction is a transfer as listed by the server.
type Transaction struct {
	Hash      string    `json:"hash"`
	Height    int64     `json:"height"`
	Type      string    `json:"type"`
	Multisig  bool      `json:"multisig"`
	Signer    string    `json:"signer"`
	Recipient string    `json:"recipient"`
	Amount    string    `json:"amount"` // XEM, decimal string
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TransactionList is the result of a reconciliation against a marker.
type TransactionList struct {
	Address      string        `json:"address"`
	Direction    string        `json:"direction"`
	Transactions []Transaction `json:"transactions"` // newest first
	Marker       string        `json:"marker"`
	Pages        int           `json:"pages"`
	Stop         string        `json:"stop"`
	Error        string        `json:"error,omitempty"`
}

// Notification is an entry of the server's notification log.
type Notification struct {
	ID      int64     `json:"id"`
	Kind    string    `json:"kind"`
	Address string    `json:"address"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Marker  *string   `json:"marker,omitempty"`
	TxCount int       `json:"tx_count"`
	SentAt  time.Time `json:"sent_at"`
}

// Client is the HTTP client for the nemnotify server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// do sends a request with an optional JSON body, checks the status and
// decodes the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in interface{}, wantStatus int, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetSettings returns the stored settings.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := c.do(ctx, http.MethodGet, "/api/v1/settings", nil, http.StatusOK, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSettings applies a partial update and returns the new settings.
// Changing the address resets the marker on the server.
func (c *Client) UpdateSettings(ctx context.Context, u SettingsUpdate) (*Settings, error) {
	var s Settings
	if err := c.do(ctx, http.MethodPut, "/api/v1/settings", u, http.StatusOK, &s); err != nil {
		return nil, err
	}
	c.logger.Debug("settings updated", "address", s.Address)
	return &s, nil
}

// MosaicQuantity returns how much of namespace:name address holds.
func (c *Client) MosaicQuantity(ctx context.Context, address, namespace, name string, divisibility int) (*MosaicQuantity, error) {
	q := url.Values{}
	q.Set("namespace", namespace)
	q.Set("name", name)
	q.Set("divisibility", strconv.Itoa(divisibility))
	path := "/api/v1/mosaics/" + url.PathEscape(address) + "?" + q.Encode()

	var m MosaicQuantity
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Harvesting checks harvesting status. Empty remote or node use the stored settings.
func (c *Client) Harvesting(ctx context.Context, remote, node string) (*HarvestingStatus, error) {
	q := url.Values{}
	if remote != "" {
		q.Set("remote", remote)
	}
	if node != "" {
		q.Set("node", node)
	}
	path := "/api/v1/harvesting"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var h HarvestingStatus
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Transactions lists transfers of address newer than marker. direction is
// "incoming" or "outgoing"; empty means incoming.
func (c *Client) Transactions(ctx context.Context, address, marker, direction string) (*TransactionList, error) {
	q := url.Values{}
	if marker != "" {
		q.Set("marker", marker)
	}
	if direction != "" {
		q.Set("direction", direction)
	}
	path := "/api/v1/transactions/" + url.PathEscape(address)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list TransactionList
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Notifications lists sent notifications, newest first. An empty kind lists all.
func (c *Client) Notifications(ctx context.Context, kind string, limit int) ([]*Notification, error) {
	q := url.Values{}
	if kind != "" {
		q.Set("kind", kind)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/notifications"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var response struct {
		Notifications []*Notification `json:"notifications"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return response.Notifications, nil
}

// UpsertSchedules creates or updates the periodic check schedules.
func (c *Client) UpsertSchedules(ctx context.Context, interval time.Duration, notifyOnFirstRun bool) error {
	reqBody := map[string]interface{}{
		"interval":            interval.String(),
		"notify_on_first_run": notifyOnFirstRun,
	}
	if err := c.do(ctx, http.MethodPut, "/api/v1/schedules", reqBody, http.StatusOK, nil); err != nil {
		return err
	}
	c.logger.Debug("schedules upserted", "interval", interval)
	return nil
}

// DeleteSchedules stops the periodic checks.
func (c *Client) DeleteSchedules(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/schedules", nil, http.StatusNoContent, nil)
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
