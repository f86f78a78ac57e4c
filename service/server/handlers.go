package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/brojonat/nemnotify/service/db"
	"github.com/brojonat/nemnotify/service/nem"
	"github.com/brojonat/nemnotify/service/notify"
	"github.com/brojonat/nemnotify/service/settings"
	"github.com/brojonat/nemnotify/service/temporal"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxAddressLength   = 100     // NEM addresses are 40 chars, 46 with dashes
	maxDivisibility    = 6
	minCheckInterval   = time.Minute
	maxCheckInterval   = 7 * 24 * time.Hour
)

var (
	// Valid NEM address: base32 alphabet, 40 chars once dashes are removed
	validAddressRegex = regexp.MustCompile(`^[A-Z2-7]{40}$`)
)

// MosaicQuantifier answers mosaic balance queries. *notify.MosaicLookup satisfies it.
type MosaicQuantifier interface {
	Quantity(ctx context.Context, address, namespace, name string, divisibility int32) notify.Quantity
}

// NotificationLister reads the notification log. *db.Store satisfies it.
type NotificationLister interface {
	ListNotifications(ctx context.Context, kind string, limit int32) ([]*db.Notification, error)
}

type settingsResponse struct {
	Address       string    `json:"address"`
	Network       string    `json:"network,omitempty"`
	Marker        string    `json:"marker"`
	HarvestRemote string    `json:"harvest_remote"`
	HarvestNode   string    `json:"harvest_node"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func settingsToResponse(s settings.Settings) settingsResponse {
	resp := settingsResponse{
		Address:       s.Address,
		Marker:        s.Marker,
		HarvestRemote: s.HarvestRemote,
		HarvestNode:   s.HarvestNode,
		UpdatedAt:     s.UpdatedAt,
	}
	if s.Address != "" {
		resp.Network = string(s.Network())
	}
	return resp
}

// handleGetSettings returns a handler that returns the stored settings.
// GET /api/v1/settings
func handleGetSettings(store settings.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := store.Load(r.Context())
		if err != nil {
			logger.Error("failed to load settings", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, settingsToResponse(s), http.StatusOK)
	})
}

// handleUpdateSettings returns a handler that applies a partial settings update.
// Changing the monitored address clears its marker.
// PUT /api/v1/settings
func handleUpdateSettings(store settings.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req settings.Update
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Debug("failed to decode settings request", "error", err)
			if strings.Contains(err.Error(), "http: request body too large") {
				writeError(w, "request body too large: maximum size is 1MB", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		// Empty strings clear a field; anything else must be valid.
		if req.Address != nil && *req.Address != "" {
			if err := validateAddress(*req.Address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if req.HarvestRemote != nil && *req.HarvestRemote != "" {
			if err := validateAddress(*req.HarvestRemote); err != nil {
				writeError(w, "harvest_remote: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		if req.HarvestNode != nil && *req.HarvestNode != "" {
			if _, err := nem.ParseNode(*req.HarvestNode); err != nil {
				writeError(w, "harvest_node: "+err.Error(), http.StatusBadRequest)
				return
			}
		}

		s, err := settings.ApplyUpdate(r.Context(), store, req)
		if err != nil {
			logger.Error("failed to update settings", "error", err)
			writeError(w, "failed to update settings", http.StatusInternalServerError)
			return
		}

		logger.Info("settings updated",
			"address", s.Address,
			"harvest_remote", s.HarvestRemote,
			"harvest_node", s.HarvestNode,
		)
		writeJSON(w, settingsToResponse(s), http.StatusOK)
	})
}

type mosaicQuery struct {
	address      string
	namespace    string
	name         string
	divisibility int32
}

func parseMosaicQuery(address string, r *http.Request) (mosaicQuery, error) {
	query := r.URL.Query()
	q := mosaicQuery{
		namespace: query.Get("namespace"),
		name:      query.Get("name"),
	}
	if err := validateAddress(address); err != nil {
		return q, err
	}
	q.address = normalize(address)
	if q.namespace == "" || q.name == "" {
		return q, errorf("namespace and name are required")
	}
	if d := query.Get("divisibility"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 || n > maxDivisibility {
			return q, errorf("divisibility must be an integer between 0 and %d", maxDivisibility)
		}
		q.divisibility = int32(n)
	}
	return q, nil
}

// handleGetMosaicQuantity returns a handler that reports a mosaic balance.
// GET /api/v1/mosaics/{address}?namespace=N&name=M&divisibility=D
func handleGetMosaicQuantity(mosaics MosaicQuantifier, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, err := parseMosaicQuery(r.PathValue("address"), r)
		if err != nil {
			logger.Debug("invalid mosaic query", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		quantity := mosaics.Quantity(r.Context(), q.address, q.namespace, q.name, q.divisibility)

		resp := map[string]interface{}{
			"address":   q.address,
			"namespace": q.namespace,
			"name":      q.name,
			"known":     quantity.Known,
			"quantity":  nil,
		}
		if quantity.Known {
			resp["quantity"] = quantity.Value.String()
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleGetHarvesting returns a handler that checks harvesting on demand.
// The remote account and node default to the stored settings.
// GET /api/v1/harvesting?remote=R&node=N
func handleGetHarvesting(store settings.Store, checker temporal.HarvestingChecker, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := store.Load(r.Context())
		if err != nil {
			logger.Error("failed to load settings", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		remote, node := s.HarvestRemote, s.HarvestNode
		if v := r.URL.Query().Get("remote"); v != "" {
			if err := validateAddress(v); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			remote = v
		}
		if v := r.URL.Query().Get("node"); v != "" {
			if _, err := nem.ParseNode(v); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			node = v
		}

		report, err := checker.Check(r.Context(), remote, node)
		if errors.Is(err, notify.ErrNotConfigured) {
			writeError(w, "harvesting remote and node are not configured", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to check harvesting", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, report, http.StatusOK)
	})
}

type transactionResponse struct {
	Hash      string    `json:"hash"`
	Height    int64     `json:"height"`
	Type      string    `json:"type"`
	Multisig  bool      `json:"multisig"`
	Signer    string    `json:"signer"`
	Recipient string    `json:"recipient"`
	Amount    string    `json:"amount"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func transactionToResponse(t nem.Transaction) transactionResponse {
	p := t.Payload()
	return transactionResponse{
		Hash:      t.Hash,
		Height:    t.Height,
		Type:      t.Type().String(),
		Multisig:  t.Kind == nem.KindMultisig,
		Signer:    p.Signer,
		Recipient: p.Recipient,
		Amount:    t.TotalAmount(nem.NativeMosaic).String(),
		Message:   t.MessageText(),
		Timestamp: t.Time(),
	}
}

// handleListTransactions returns a handler that reconciles an address
// against a marker and lists everything newer, newest first.
// GET /api/v1/transactions/{address}?marker=H&direction=incoming|outgoing
func handleListTransactions(fetcher nem.TransferFetcher, opts nem.ReconcilerOptions, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		address = normalize(address)

		query := r.URL.Query()
		direction := nem.Direction(query.Get("direction"))
		switch direction {
		case "":
			direction = nem.Incoming
		case nem.Incoming, nem.Outgoing:
		default:
			writeError(w, "invalid direction: must be 'incoming' or 'outgoing'", http.StatusBadRequest)
			return
		}
		marker := query.Get("marker")

		o := opts
		o.Direction = direction
		res := nem.NewReconciler(fetcher, o, nil, logger).Reconcile(r.Context(), address, marker)

		newMarker := res.NewestHash()
		if newMarker == "" {
			newMarker = marker
		}
		txns := make([]transactionResponse, len(res.Transactions))
		for i, t := range res.Transactions {
			txns[i] = transactionToResponse(t)
		}

		resp := map[string]interface{}{
			"address":      address,
			"direction":    direction,
			"transactions": txns,
			"marker":       newMarker,
			"pages":        res.Pages,
			"stop":         res.Stop,
		}
		if res.Err != nil {
			resp["error"] = res.Err.Error()
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

type notificationResponse struct {
	ID      int64     `json:"id"`
	Kind    string    `json:"kind"`
	Address string    `json:"address"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Marker  *string   `json:"marker,omitempty"`
	TxCount int       `json:"tx_count"`
	SentAt  time.Time `json:"sent_at"`
}

// handleListNotifications returns a handler that lists sent notifications.
// GET /api/v1/notifications?kind=payment|harvesting&limit=N
func handleListNotifications(log NotificationLister, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		kind := query.Get("kind")
		if kind != "" && kind != temporal.KindPayment && kind != temporal.KindHarvesting {
			writeError(w, "invalid kind: must be 'payment' or 'harvesting'", http.StatusBadRequest)
			return
		}

		limit := 50
		if v := query.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 1000 {
				writeError(w, "invalid limit: must be between 1 and 1000", http.StatusBadRequest)
				return
			}
			limit = n
		}

		notifications, err := log.ListNotifications(r.Context(), kind, int32(limit))
		if err != nil {
			logger.Error("failed to list notifications", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]notificationResponse, len(notifications))
		for i, n := range notifications {
			resp[i] = notificationResponse{
				ID:      n.ID,
				Kind:    n.Kind,
				Address: n.Address,
				Subject: n.Subject,
				Body:    n.Body,
				Marker:  n.Marker,
				TxCount: n.TxCount,
				SentAt:  n.SentAt,
			}
		}
		writeJSON(w, map[string]interface{}{
			"notifications": resp,
		}, http.StatusOK)
	})
}

// handleUpsertSchedules returns a handler that creates or updates the check schedules.
// PUT /api/v1/schedules
func handleUpsertSchedules(scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Interval         string `json:"interval"`
			NotifyOnFirstRun bool   `json:"notify_on_first_run"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body: must be valid JSON", http.StatusBadRequest)
			return
		}

		interval, err := time.ParseDuration(req.Interval)
		if err != nil {
			writeError(w, "invalid interval: must be a duration like '1h'", http.StatusBadRequest)
			return
		}
		if err := validateCheckInterval(interval); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		input := temporal.CheckPaymentsInput{NotifyOnFirstRun: req.NotifyOnFirstRun}
		if err := scheduler.UpsertCheckSchedules(r.Context(), interval, input); err != nil {
			logger.Error("failed to upsert schedules", "error", err)
			writeError(w, "failed to create schedules", http.StatusInternalServerError)
			return
		}

		logger.Info("check schedules upserted", "interval", interval)
		writeJSON(w, map[string]interface{}{
			"schedules": []string{temporal.PaymentsScheduleID, temporal.HarvestingScheduleID},
			"interval":  interval.String(),
		}, http.StatusOK)
	})
}

// handleDeleteSchedules returns a handler that deletes the check schedules.
// DELETE /api/v1/schedules
func handleDeleteSchedules(scheduler temporal.Scheduler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := scheduler.DeleteCheckSchedules(r.Context()); err != nil {
			logger.Error("failed to delete schedules", "error", err)
			writeError(w, "failed to delete schedules", http.StatusInternalServerError)
			return
		}
		logger.Info("check schedules deleted")
		w.WriteHeader(http.StatusNoContent)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

func normalize(address string) string {
	return nem.NormalizeAddress(address)
}

// validateAddress validates a NEM address. Dashes are allowed.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(normalize(address)) {
		return errorf("invalid address format: must be 40 base32 characters")
	}

	return nil
}

// validateCheckInterval validates a schedule interval for reasonable bounds.
func validateCheckInterval(interval time.Duration) error {
	if interval < minCheckInterval {
		return errorf("interval must be at least %v", minCheckInterval)
	}
	if interval > maxCheckInterval {
		return errorf("interval cannot exceed %v", maxCheckInterval)
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
