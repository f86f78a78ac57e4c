package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/nemnotify/service/metrics"
	"github.com/brojonat/nemnotify/service/nem"
	"github.com/brojonat/nemnotify/service/settings"
)

//go:embed schema.sql
var schemaSQL string

// Store provides database operations for the service: the single settings
// row and the log of sent notifications. It implements settings.Store.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil no query metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) observe(operation, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
	}
}

// Load returns the stored settings, or zero Settings if none were saved.
func (s *Store) Load(ctx context.Context) (out settings.Settings, err error) {
	start := time.Now()
	defer func() { s.observe("load", "settings", start, err) }()

	row := s.pool.QueryRow(ctx, `
		SELECT address, marker, harvest_remote, harvest_node, updated_at
		FROM settings WHERE id = 1`)

	var updatedAt pgtype.Timestamptz
	err = row.Scan(&out.Address, &out.Marker, &out.HarvestRemote, &out.HarvestNode, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return settings.Settings{}, nil
	}
	if err != nil {
		return settings.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	out.UpdatedAt = updatedAt.Time
	return out, nil
}

// Save upserts the settings row. The stored marker is kept unless the
// address changes.
func (s *Store) Save(ctx context.Context, st settings.Settings) (err error) {
	start := time.Now()
	defer func() { s.observe("save", "settings", start, err) }()

	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO settings (id, address, marker, harvest_remote, harvest_node, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			address = EXCLUDED.address,
			marker = CASE WHEN settings.address = EXCLUDED.address
				THEN settings.marker ELSE EXCLUDED.marker END,
			harvest_remote = EXCLUDED.harvest_remote,
			harvest_node = EXCLUDED.harvest_node,
			updated_at = EXCLUDED.updated_at`,
		st.Address, st.Marker, st.HarvestRemote, st.HarvestNode,
		pgtype.Timestamptz{Time: st.UpdatedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// SetMarker advances the marker only while address is still the monitored one.
func (s *Store) SetMarker(ctx context.Context, address, marker string) (err error) {
	start := time.Now()
	defer func() { s.observe("set_marker", "settings", start, err) }()

	tag, err := s.pool.Exec(ctx, `
		UPDATE settings SET marker = $2, updated_at = NOW()
		WHERE id = 1 AND address = $1`,
		nem.NormalizeAddress(address), marker,
	)
	if err != nil {
		return fmt.Errorf("failed to set marker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return settings.ErrAddressChanged
	}
	return nil
}

// Notification is a sent notification as recorded in the log.
type Notification struct {
	ID      int64
	Kind    string // "payment" or "harvesting"
	Address string
	Subject string
	Body    string
	Marker  *string // new marker for payment notifications
	TxCount int
	SentAt  time.Time
}

// RecordNotificationParams contains the parameters for logging a notification.
type RecordNotificationParams struct {
	Kind    string
	Address string
	Subject string
	Body    string
	Marker  *string
	TxCount int
}

// RecordNotification appends a notification to the log.
func (s *Store) RecordNotification(ctx context.Context, params RecordNotificationParams) (n *Notification, err error) {
	start := time.Now()
	defer func() { s.observe("insert", "notifications", start, err) }()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (kind, address, subject, body, marker, tx_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, kind, address, subject, body, marker, tx_count, sent_at`,
		params.Kind, params.Address, params.Subject, params.Body,
		pgtextFromStringPtr(params.Marker), params.TxCount,
	)
	n, err = scanNotification(row)
	if err != nil {
		return nil, fmt.Errorf("failed to record notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns the most recent notifications of kind, newest
// first. An empty kind lists every kind.
func (s *Store) ListNotifications(ctx context.Context, kind string, limit int32) (out []*Notification, err error) {
	start := time.Now()
	defer func() { s.observe("list", "notifications", start, err) }()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, address, subject, body, marker, tx_count, sent_at
		FROM notifications
		WHERE $1 = '' OR kind = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT $2`,
		kind, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteNotificationsOlderThan prunes the notification log.
func (s *Store) DeleteNotificationsOlderThan(ctx context.Context, before time.Time) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", "notifications", start, err) }()

	_, err = s.pool.Exec(ctx, `DELETE FROM notifications WHERE sent_at < $1`,
		pgtype.Timestamptz{Time: before, Valid: true})
	return err
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	var marker pgtype.Text
	var sentAt pgtype.Timestamptz
	if err := row.Scan(&n.ID, &n.Kind, &n.Address, &n.Subject, &n.Body, &marker, &n.TxCount, &sentAt); err != nil {
		return nil, err
	}
	n.Marker = stringPtrFromPgtext(marker)
	n.SentAt = sentAt.Time
	return &n, nil
}

func pgtextFromStringPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func stringPtrFromPgtext(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
