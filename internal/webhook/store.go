package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
)

// Store persists webhook registrations and delivery logs in Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the webhook tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS webhooks (
			id BIGSERIAL PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			events JSONB NOT NULL DEFAULT '[]'::jsonb,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_webhooks_tenant ON webhooks (tenant_id);
		CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id BIGSERIAL PRIMARY KEY,
			webhook_id BIGINT NOT NULL REFERENCES webhooks (id) ON DELETE CASCADE,
			event TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INT NOT NULL,
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_webhook ON webhook_deliveries (webhook_id, created_at DESC);
	`)
	return err
}

func scanConfig(scan func(dest ...interface{}) error) (Config, error) {
	var w Config
	var eventsJSON []byte
	if err := scan(&w.ID, &w.TenantID, &w.URL, &w.Secret, &eventsJSON, &w.Enabled, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(eventsJSON, &w.Events); err != nil {
		return Config{}, err
	}
	return w, nil
}

func (s *Store) queryConfigs(ctx context.Context, query string, args ...interface{}) ([]Config, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Config
	for rows.Next() {
		w, err := scanConfig(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) List(ctx context.Context, tenantID string) ([]Config, error) {
	return s.queryConfigs(ctx, `
		SELECT id, tenant_id, url, secret, events, enabled, created_at, updated_at
		FROM webhooks
		WHERE tenant_id = $1
		ORDER BY id
	`, tenantID)
}

// ListEnabled returns the tenant's endpoints eligible for dispatch.
func (s *Store) ListEnabled(ctx context.Context, tenantID string) ([]Config, error) {
	return s.queryConfigs(ctx, `
		SELECT id, tenant_id, url, secret, events, enabled, created_at, updated_at
		FROM webhooks
		WHERE tenant_id = $1 AND enabled = TRUE
	`, tenantID)
}

func (s *Store) Get(ctx context.Context, tenantID string, id int64) (Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, url, secret, events, enabled, created_at, updated_at
		FROM webhooks
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanConfig(row.Scan)
}

func (s *Store) Create(ctx context.Context, w Config) (Config, error) {
	eventsJSON, err := json.Marshal(w.Events)
	if err != nil {
		return Config{}, err
	}
	if w.Events == nil {
		eventsJSON = []byte("[]")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO webhooks (tenant_id, url, secret, events, enabled)
		VALUES ($1, $2, $3, $4::jsonb, TRUE)
		RETURNING id, tenant_id, url, secret, events, enabled, created_at, updated_at
	`, w.TenantID, w.URL, w.Secret, string(eventsJSON))
	return scanConfig(row.Scan)
}

func (s *Store) Update(ctx context.Context, w Config) error {
	eventsJSON, err := json.Marshal(w.Events)
	if err != nil {
		return err
	}
	if w.Events == nil {
		eventsJSON = []byte("[]")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE webhooks
		SET url = $1, secret = $2, events = $3::jsonb, enabled = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $5 AND tenant_id = $6
	`, w.URL, w.Secret, string(eventsJSON), w.Enabled, w.ID, w.TenantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, tenantID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM webhooks WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) LogDelivery(ctx context.Context, webhookID int64, event string, status DeliveryStatus, attempts int, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (webhook_id, event, status, attempts, last_error)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, webhookID, event, status, attempts, lastError)
	return err
}

func (s *Store) DeliveryLogs(ctx context.Context, tenantID string, webhookID int64, limit int) ([]DeliveryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.webhook_id, d.event, d.status, d.attempts, d.last_error, d.created_at
		FROM webhook_deliveries d
		JOIN webhooks w ON w.id = d.webhook_id
		WHERE d.webhook_id = $1 AND w.tenant_id = $2
		ORDER BY d.created_at DESC
		LIMIT $3
	`, webhookID, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []DeliveryLog
	for rows.Next() {
		var entry DeliveryLog
		var lastError sql.NullString
		if err := rows.Scan(&entry.ID, &entry.WebhookID, &entry.Event, &entry.Status, &entry.Attempts, &lastError, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.LastError = lastError.String
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
