package contact

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store on a Postgres database. History is kept as
// a JSONB array per contact, matching the full-array replace semantics of
// AppendHistory.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens the contact database with the pgx stdlib driver.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// EnsureSchema creates the contacts table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS contacts (
			id UUID PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			display_name TEXT NOT NULL,
			phone TEXT,
			status TEXT NOT NULL DEFAULT 'new',
			history JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_contacts_tenant ON contacts (tenant_id);
	`)
	return err
}

func (s *PostgresStore) List(ctx context.Context, tenantID string) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, display_name, COALESCE(phone, ''), status, history, created_at, updated_at
		FROM contacts
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		var historyJSON []byte
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DisplayName, &c.Phone, &c.Status, &historyJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(historyJSON, &c.History); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, c Contact) (Contact, error) {
	if c.TenantID == "" {
		return Contact{}, errors.New("tenant id is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = "new"
	}
	if c.History == nil {
		c.History = []Message{}
	}

	historyJSON, err := json.Marshal(c.History)
	if err != nil {
		return Contact{}, err
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, tenant_id, display_name, phone, status, history, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
	`, c.ID, c.TenantID, c.DisplayName, c.Phone, c.Status, historyJSON, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

func (s *PostgresStore) AppendHistory(ctx context.Context, tenantID string, contactID string, history []Message) error {
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE contacts
		SET history = $1, updated_at = now()
		WHERE tenant_id = $2 AND id = $3
	`, historyJSON, tenantID, contactID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
