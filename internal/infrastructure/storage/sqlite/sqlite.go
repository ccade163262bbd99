// Package sqlite is the local draft store backend used by the CLI by default.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"

	"certkeeper/internal/domain/certificate"
)

type Storage struct {
	db  *sql.DB
	log *slog.Logger
}

func New(path string, log *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Storage{db: db, log: log.With("component", "sqlite_storage")}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tables: %w", err)
	}
	return s, nil
}

func (s *Storage) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS certificates (
			id TEXT PRIMARY KEY,
			certificate_type TEXT NOT NULL,
			status TEXT NOT NULL,
			client_name TEXT NOT NULL DEFAULT '',
			installation_address TEXT NOT NULL DEFAULT '',
			certificate_number TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_certificates_type ON certificates(certificate_type);
		CREATE INDEX IF NOT EXISTS idx_certificates_updated ON certificates(updated_at);
	`)
	return err
}

func (s *Storage) LoadAll(ctx context.Context) ([]*certificate.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, certificate_type, status, client_name, installation_address,
		       certificate_number, data, checksum, created_at, updated_at
		FROM certificates
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query certificates: %w", err)
	}
	defer rows.Close()

	var out []*certificate.Record
	for rows.Next() {
		var (
			rec                  certificate.Record
			data                 string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.CertificateType, &rec.Status, &rec.ClientName,
			&rec.InstallationAddress, &rec.CertificateNumber, &data, &rec.Checksum,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
			s.log.Warn("skipping certificate with unreadable data", "id", rec.ID, "error", err)
			continue
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *Storage) Save(ctx context.Context, rec *certificate.Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", certificate.ErrInvalidData, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO certificates (id, certificate_type, status, client_name, installation_address,
		                          certificate_number, data, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			client_name = excluded.client_name,
			installation_address = excluded.installation_address,
			certificate_number = excluded.certificate_number,
			data = excluded.data,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at
	`, rec.ID, string(rec.CertificateType), string(rec.Status), rec.ClientName,
		rec.InstallationAddress, rec.CertificateNumber, string(data), rec.Checksum,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save certificate: %w", err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM certificates WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	return s.db.Close()
}
