// Package postgres is the server-side draft store backend.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"certkeeper/internal/app/server/config"
	"certkeeper/internal/domain/certificate"
	"certkeeper/internal/infrastructure/migration"
)

type Storage struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// New connects to cfg.DB.DatabaseURI and brings the schema up to date.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Storage, error) {
	mg := migration.NewMigration(cfg, migration.DefaultEngine)
	version, err := mg.Up()
	if err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}
	log.Info("certificates schema ready", "version", version)

	pool, err := pgxpool.New(ctx, cfg.DB.DatabaseURI)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewWithPool(pool, log), nil
}

func NewWithPool(pool *pgxpool.Pool, log *slog.Logger) *Storage {
	return &Storage{pool: pool, log: log.With("component", "postgres_storage")}
}

func (s *Storage) LoadAll(ctx context.Context) ([]*certificate.Record, error) {
	const query = `
		SELECT id, certificate_type, status, client_name, installation_address,
		       certificate_number, data, checksum, created_at, updated_at
		FROM certificates
		ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		s.log.Error("failed to load certificates", "error", err)
		return nil, fmt.Errorf("load certificates: %w", err)
	}
	defer rows.Close()

	return s.scanRecords(rows)
}

func (s *Storage) Save(ctx context.Context, rec *certificate.Record) error {
	const query = `
		INSERT INTO certificates (id, certificate_type, status, client_name, installation_address,
		                          certificate_number, data, checksum, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			client_name = EXCLUDED.client_name,
			installation_address = EXCLUDED.installation_address,
			certificate_number = EXCLUDED.certificate_number,
			data = EXCLUDED.data,
			checksum = EXCLUDED.checksum,
			updated_at = EXCLUDED.updated_at`

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", certificate.ErrInvalidData, err)
	}

	_, err = s.pool.Exec(ctx, query,
		rec.ID, string(rec.CertificateType), string(rec.Status), rec.ClientName,
		rec.InstallationAddress, rec.CertificateNumber, data, rec.Checksum,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		s.log.Error("failed to save certificate", "id", rec.ID, "error", err)
		return fmt.Errorf("save certificate: %w", err)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM certificates WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		s.log.Error("failed to delete certificate", "id", id, "error", err)
		return fmt.Errorf("delete certificate: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) scanRecords(rows pgx.Rows) ([]*certificate.Record, error) {
	var out []*certificate.Record
	for rows.Next() {
		var (
			rec  certificate.Record
			typ  string
			st   string
			data []byte
		)
		err := rows.Scan(
			&rec.ID, &typ, &st, &rec.ClientName, &rec.InstallationAddress,
			&rec.CertificateNumber, &data, &rec.Checksum, &rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		rec.CertificateType = certificate.Type(typ)
		rec.Status = certificate.Status(st)
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			s.log.Warn("skipping certificate with unreadable data", "id", rec.ID, "error", err)
			continue
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
