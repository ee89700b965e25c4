package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ndsregistry/internal/domain"
	"ndsregistry/pkg/platform/sentinel"
	txcontext "ndsregistry/pkg/platform/tx"
)

// PostgresStore persists identities in PostgreSQL. All methods honor a
// context-carried transaction so the service can commit identity, case and
// audit writes as one unit.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Create inserts the identity. A duplicate identifier reports ErrConflict
// without raising a unique violation, so a surrounding transaction stays
// usable and the caller can re-read the surviving row.
func (s *PostgresStore) Create(ctx context.Context, ident *Identity) error {
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO identities (identifier, platform, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier) DO NOTHING
		RETURNING id
	`, ident.Identifier, string(ident.Platform), ident.CreatedAt, ident.UpdatedAt).Scan(&ident.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*Identity, error) {
	return s.scanOne(s.q(ctx).QueryRowContext(ctx, `
		SELECT id, identifier, platform, created_at, updated_at
		FROM identities WHERE id = $1
	`, id))
}

func (s *PostgresStore) FindByIdentifier(ctx context.Context, identifier string) (*Identity, error) {
	return s.scanOne(s.q(ctx).QueryRowContext(ctx, `
		SELECT id, identifier, platform, created_at, updated_at
		FROM identities WHERE identifier = $1
	`, identifier))
}

func (s *PostgresStore) Touch(ctx context.Context, id int64, now time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE identities SET updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("touch identity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch identity: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (*Identity, error) {
	var ident Identity
	var platform string
	err := row.Scan(&ident.ID, &ident.Identifier, &platform, &ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	ident.Platform = domain.Platform(platform)
	return &ident, nil
}

// PostgresIntelStore persists the intel ledger in PostgreSQL.
type PostgresIntelStore struct {
	db *sql.DB
}

func NewPostgresIntelStore(db *sql.DB) *PostgresIntelStore {
	return &PostgresIntelStore{db: db}
}

func (s *PostgresIntelStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresIntelStore) Append(ctx context.Context, rec *IntelRecord) error {
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO identity_intel (identity_id, intel_type, value, author, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, rec.IdentityID, string(rec.Type), rec.Value, rec.Author, rec.CreatedAt).Scan(&rec.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert intel record: %w", err)
	}
	return nil
}

func (s *PostgresIntelStore) ListByIdentity(ctx context.Context, identityID int64, limit int) ([]*IntelRecord, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, identity_id, intel_type, value, author, created_at
		FROM identity_intel
		WHERE identity_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query intel records: %w", err)
	}
	defer rows.Close()

	var records []*IntelRecord
	for rows.Next() {
		var rec IntelRecord
		var intelType string
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &intelType, &rec.Value, &rec.Author, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan intel record: %w", err)
		}
		rec.Type = domain.IntelType(intelType)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intel records: %w", err)
	}
	return records, nil
}

func (s *PostgresIntelStore) CountByIdentity(ctx context.Context, identityID int64) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identity_intel WHERE identity_id = $1`, identityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count intel records: %w", err)
	}
	return count, nil
}
