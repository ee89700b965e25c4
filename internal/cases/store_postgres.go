package cases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"ndsregistry/internal/domain"
	"ndsregistry/pkg/platform/sentinel"
	txcontext "ndsregistry/pkg/platform/tx"
)

// PostgresStore persists cases in PostgreSQL.
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

const caseColumns = `id, identity_id, case_type, platform, reason, status, COALESCE(mirror_thread_ref, ''), created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *Case) error {
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO cases (identity_id, case_type, platform, reason, status, mirror_thread_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULL, $6, $7)
		RETURNING id
	`, c.IdentityID, string(c.Type), string(c.Platform), c.Reason, string(c.Status), c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*Case, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	return scanCase(row)
}

func (s *PostgresStore) Update(ctx context.Context, c *Case) error {
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE cases
		SET case_type = $1, platform = $2, reason = $3, status = $4, updated_at = $5
		WHERE id = $6
	`, string(c.Type), string(c.Platform), c.Reason, string(c.Status), c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) AttachThread(ctx context.Context, id int64, threadRef string, now time.Time) error {
	// Set-once guard in the statement itself: an already-linked case matches
	// zero rows, so a concurrent second attach loses cleanly.
	res, err := s.q(ctx).ExecContext(ctx, `
		UPDATE cases
		SET mirror_thread_ref = $1, updated_at = $2
		WHERE id = $3 AND mirror_thread_ref IS NULL
	`, threadRef, now, id)
	if err != nil {
		return fmt.Errorf("attach mirror thread: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach mirror thread: %w", err)
	}
	if affected == 0 {
		// Distinguish missing case from already-linked case.
		if _, findErr := s.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, id int64, now time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE cases SET updated_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("touch case: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) ListByIdentity(ctx context.Context, identityID int64, limit int) ([]*Case, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE identity_id = $1 ORDER BY id DESC LIMIT $2`,
		identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query cases by identity: %w", err)
	}
	defer rows.Close()
	return scanCases(rows)
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Case, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if f.IdentityID != 0 {
		add("identity_id = ", f.IdentityID)
	}
	if f.Status != "" {
		add("status = ", string(f.Status))
	}
	if f.CaseType != "" {
		add("case_type = ", string(f.CaseType))
	}
	if f.Platform != "" {
		add("platform = ", string(f.Platform))
	}

	query := `SELECT ` + caseColumns + ` FROM cases`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	query += " ORDER BY updated_at DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()
	return scanCases(rows)
}

func (s *PostgresStore) Stats(ctx context.Context, trendStart time.Time) (*Stats, error) {
	stats := &Stats{}
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'OPEN'),
		       COUNT(*) FILTER (WHERE status = 'CLOSED'),
		       COUNT(*) FILTER (WHERE status = 'ARCHIVED')
		FROM cases
	`).Scan(&stats.Total, &stats.Open, &stats.Closed, &stats.Archived)
	if err != nil {
		return nil, fmt.Errorf("count cases: %w", err)
	}

	stats.ByType, err = s.buckets(ctx, "case_type")
	if err != nil {
		return nil, err
	}
	stats.ByPlatform, err = s.buckets(ctx, "platform")
	if err != nil {
		return nil, err
	}

	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM cases
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day ASC
	`, trendStart)
	if err != nil {
		return nil, fmt.Errorf("query case trend: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var point TrendPoint
		if err := rows.Scan(&point.Day, &point.Count); err != nil {
			return nil, fmt.Errorf("scan case trend: %w", err)
		}
		stats.Trend = append(stats.Trend, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case trend: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) buckets(ctx context.Context, column string) ([]Bucket, error) {
	// column is one of two fixed identifiers, never caller input.
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) AS c FROM cases GROUP BY `+column+` ORDER BY c DESC, `+column+` ASC`)
	if err != nil {
		return nil, fmt.Errorf("query case buckets: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Label, &b.Count); err != nil {
			return nil, fmt.Errorf("scan case bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case buckets: %w", err)
	}
	return buckets, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanCase(row *sql.Row) (*Case, error) {
	var c Case
	var caseType, platform, status string
	err := row.Scan(&c.ID, &c.IdentityID, &caseType, &platform, &c.Reason, &status,
		&c.MirrorThreadRef, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan case: %w", err)
	}
	c.Type = domain.CaseType(caseType)
	c.Platform = domain.Platform(platform)
	c.Status = domain.Status(status)
	return &c, nil
}

func scanCases(rows *sql.Rows) ([]*Case, error) {
	var out []*Case
	for rows.Next() {
		var c Case
		var caseType, platform, status string
		if err := rows.Scan(&c.ID, &c.IdentityID, &caseType, &platform, &c.Reason, &status,
			&c.MirrorThreadRef, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		c.Type = domain.CaseType(caseType)
		c.Platform = domain.Platform(platform)
		c.Status = domain.Status(status)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return out, nil
}
