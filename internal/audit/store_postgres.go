package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ndsregistry/internal/domain"
	"ndsregistry/pkg/platform/sentinel"
	txcontext "ndsregistry/pkg/platform/tx"
)

// PostgresStore persists audit events in PostgreSQL. Append honors the
// context-carried transaction so the event commits with the mutation it
// documents.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event *Event) error {
	err := s.q(ctx).QueryRowContext(ctx, `
		INSERT INTO case_events (case_id, event_type, message, author, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, event.CaseID, string(event.Type), event.Message, event.Author, event.CreatedAt).Scan(&event.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCase(ctx context.Context, caseID int64, limit int) ([]*Event, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, case_id, event_type, message, author, created_at
		FROM case_events
		WHERE case_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var event Event
		var eventType string
		if err := rows.Scan(&event.ID, &event.CaseID, &eventType, &event.Message, &event.Author, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Type = domain.EventType(eventType)
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) CountByCase(ctx context.Context, caseID int64) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM case_events WHERE case_id = $1`, caseID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}
