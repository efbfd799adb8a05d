package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	id "certproof/pkg/domain"
	audit "certproof/pkg/platform/audit"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store implements audit.Store on the audit_events table.
// Attributes are stored as jsonb; identifiers arrive already hashed.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

const selectColumns = `category, timestamp, session_id, action, source, outcome,
	reason, subject_id_hash, request_id, attributes`

// Append inserts an audit event.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("marshal audit attributes: %w", err)
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, session_id, action, source, outcome,
			reason, subject_id_hash, request_id, attributes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	var sessionID *uuid.UUID
	if !event.SessionID.IsNil() {
		sid := uuid.UUID(event.SessionID)
		sessionID = &sid
	}

	_, err = s.db.Exec(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		sessionID,
		event.Action,
		event.Source,
		event.Outcome,
		event.Reason,
		event.SubjectIDHash,
		event.RequestID,
		attrs,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySession returns events for a session, oldest first.
func (s *Store) ListBySession(ctx context.Context, sessionID id.SessionID) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + `
		FROM audit_events
		WHERE session_id = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.Query(ctx, query, uuid.UUID(sessionID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events of a category.
func (s *Store) ListRecent(ctx context.Context, category audit.EventCategory, limit int) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + `
		FROM audit_events
		WHERE category = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category  string
			event     audit.Event
			sessionID *uuid.UUID
			attrs     []byte
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&sessionID,
			&event.Action,
			&event.Source,
			&event.Outcome,
			&event.Reason,
			&event.SubjectIDHash,
			&event.RequestID,
			&attrs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		if sessionID != nil {
			event.SessionID = id.SessionID(*sessionID)
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &event.Attributes); err != nil {
				return nil, fmt.Errorf("decode audit attributes: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
