package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventRepository defines the data access contract for audit events.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type EventRepository interface {
	// Log inserts a new audit event into the database.
	Log(ctx context.Context, event *Event) error

	// List returns paginated audit events, most recent first. Optional
	// eventType filter narrows results to a specific event type. Returns
	// the events, total count (for pagination), and any error.
	List(ctx context.Context, eventType string, limit, offset int) ([]Event, int, error)

	// CountRecentByUser returns the number of events of a given type for a
	// user within the given duration. Used by the admin dashboard to surface
	// users under sustained brute-force.
	CountRecentByUser(ctx context.Context, userID, eventType string, since time.Duration) (int, error)
}

// eventRepository implements EventRepository with MariaDB queries.
type eventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new repository backed by the given DB pool.
func NewEventRepository(db *sql.DB) EventRepository {
	return &eventRepository{db: db}
}

// Log inserts a new audit event. The details map is serialized to JSON
// before storage. Nil details are stored as SQL NULL.
func (r *eventRepository) Log(ctx context.Context, event *Event) error {
	query := `INSERT INTO sudo_audit_events (event_type, user_id, rule_id, surface, details, ip_address, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	var detailsJSON []byte
	if event.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshaling audit details: %w", err)
		}
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	// Use NULL for empty optional columns (index friendliness).
	var userID, ruleID, surface, ip any
	if event.UserID != "" {
		userID = event.UserID
	}
	if event.RuleID != "" {
		ruleID = event.RuleID
	}
	if event.Surface != "" {
		surface = event.Surface
	}
	if event.IPAddress != "" {
		ip = event.IPAddress
	}

	result, err := r.db.ExecContext(ctx, query,
		event.EventType, userID, ruleID, surface,
		detailsJSON, ip, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}

	id, _ := result.LastInsertId()
	event.ID = id
	return nil
}

// List returns audit events ordered by most recent first.
func (r *eventRepository) List(ctx context.Context, eventType string, limit, offset int) ([]Event, int, error) {
	countQuery := `SELECT COUNT(*) FROM sudo_audit_events`
	listQuery := `SELECT id, event_type, user_id, rule_id, surface, details, ip_address, created_at
	              FROM sudo_audit_events`

	var args []any
	if eventType != "" {
		countQuery += ` WHERE event_type = ?`
		listQuery += ` WHERE event_type = ?`
		args = append(args, eventType)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit events: %w", err)
	}

	listQuery += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	listArgs := append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var userID, ruleID, surface, ip sql.NullString
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.EventType, &userID, &ruleID, &surface, &detailsJSON, &ip, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit event row: %w", err)
		}
		e.UserID = userID.String
		e.RuleID = ruleID.String
		e.Surface = surface.String
		e.IPAddress = ip.String
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, 0, fmt.Errorf("unmarshaling audit details: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit events: %w", err)
	}

	return events, total, nil
}

// CountRecentByUser counts events of a type for a user within a window.
func (r *eventRepository) CountRecentByUser(ctx context.Context, userID, eventType string, since time.Duration) (int, error) {
	query := `SELECT COUNT(*) FROM sudo_audit_events
	          WHERE user_id = ? AND event_type = ? AND created_at >= ?`

	cutoff := time.Now().UTC().Add(-since)
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, eventType, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting recent audit events: %w", err)
	}
	return count, nil
}
