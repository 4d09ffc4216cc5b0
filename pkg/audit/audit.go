// Package audit keeps an append-only trail of logins, registrations,
// resource writes, and report transitions.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type auditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Event struct {
	ID           string    `json:"id"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	ResourceKind string    `json:"resourceKind"`
	ResourceID   string    `json:"resourceId"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Trail struct {
	DB auditDB
}

func (t *Trail) Append(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := t.DB.Exec(ctx, `
		INSERT INTO audit_events (id, actor, action, resource_kind, resource_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ev.ID, ev.Actor, ev.Action, ev.ResourceKind, ev.ResourceID, ev.Detail, ev.CreatedAt)
	return err
}

// Record appends without surfacing failures; the trail is best effort and
// never blocks the operation it describes.
func (t *Trail) Record(ctx context.Context, actor, action, resourceKind, resourceID, detail string) {
	if t == nil || t.DB == nil {
		return
	}
	ev := Event{
		Actor:        actor,
		Action:       action,
		ResourceKind: resourceKind,
		ResourceID:   resourceID,
		Detail:       detail,
	}
	if err := t.Append(ctx, ev); err != nil {
		log.Printf("audit: append %s %s/%s: %v", action, resourceKind, resourceID, err)
	}
}

func (t *Trail) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := t.DB.Query(ctx, `
		SELECT id, actor, action, resource_kind, resource_id, detail, created_at
		FROM audit_events ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Actor, &ev.Action, &ev.ResourceKind, &ev.ResourceID, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
