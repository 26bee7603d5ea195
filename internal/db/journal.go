package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/walkpal/internal/alert"
	"github.com/banshee-data/walkpal/internal/tracking"
)

// UpsertObject records the latest state of a tracked object.
func (db *DB) UpsertObject(ctx context.Context, obj tracking.TrackedObject) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tracked_objects (id, class, first_seen, last_seen, depth, near, far)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			class     = excluded.class,
			last_seen = excluded.last_seen,
			depth     = excluded.depth,
			near      = excluded.near,
			far       = excluded.far`,
		obj.ID, obj.Class, unixSeconds(obj.FirstSeen), unixSeconds(obj.LastSeen), obj.Depth, obj.Near, obj.Far,
	)
	if err != nil {
		return fmt.Errorf("upsert object %s: %w", obj.ID, err)
	}
	return nil
}

// MarkEvicted stamps the eviction time of an object, inserting the row if
// the object was never journalled.
func (db *DB) MarkEvicted(ctx context.Context, obj tracking.TrackedObject, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tracked_objects (id, class, first_seen, last_seen, depth, near, far, evicted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET evicted_at = excluded.evicted_at`,
		obj.ID, obj.Class, unixSeconds(obj.FirstSeen), unixSeconds(obj.LastSeen), obj.Depth, obj.Near, obj.Far, unixSeconds(at),
	)
	if err != nil {
		return fmt.Errorf("mark evicted %s: %w", obj.ID, err)
	}
	return nil
}

// RecordAlert appends an alert to the journal.
func (db *DB) RecordAlert(ctx context.Context, ev alert.Event) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO alerts (object_id, class, state, command, channel, x, y, z, depth, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ObjectID, ev.Class, string(ev.State), ev.Command.String(), ev.Channel,
		ev.Position.X, ev.Position.Y, ev.Position.Z, ev.Depth, unixSeconds(ev.At),
	)
	if err != nil {
		return fmt.Errorf("record alert for %s: %w", ev.ObjectID, err)
	}
	return nil
}

// AlertRecord is one journalled alert.
type AlertRecord struct {
	ID        int64     `json:"id"`
	ObjectID  string    `json:"object_id"`
	Class     string    `json:"class"`
	State     string    `json:"state"`
	Command   string    `json:"command"`
	Channel   int       `json:"channel"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Depth     float64   `json:"depth"`
	CreatedAt time.Time `json:"created_at"`
}

func scanAlerts(rows *sql.Rows) ([]AlertRecord, error) {
	defer rows.Close()
	var out []AlertRecord
	for rows.Next() {
		var a AlertRecord
		var created float64
		if err := rows.Scan(&a.ID, &a.ObjectID, &a.Class, &a.State, &a.Command, &a.Channel,
			&a.X, &a.Y, &a.Z, &a.Depth, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = fromUnixSeconds(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

const alertColumns = `alert_id, object_id, class, state, command, channel, x, y, z, depth, created_at`

// RecentAlerts returns up to limit alerts, newest first.
func (db *DB) RecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts ORDER BY created_at DESC, alert_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

// AlertsSince returns alerts at or after since, oldest first.
func (db *DB) AlertsSince(ctx context.Context, since time.Time) ([]AlertRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE created_at >= ? ORDER BY created_at, alert_id`, unixSeconds(since))
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

// AlertDepths returns the depth of every alert for class, or for all
// classes when class is empty, in ascending order.
func (db *DB) AlertDepths(ctx context.Context, class string) ([]float64, error) {
	q := `SELECT depth FROM alerts`
	var args []any
	if class != "" {
		q += ` WHERE class = ?`
		args = append(args, class)
	}
	q += ` ORDER BY depth`

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ClassCount is the number of alerts for one class and state.
type ClassCount struct {
	Class string `json:"class"`
	State string `json:"state"`
	Count int    `json:"count"`
}

// AlertCounts returns alert counts grouped by class and state.
func (db *DB) AlertCounts(ctx context.Context) ([]ClassCount, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT class, state, COUNT(*) FROM alerts GROUP BY class, state ORDER BY class, state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClassCount
	for rows.Next() {
		var c ClassCount
		if err := rows.Scan(&c.Class, &c.State, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ObjectRecord is one journalled object lifecycle.
type ObjectRecord struct {
	ID        string     `json:"id"`
	Class     string     `json:"class"`
	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
	Depth     float64    `json:"depth"`
	Near      bool       `json:"near"`
	Far       bool       `json:"far"`
	EvictedAt *time.Time `json:"evicted_at,omitempty"`
}

// Object returns the journalled lifecycle of one object.
func (db *DB) Object(ctx context.Context, id string) (ObjectRecord, error) {
	var o ObjectRecord
	var first, last float64
	var evicted sql.NullFloat64
	err := db.QueryRowContext(ctx,
		`SELECT id, class, first_seen, last_seen, depth, near, far, evicted_at FROM tracked_objects WHERE id = ?`, id,
	).Scan(&o.ID, &o.Class, &first, &last, &o.Depth, &o.Near, &o.Far, &evicted)
	if err != nil {
		return o, err
	}
	o.FirstSeen, o.LastSeen = fromUnixSeconds(first), fromUnixSeconds(last)
	if evicted.Valid {
		t := fromUnixSeconds(evicted.Float64)
		o.EvictedAt = &t
	}
	return o, nil
}
