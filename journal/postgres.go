package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"liquidity-engine/engine"
)

// Postgres journals events into a single append-only table, one JSON payload
// per row.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects, pings and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal db: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS engine_events (
			id         BIGSERIAL PRIMARY KEY,
			event_type TEXT        NOT NULL,
			event_time TIMESTAMPTZ NOT NULL,
			payload    JSONB       NOT NULL
		);
		CREATE INDEX IF NOT EXISTS engine_events_type_time_idx
			ON engine_events (event_type, event_time)`)
	if err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

// Record implements Journaler.
func (p *Postgres) Record(ctx context.Context, ev engine.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO engine_events (event_type, event_time, payload) VALUES ($1, $2, $3)`,
		string(ev.Type), ev.Time.UTC(), payload)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events implements Journaler.
func (p *Postgres) Events(ctx context.Context, eventType engine.EventType, start, end time.Time) ([]engine.Event, error) {
	query := `SELECT payload FROM engine_events WHERE 1=1`
	args := []any{}
	if eventType != "" {
		args = append(args, string(eventType))
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if !start.IsZero() {
		args = append(args, start.UTC())
		query += fmt.Sprintf(" AND event_time >= $%d", len(args))
	}
	if !end.IsZero() {
		args = append(args, end.UTC())
		query += fmt.Sprintf(" AND event_time <= $%d", len(args))
	}
	query += " ORDER BY id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []engine.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev engine.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close implements Journaler.
func (p *Postgres) Close() error { return p.db.Close() }
