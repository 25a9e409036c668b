package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dymasius12/factory-motor-monitoring/internal/aggregator"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS motor_alerts (
	id           SERIAL PRIMARY KEY,
	event_id     TEXT NOT NULL UNIQUE,
	motor_id     TEXT NOT NULL,
	sensor_type  TEXT NOT NULL,
	timestamp    TIMESTAMPTZ NOT NULL,
	value        NUMERIC NOT NULL,
	alert_type   TEXT NOT NULL,
	published_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_motor_alerts_motor_id ON motor_alerts(motor_id);
CREATE INDEX IF NOT EXISTS idx_motor_alerts_timestamp ON motor_alerts(timestamp);
CREATE INDEX IF NOT EXISTS idx_motor_alerts_created_at ON motor_alerts(created_at);
`

const insertAlertSQL = `
INSERT INTO motor_alerts (event_id, motor_id, sensor_type, timestamp, value, alert_type, published_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (event_id) DO NOTHING`

const dailyCountsSQL = `
SELECT motor_id,
       to_char((timestamp AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD') AS alert_date,
       COUNT(*) AS alert_count
FROM motor_alerts
WHERE timestamp >= $1 AND timestamp < $2
GROUP BY motor_id, alert_date
ORDER BY alert_date DESC, motor_id`

// Postgres stores alerts in the motor_alerts table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Name() string { return "postgres" }

// SaveAlerts inserts events in one batch round trip.
func (p *Postgres) SaveAlerts(ctx context.Context, events []models.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		var published any
		if !e.PublishedAt.IsZero() {
			published = e.PublishedAt
		}
		batch.Queue(insertAlertSQL,
			eventID(e), e.MotorID, string(e.SensorType), e.OccurredAt, e.Value, string(e.AlertType), published)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres insert alert: %w", err)
		}
	}
	return nil
}

func (p *Postgres) DailyCounts(ctx context.Context, start, end time.Time) ([]aggregator.DailyCount, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, dailyCountsSQL, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres daily counts: %w", err)
	}
	defer rows.Close()

	out := make([]aggregator.DailyCount, 0)
	for rows.Next() {
		var (
			dc    aggregator.DailyCount
			count int64
		)
		if err := rows.Scan(&dc.MotorID, &dc.Date, &count); err != nil {
			return nil, fmt.Errorf("postgres scan daily count: %w", err)
		}
		dc.Count = int(count)
		out = append(out, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres daily counts: %w", err)
	}
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
