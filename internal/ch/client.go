package ch

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"callwatch/internal/model"
)

// Client wraps a ClickHouse connection.
type Client struct {
	db *sql.DB
}

// New creates a ClickHouse client from a DSN.
func New(ctx context.Context, dsn string) (*Client, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// Close releases database resources.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// EnsureSchema creates the raw calls table if it does not exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS raw_calls
(
  call_id          String,
  call_start_utc   String,
  did_raw          String,
  did_canon        LowCardinality(String),
  caller_id        String,
  duration_sec     Int32,
  disposition      LowCardinality(String),
  campaign         LowCardinality(String),
  target           LowCardinality(String),
  publisher_id     LowCardinality(String),
  publisher_name   LowCardinality(String),
  payout           Float64,
  revenue          Float64,
  received_at      DateTime64(3, 'UTC')
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(received_at)
ORDER BY (publisher_name, received_at, call_id)`
	_, err := c.db.ExecContext(ctx, ddl)
	return err
}

// InsertBatch writes a batch of raw call records with a single prepared
// statement.
func (c *Client) InsertBatch(ctx context.Context, records []model.RawCallRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO raw_calls (
	call_id, call_start_utc, did_raw, did_canon, caller_id, duration_sec,
	disposition, campaign, target, publisher_id, publisher_name,
	payout, revenue, received_at
) VALUES (
	?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		campaign := rec.CampaignName
		if campaign == "" {
			campaign = rec.CampaignID
		}
		if _, err := stmt.ExecContext(
			ctx,
			rec.CallID,
			rec.CallStartUTC,
			rec.DID,
			rec.DIDCanon,
			rec.CallerID,
			rec.DurationSec,
			rec.Disposition,
			campaign,
			rec.Target,
			rec.PublisherID,
			rec.PublisherName,
			rec.Payout,
			rec.Revenue,
			rec.ReceivedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// PublisherCalls holds per-publisher call counts for a timeframe.
type PublisherCalls struct {
	PublisherName string  `json:"publisher_name"`
	Calls         int64   `json:"calls"`
	Payout        float64 `json:"payout"`
}

// VolumePoint is a daily call-count datapoint.
type VolumePoint struct {
	Date  time.Time `json:"date"`
	Calls int64     `json:"calls"`
}

// CallsByPublisher returns per-publisher counts and payout sums within
// [from, to).
func (c *Client) CallsByPublisher(ctx context.Context, from, to time.Time) ([]PublisherCalls, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT publisher_name, count() AS calls, sum(payout) AS payout
FROM raw_calls
WHERE received_at >= ? AND received_at < ?
GROUP BY publisher_name
ORDER BY calls DESC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PublisherCalls
	for rows.Next() {
		var record PublisherCalls
		if err := rows.Scan(&record.PublisherName, &record.Calls, &record.Payout); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// DailyVolume returns call counts per day within [from, to).
func (c *Client) DailyVolume(ctx context.Context, from, to time.Time) ([]VolumePoint, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT toDate(received_at) AS day, count() AS calls
FROM raw_calls
WHERE received_at >= ? AND received_at < ?
GROUP BY day
ORDER BY day ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var series []VolumePoint
	for rows.Next() {
		var point VolumePoint
		if err := rows.Scan(&point.Date, &point.Calls); err != nil {
			return nil, err
		}
		series = append(series, point)
	}
	return series, rows.Err()
}

// CountCalls returns the total persisted rows, useful for diagnostics.
func (c *Client) CountCalls(ctx context.Context) (int64, error) {
	row := c.db.QueryRowContext(ctx, `SELECT count() FROM raw_calls`)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// Ping ensures the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("clickhouse ping: %w", err)
	}
	return nil
}
