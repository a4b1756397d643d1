package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/smarttraffic/trafficd/internal/model"
)

const cycleRecordsSchema = `
CREATE TABLE IF NOT EXISTS cycle_records (
	cycle_id         TEXT PRIMARY KEY,
	ts               TIMESTAMPTZ NOT NULL,
	source_id        INTEGER NOT NULL,
	vehicle_count    INTEGER NOT NULL,
	vehicle_stats    JSONB NOT NULL,
	weighted_count   DOUBLE PRECISION NOT NULL,
	green_time       INTEGER NOT NULL,
	yellow_time      INTEGER NOT NULL,
	all_red_time     INTEGER NOT NULL,
	total_cycle_time INTEGER NOT NULL,
	historical_mean  DOUBLE PRECISION NOT NULL DEFAULT 0,
	algorithm        TEXT NOT NULL,
	processing_sec   DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS cycle_records_ts_idx ON cycle_records (ts);
`

// PostgresStore persists cycle records in PostgreSQL. Append-only by
// convention; the controller never issues UPDATE or DELETE.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

// NewPostgresStore connects, verifies reachability, and ensures the schema.
func NewPostgresStore(ctx context.Context, url string, logger *logrus.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, cycleRecordsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ensure schema: %w", err)
	}

	logger.Info("connected to postgres history store")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Append(ctx context.Context, rec model.CycleRecord) error {
	stats, err := json.Marshal(rec.VehicleStats)
	if err != nil {
		return fmt.Errorf("postgres: marshal vehicle stats: %w", err)
	}

	query := `
		INSERT INTO cycle_records (
			cycle_id, ts, source_id, vehicle_count, vehicle_stats,
			weighted_count, green_time, yellow_time, all_red_time,
			total_cycle_time, historical_mean, algorithm, processing_sec
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.pool.Exec(ctx, query,
		rec.CycleID, rec.Timestamp, rec.SourceID, rec.VehicleCount, stats,
		rec.WeightedCount, rec.GreenTime, rec.YellowTime, rec.AllRedTime,
		rec.TotalCycleTime, rec.HistoricalMean, string(rec.Algorithm), rec.ProcessingSec,
	)
	if err != nil {
		return fmt.Errorf("postgres: append record %s: %w", rec.CycleID, err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, n int) ([]model.CycleRecord, error) {
	query := `
		SELECT cycle_id, ts, source_id, vehicle_count, vehicle_stats,
			   weighted_count, green_time, yellow_time, all_red_time,
			   total_cycle_time, historical_mean, algorithm, processing_sec
		FROM cycle_records
		ORDER BY ts DESC
	`
	args := []interface{}{}
	if n > 0 {
		query += " LIMIT $1"
		args = append(args, n)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query records: %w", err)
	}
	defer rows.Close()

	var records []model.CycleRecord
	for rows.Next() {
		var rec model.CycleRecord
		var stats []byte
		var algorithm string
		err := rows.Scan(
			&rec.CycleID, &rec.Timestamp, &rec.SourceID, &rec.VehicleCount, &stats,
			&rec.WeightedCount, &rec.GreenTime, &rec.YellowTime, &rec.AllRedTime,
			&rec.TotalCycleTime, &rec.HistoricalMean, &algorithm, &rec.ProcessingSec,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		if err := json.Unmarshal(stats, &rec.VehicleStats); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal vehicle stats: %w", err)
		}
		rec.Algorithm = model.Algorithm(algorithm)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate records: %w", err)
	}

	// Query returns newest first; callers expect chronological order.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *PostgresStore) Aggregate(ctx context.Context, window int) (Summary, error) {
	records, err := s.Recent(ctx, window)
	if err != nil {
		return Summary{}, err
	}
	return summarize(records, 0), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
