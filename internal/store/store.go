package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"weekcast/internal/weather"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_weather (
	lat        DOUBLE PRECISION NOT NULL,
	lon        DOUBLE PRECISION NOT NULL,
	day_start  BIGINT           NOT NULL,
	fetched_at TIMESTAMPTZ      NOT NULL,
	temp_high  DOUBLE PRECISION,
	temp_low   DOUBLE PRECISION,
	wind_speed DOUBLE PRECISION,
	precip_mm  DOUBLE PRECISION,
	symbol     TEXT,
	PRIMARY KEY (lat, lon, day_start)
)`

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the daily_weather table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate daily_weather: %w", err)
	}
	return nil
}

func (s *Store) WriteDailyWeather(ctx context.Context, loc weather.Coordinates, records []weather.DayWeather, fetchDate time.Time) error {
	lat, lon := snapToGrid(loc.Latitude, loc.Longitude)
	batch := &pgx.Batch{}
	for _, d := range records {
		batch.Queue(
			`INSERT INTO daily_weather (lat, lon, day_start, fetched_at, temp_high, temp_low, wind_speed, precip_mm, symbol)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (lat, lon, day_start) DO UPDATE SET
			   fetched_at = $4, temp_high = $5, temp_low = $6, wind_speed = $7, precip_mm = $8, symbol = $9`,
			lat, lon, d.Timestamp, fetchDate, d.TempHigh, d.TempLow, d.WindSpeed, d.PrecipMM, d.Symbol,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert daily weather: %w", err)
		}
	}
	return nil
}

// ReadDailyWeather returns the stored records among timestamps. The fetch
// date is the oldest fetched_at of the returned rows, or zero when none.
func (s *Store) ReadDailyWeather(ctx context.Context, loc weather.Coordinates, timestamps []int64) ([]weather.DayWeather, time.Time, error) {
	lat, lon := snapToGrid(loc.Latitude, loc.Longitude)
	rows, err := s.pool.Query(ctx,
		`SELECT day_start, fetched_at, temp_high, temp_low, wind_speed, precip_mm, symbol
		 FROM daily_weather
		 WHERE lat = $1 AND lon = $2 AND day_start = ANY($3)
		 ORDER BY day_start`,
		lat, lon, timestamps,
	)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("read daily weather: %w", err)
	}
	defer rows.Close()

	var result []weather.DayWeather
	var oldest time.Time
	for rows.Next() {
		var d weather.DayWeather
		var fetchedAt time.Time
		if err := rows.Scan(&d.Timestamp, &fetchedAt, &d.TempHigh, &d.TempLow, &d.WindSpeed, &d.PrecipMM, &d.Symbol); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan daily weather: %w", err)
		}
		if oldest.IsZero() || fetchedAt.Before(oldest) {
			oldest = fetchedAt
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("read daily weather: %w", err)
	}
	return result, oldest, nil
}

func snapToGrid(lat, lon float64) (float64, float64) {
	return math.Round(lat*100) / 100, math.Round(lon*100) / 100
}
