package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"heradx-vitals/internal/config"
	"heradx-vitals/internal/domain"
)

const scanRecordsSchema = `
CREATE TABLE IF NOT EXISTS biometric_scans (
	scan_id         UUID PRIMARY KEY,
	session_id      TEXT NOT NULL,
	mode            TEXT NOT NULL,
	source          TEXT NOT NULL DEFAULT '',
	avg_bpm         INTEGER NOT NULL,
	avg_hrv         INTEGER NOT NULL,
	min_bpm         INTEGER NOT NULL,
	max_bpm         INTEGER NOT NULL,
	scan_duration   INTEGER NOT NULL,
	total_readings  INTEGER NOT NULL,
	valid_readings  INTEGER NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_biometric_scans_created_at ON biometric_scans (created_at DESC);
`

// OpenPostgres 创建PostgreSQL数据库连接
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema 建表（幂等）
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, scanRecordsSchema); err != nil {
		return fmt.Errorf("ensure biometric_scans schema: %w", err)
	}
	return nil
}

// PostgresScanRecordsRepository 扫描历史 Repository（PostgreSQL）
type PostgresScanRecordsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresScanRecordsRepository(db *sql.DB, logger *zap.Logger) *PostgresScanRecordsRepository {
	return &PostgresScanRecordsRepository{db: db, logger: logger}
}

// 确保实现了接口
var _ ScanRecordsRepository = (*PostgresScanRecordsRepository)(nil)

func (r *PostgresScanRecordsRepository) Save(ctx context.Context, rec *domain.ScanRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO biometric_scans (
			scan_id, session_id, mode, source,
			avg_bpm, avg_hrv, min_bpm, max_bpm,
			scan_duration, total_readings, valid_readings, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	s := rec.Summary
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.Mode, s.Source,
		s.AvgBPM, s.AvgHRV, s.MinBPM, s.MaxBPM,
		s.ScanDuration, s.TotalReadings, s.ValidReadings, rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert scan record",
			zap.String("session_id", rec.SessionID),
			zap.Error(err),
		)
		return fmt.Errorf("insert scan record: %w", err)
	}
	return nil
}

func (r *PostgresScanRecordsRepository) List(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	query := `
		SELECT
			scan_id::text,
			session_id,
			mode,
			source,
			avg_bpm,
			avg_hrv,
			min_bpm,
			max_bpm,
			scan_duration,
			total_readings,
			valid_readings,
			created_at
		FROM biometric_scans
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list scan records: %w", err)
	}
	defer rows.Close()

	var out []domain.ScanRecord
	for rows.Next() {
		var rec domain.ScanRecord
		var source sql.NullString
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Mode,
			&source,
			&rec.Summary.AvgBPM,
			&rec.Summary.AvgHRV,
			&rec.Summary.MinBPM,
			&rec.Summary.MaxBPM,
			&rec.Summary.ScanDuration,
			&rec.Summary.TotalReadings,
			&rec.Summary.ValidReadings,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan scan record: %w", err)
		}
		rec.Summary.Source = source.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
