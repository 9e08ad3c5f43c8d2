package repository

import (
	"context"

	"heradx-vitals/internal/domain"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

// ScanRecordsRepository 扫描历史
type ScanRecordsRepository interface {
	// Save 写入一条记录；ID / CreatedAt 为空时由实现补齐
	Save(ctx context.Context, rec *domain.ScanRecord) error
	// List 按 created_at 倒序
	List(ctx context.Context, limit int) ([]domain.ScanRecord, error)
}

// NormalizeLimit 默认 20，上限 200
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
