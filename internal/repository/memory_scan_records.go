package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"heradx-vitals/internal/domain"
)

// MemoryScanRecordsRepository DB 未启用时使用（进程重启即丢失）
type MemoryScanRecordsRepository struct {
	mu      sync.RWMutex
	records []domain.ScanRecord
	max     int
}

func NewMemoryScanRecordsRepository() *MemoryScanRecordsRepository {
	return &MemoryScanRecordsRepository{max: 1000}
}

var _ ScanRecordsRepository = (*MemoryScanRecordsRepository)(nil)

func (r *MemoryScanRecordsRepository) Save(_ context.Context, rec *domain.ScanRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	if len(r.records) > r.max {
		r.records = r.records[len(r.records)-r.max:]
	}
	return nil
}

func (r *MemoryScanRecordsRepository) List(_ context.Context, limit int) ([]domain.ScanRecord, error) {
	r.mu.RLock()
	// 倒序拷贝：created_at 相同时后写入的在前
	all := make([]domain.ScanRecord, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0; i-- {
		all = append(all, r.records[i])
	}
	r.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit = NormalizeLimit(limit); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
