package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"heradx-vitals/internal/domain"
)

const summaryKeyPrefix = "heradx:biometrics:summary:"

// SummaryCache 按 sessionId 缓存扫描汇总（诊断接口可以只传 sessionId）
type SummaryCache struct {
	kv  KV
	ttl time.Duration
}

func NewSummaryCache(kv KV, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SummaryCache{kv: kv, ttl: ttl}
}

func SummaryKey(sessionID string) string {
	return summaryKeyPrefix + sessionID
}

func (c *SummaryCache) Put(ctx context.Context, sessionID string, summary domain.BiometricSummary) error {
	b, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, SummaryKey(sessionID), string(b), c.ttl)
}

// Get 未命中返回 ErrMiss
func (c *SummaryCache) Get(ctx context.Context, sessionID string) (domain.BiometricSummary, error) {
	raw, err := c.kv.Get(ctx, SummaryKey(sessionID))
	if err != nil {
		return domain.BiometricSummary{}, err
	}
	var s domain.BiometricSummary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return domain.BiometricSummary{}, fmt.Errorf("decode cached summary %s: %w", sessionID, err)
	}
	return s, nil
}
