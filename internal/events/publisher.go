package events

import (
	"context"
	"errors"

	"heradx-vitals/internal/domain"
)

// SummaryEvent 扫描结束事件（MQTT 载荷 + Redis Stream data 字段）
type SummaryEvent struct {
	SessionID string                  `json:"sessionId"`
	Mode      string                  `json:"mode"`
	Summary   domain.BiometricSummary `json:"summary"`
	Timestamp int64                   `json:"timestamp"`
}

// Publisher 读数/汇总的下游推送；失败由调用方记日志，不影响主流程
type Publisher interface {
	PublishReading(ctx context.Context, sessionID string, reading domain.BiometricReading) error
	PublishSummary(ctx context.Context, event SummaryEvent) error
}

// Multi 依次推送到所有下游，汇总错误
type Multi []Publisher

func (m Multi) PublishReading(ctx context.Context, sessionID string, reading domain.BiometricReading) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishReading(ctx, sessionID, reading); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) PublishSummary(ctx context.Context, event SummaryEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishSummary(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop 未启用任何下游时使用
type Nop struct{}

func (Nop) PublishReading(context.Context, string, domain.BiometricReading) error { return nil }
func (Nop) PublishSummary(context.Context, SummaryEvent) error                     { return nil }
