package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"heradx-vitals/internal/domain"
)

// StreamPublisher 扫描汇总写入 Redis Stream（只写汇总，读数太频繁不入流）
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: 10000}
}

func (s *StreamPublisher) PublishReading(context.Context, string, domain.BiometricReading) error {
	return nil
}

// PublishSummary XADD {session_id, mode, source, data, timestamp}
func (s *StreamPublisher) PublishSummary(ctx context.Context, event SummaryEvent) error {
	data, err := json.Marshal(event.Summary)
	if err != nil {
		return err
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"session_id": event.SessionID,
			"mode":       event.Mode,
			"source":     event.Summary.Source,
			"data":       string(data),
			"timestamp":  strconv.FormatInt(event.Timestamp, 10),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
