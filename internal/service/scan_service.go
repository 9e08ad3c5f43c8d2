package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"heradx-vitals/internal/biometrics"
	"heradx-vitals/internal/domain"
	"heradx-vitals/internal/events"
	"heradx-vitals/internal/metrics"
	"heradx-vitals/internal/repository"
	"heradx-vitals/internal/store"
)

// sideEffectTimeout 缓存/历史/推送的单次超时，与请求 ctx 脱钩
const sideEffectTimeout = 3 * time.Second

// ScanService 会话管理器 + 周边副作用（汇总缓存、扫描历史、事件推送、指标）。
// 副作用失败只记日志，不改变 start/frame/stop 的结果。
type ScanService struct {
	manager   *biometrics.Manager
	publisher events.Publisher
	cache     *store.SummaryCache
	history   repository.ScanRecordsRepository
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *zap.Logger
}

// ScanServiceOptions 可选依赖；nil 表示未启用
type ScanServiceOptions struct {
	Publisher events.Publisher
	Cache     *store.SummaryCache
	History   repository.ScanRecordsRepository
	Metrics   *metrics.Metrics
}

func NewScanService(manager *biometrics.Manager, opts ScanServiceOptions, logger *zap.Logger) *ScanService {
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.History == nil {
		opts.History = repository.NewMemoryScanRecordsRepository()
	}
	return &ScanService{
		manager:   manager,
		publisher: opts.Publisher,
		cache:     opts.Cache,
		history:   opts.History,
		metrics:   opts.Metrics,
		now:       time.Now,
		logger:    logger,
	}
}

// Mode 进程级运行模式
func (s *ScanService) Mode() biometrics.Mode { return s.manager.Mode() }

func (s *ScanService) StartSession(ctx context.Context, sessionID string) error {
	if err := s.manager.StartSession(ctx, sessionID); err != nil {
		if !errors.Is(err, biometrics.ErrInvalidSession) {
			s.metrics.BackendError(ErrorKind(err))
		}
		return err
	}
	s.metrics.SessionStarted(string(s.Mode().Kind))
	s.metrics.SetActiveSessions(s.manager.ActiveSessions())
	return nil
}

func (s *ScanService) ProcessFrame(ctx context.Context, sessionID, frame string, timestamp int64) (domain.BiometricReading, error) {
	reading, err := s.manager.ProcessFrame(ctx, sessionID, frame, timestamp)
	mode := string(s.Mode().Kind)
	if err != nil {
		if !errors.Is(err, biometrics.ErrSessionNotFound) {
			s.metrics.Frame(mode, false)
			s.metrics.BackendError(ErrorKind(err))
		}
		return reading, err
	}
	s.metrics.Frame(mode, true)

	pubCtx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := s.publisher.PublishReading(pubCtx, sessionID, reading); err != nil {
		s.logger.Warn("Failed to publish reading", zap.String("session_id", sessionID), zap.Error(err))
	}
	return reading, nil
}

func (s *ScanService) StopSession(ctx context.Context, sessionID string) (domain.BiometricSummary, error) {
	summary, err := s.manager.StopSession(ctx, sessionID)
	s.metrics.SetActiveSessions(s.manager.ActiveSessions())
	if err != nil {
		if !errors.Is(err, biometrics.ErrSessionNotFound) {
			s.metrics.BackendError(ErrorKind(err))
		}
		return summary, err
	}
	s.metrics.SessionStopped(summary.ScanDuration, summary.ValidReadings, summary.TotalReadings)
	s.record(sessionID, summary)
	return summary, nil
}

// record 缓存 + 历史 + 推送
func (s *ScanService) record(sessionID string, summary domain.BiometricSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	mode := string(s.Mode().Kind)
	log := s.logger.With(zap.String("session_id", sessionID))

	if s.cache != nil {
		if err := s.cache.Put(ctx, sessionID, summary); err != nil {
			log.Warn("Failed to cache summary", zap.Error(err))
		}
	}

	rec := &domain.ScanRecord{SessionID: sessionID, Mode: mode, Summary: summary, CreatedAt: s.now().UTC()}
	if err := s.history.Save(ctx, rec); err != nil {
		log.Warn("Failed to save scan record", zap.Error(err))
	}

	event := events.SummaryEvent{SessionID: sessionID, Mode: mode, Summary: summary, Timestamp: s.now().UnixMilli()}
	if err := s.publisher.PublishSummary(ctx, event); err != nil {
		log.Warn("Failed to publish summary", zap.Error(err))
	}
}

// CachedSummary 未启用缓存或未命中时返回 store.ErrMiss
func (s *ScanService) CachedSummary(ctx context.Context, sessionID string) (domain.BiometricSummary, error) {
	if s.cache == nil {
		return domain.BiometricSummary{}, store.ErrMiss
	}
	return s.cache.Get(ctx, sessionID)
}

func (s *ScanService) History(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	return s.history.List(ctx, limit)
}

// Close 停掉全部活跃会话（进程退出）
func (s *ScanService) Close() {
	s.manager.Close()
	s.metrics.SetActiveSessions(0)
}

// ErrorKind 错误分类（指标 label）
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, biometrics.ErrTimeout):
		return "timeout"
	case errors.Is(err, biometrics.ErrBridgeBusy):
		return "busy"
	case errors.Is(err, biometrics.ErrBridgeExited):
		return "bridge_exited"
	case errors.Is(err, biometrics.ErrEncoding):
		return "encoding"
	case errors.Is(err, biometrics.ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, biometrics.ErrBackend):
		return "backend"
	default:
		return "other"
	}
}
