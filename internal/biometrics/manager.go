package biometrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"heradx-vitals/internal/config"
	"heradx-vitals/internal/domain"
)

// FrameAnalyzer 逐帧后端（api 模式）
type FrameAnalyzer interface {
	AnalyzeFrame(ctx context.Context, frame string, timestamp int64) (domain.BiometricReading, error)
}

// VideoAnalyzer 批量视频后端（video_api 模式）
type VideoAnalyzer interface {
	AnalyzeVideo(ctx context.Context, video []byte, startTime, now time.Time) (domain.BiometricSummary, error)
}

// VideoEncoder 帧序列 -> 视频
type VideoEncoder interface {
	Assemble(ctx context.Context, frames []string) ([]byte, error)
}

// ManagerOptions Manager 依赖；与 Mode 无关的字段可以为空
type ManagerOptions struct {
	Mode                Mode
	Defaults            Defaults
	ConfidenceThreshold float64
	BridgeTimeout       time.Duration
	BridgeStartGrace    time.Duration

	Frames    FrameAnalyzer // api
	Video     VideoAnalyzer // video_api
	Encoder   VideoEncoder  // video_api
	Generator *Generator    // simulation + video_api 实时反馈
	Clock     func() time.Time
}

// Manager 活跃会话表的唯一持有者，按启动时解析的 Mode 分发 start/frame/stop
type Manager struct {
	mode      Mode
	opts      ManagerOptions
	generator *Generator
	now       func() time.Time
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager 创建会话管理器
func NewManager(opts ManagerOptions, logger *zap.Logger) *Manager {
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if opts.Defaults == (Defaults{}) {
		opts.Defaults = DefaultReadingDefaults
	}
	if opts.Generator == nil {
		opts.Generator = NewGenerator(StandardBands, 0)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		mode:      opts.Mode,
		opts:      opts,
		generator: opts.Generator,
		now:       opts.Clock,
		logger:    logger.With(zap.String("mode", string(opts.Mode.Kind))),
		sessions:  make(map[string]*session),
	}
}

// NewManagerFromConfig 解析运行模式并按模式装配后端
func NewManagerFromConfig(cfg config.VitalsConfig, logger *zap.Logger) *Manager {
	mode := ResolveMode(cfg)
	defaults := DefaultsFromConfig(cfg)
	opts := ManagerOptions{
		Mode:                mode,
		Defaults:            defaults,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		BridgeTimeout:       cfg.BridgeTimeout,
		BridgeStartGrace:    cfg.BridgeStartGrace,
	}

	switch mode.Kind {
	case ModeVideoAPI:
		remote := NewRemoteClient(RemoteOptions{
			VideoURL:     mode.URL,
			APIKey:       mode.APIKey,
			VideoTimeout: cfg.VideoTimeout,
			Defaults:     defaults,
		}, logger)
		opts.Video = remote
		opts.Encoder = NewVideoAssembler(cfg.FFmpegCommand, cfg.VideoFPS, cfg.TempDir, logger)
	case ModeAPI:
		opts.Frames = NewRemoteClient(RemoteOptions{
			FrameURL:     mode.URL,
			APIKey:       mode.APIKey,
			FrameTimeout: cfg.HTTPTimeout,
			Defaults:     defaults,
		}, logger)
	}
	return NewManager(opts, logger)
}

// Mode 进程级运行模式
func (m *Manager) Mode() Mode { return m.mode }

// ActiveSessions 当前活跃会话数
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartSession 注册会话；bridge 模式下先拉起子进程，失败则不注册。
// 同 id 重复 start 会覆盖旧会话，新会话注册后再停掉旧会话的子进程。
func (m *Manager) StartSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSession
	}

	bpm, hrv := m.generator.Baselines()
	s := newSession(sessionID, m.now(), bpm, hrv)

	if m.mode.Kind == ModeBridge {
		bridge, err := StartBridge(BridgeOptions{
			SessionID:  sessionID,
			Path:       m.mode.BridgePath,
			APIKey:     m.mode.APIKey,
			Timeout:    m.opts.BridgeTimeout,
			StartGrace: m.opts.BridgeStartGrace,
			Defaults:   m.opts.Defaults,
		}, m.logger)
		if err != nil {
			m.logger.Error("Failed to start bridge", zap.String("session_id", sessionID), zap.Error(err))
			return err
		}
		s.bridge = bridge
	}

	m.mu.Lock()
	prev := m.sessions[sessionID]
	m.sessions[sessionID] = s
	m.mu.Unlock()

	if prev != nil {
		m.logger.Warn("Session id reused, replacing previous session", zap.String("session_id", sessionID))
		m.teardown(prev)
	}

	m.logger.Info("Biometric session started",
		zap.String("session_id", sessionID),
		zap.Float64("baseline_bpm", bpm),
		zap.Float64("baseline_hrv", hrv),
	)
	return nil
}

// ProcessFrame 把一帧交给当前后端，返回的读数先追加到会话历史再返回。
// timestamp <= 0 时使用服务端时钟。
func (m *Manager) ProcessFrame(ctx context.Context, sessionID, frame string, timestamp int64) (domain.BiometricReading, error) {
	s := m.lookup(sessionID)
	if s == nil {
		return domain.BiometricReading{}, ErrSessionNotFound
	}
	if timestamp <= 0 {
		timestamp = m.now().UnixMilli()
	}

	var (
		reading domain.BiometricReading
		err     error
	)
	switch m.mode.Kind {
	case ModeVideoAPI:
		// 真正的测量在 stop 时做，这里只给实时反馈
		s.addFrame(frame)
		reading = m.synthetic(s, timestamp)
	case ModeAPI:
		reading, err = m.opts.Frames.AnalyzeFrame(ctx, frame, timestamp)
	case ModeBridge:
		reading, err = s.bridge.Request(ctx, frame, timestamp)
	default:
		reading = m.synthetic(s, timestamp)
	}
	if err != nil {
		m.logger.Warn("Frame processing failed", zap.String("session_id", sessionID), zap.Error(err))
		return domain.BiometricReading{}, err
	}

	s.addReading(reading)
	return reading, nil
}

// StopSession 结束会话并返回汇总。会话在任何路径上都会先从表中移除。
//   - video_api: 有帧则编码 + 上传，直接用后端汇总；失败原样返回，不做本地兜底
//   - bridge:    结束子进程（失败只记日志），再本地汇总
//   - 其它:      本地汇总
func (m *Manager) StopSession(ctx context.Context, sessionID string) (domain.BiometricSummary, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return domain.BiometricSummary{}, ErrSessionNotFound
	}
	defer m.teardown(s)

	now := m.now()
	readings, frames := s.snapshot()

	if m.mode.Kind == ModeVideoAPI && len(frames) > 0 {
		video, err := m.opts.Encoder.Assemble(ctx, frames)
		if err != nil {
			m.logger.Error("Failed to assemble scan video", zap.String("session_id", sessionID), zap.Error(err))
			return domain.BiometricSummary{}, err
		}
		summary, err := m.opts.Video.AnalyzeVideo(ctx, video, s.startTime, now)
		if err != nil {
			return domain.BiometricSummary{}, fmt.Errorf("session %s: %w", sessionID, err)
		}
		m.logSummary(sessionID, summary)
		return summary, nil
	}

	summary := Summarize(readings, s.startTime, now, m.opts.ConfidenceThreshold)
	summary.Source = m.mode.Source()
	if m.mode.Kind == ModeVideoAPI {
		// 没有缓冲到帧：只有合成读数可用
		summary.Source = domain.SourceFallback
	}
	m.logSummary(sessionID, summary)
	return summary, nil
}

// Close 停掉所有会话（进程退出时调用）
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *session) {
			defer wg.Done()
			m.teardown(s)
		}(s)
	}
	wg.Wait()
	if len(sessions) > 0 {
		m.logger.Info("Closed active biometric sessions", zap.Int("count", len(sessions)))
	}
}

func (m *Manager) lookup(sessionID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionID]
}

func (m *Manager) synthetic(s *session, timestamp int64) domain.BiometricReading {
	return m.generator.Reading(s.baselineBPM, s.baselineHRV, s.elapsedSeconds(timestamp), timestamp)
}

// teardown 释放会话持有的子进程
func (m *Manager) teardown(s *session) {
	if s.bridge == nil {
		return
	}
	if err := s.bridge.Stop(); err != nil {
		m.logger.Warn("Bridge teardown failed", zap.String("session_id", s.id), zap.Error(err))
	}
}

func (m *Manager) logSummary(sessionID string, summary domain.BiometricSummary) {
	m.logger.Info("Biometric session stopped",
		zap.String("session_id", sessionID),
		zap.Int("avg_bpm", summary.AvgBPM),
		zap.Int("avg_hrv", summary.AvgHRV),
		zap.Int("total_readings", summary.TotalReadings),
		zap.Int("valid_readings", summary.ValidReadings),
		zap.Int("scan_duration", summary.ScanDuration),
		zap.String("source", summary.Source),
	)
}
