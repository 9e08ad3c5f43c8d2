package biometrics

import (
	"sync"
	"time"

	"heradx-vitals/internal/domain"
)

// session 一次扫描的进程内状态（absent -> active -> absent，不可复用）
// bridge 只在 bridge 模式下非 nil；frames 只在 video_api 模式下追加
type session struct {
	id          string
	startTime   time.Time
	baselineBPM float64
	baselineHRV float64
	bridge      *BridgeProcess

	mu       sync.Mutex
	readings []domain.BiometricReading
	frames   []string
}

func newSession(id string, startTime time.Time, baselineBPM, baselineHRV float64) *session {
	return &session{
		id:          id,
		startTime:   startTime,
		baselineBPM: baselineBPM,
		baselineHRV: baselineHRV,
	}
}

func (s *session) addReading(r domain.BiometricReading) {
	s.mu.Lock()
	s.readings = append(s.readings, r)
	s.mu.Unlock()
}

func (s *session) addFrame(frame string) {
	s.mu.Lock()
	s.frames = append(s.frames, frame)
	s.mu.Unlock()
}

// snapshot 返回副本，调用方可以在锁外使用
func (s *session) snapshot() ([]domain.BiometricReading, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	readings := append([]domain.BiometricReading(nil), s.readings...)
	frames := append([]string(nil), s.frames...)
	return readings, frames
}

// elapsedSeconds 帧时间戳相对会话开始的秒数
func (s *session) elapsedSeconds(timestamp int64) float64 {
	return float64(timestamp-s.startTime.UnixMilli()) / 1000
}
