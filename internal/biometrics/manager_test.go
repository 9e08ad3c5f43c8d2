package biometrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"heradx-vitals/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeFrames struct {
	reading domain.BiometricReading
	err     error
	calls   int
}

func (f *fakeFrames) AnalyzeFrame(_ context.Context, _ string, ts int64) (domain.BiometricReading, error) {
	f.calls++
	r := f.reading
	r.Timestamp = ts
	return r, f.err
}

type fakeVideo struct {
	got     []byte
	summary domain.BiometricSummary
	err     error
}

func (f *fakeVideo) AnalyzeVideo(_ context.Context, video []byte, start, now time.Time) (domain.BiometricSummary, error) {
	f.got = video
	s := f.summary
	s.ScanDuration = scanDuration(start, now)
	return s, f.err
}

type fakeEncoder struct {
	frames []string
	err    error
}

func (f *fakeEncoder) Assemble(_ context.Context, frames []string) ([]byte, error) {
	f.frames = frames
	if f.err != nil {
		return nil, f.err
	}
	return []byte(fmt.Sprintf("video:%d", len(frames))), nil
}

func newSimulationManager(clock *fakeClock) *Manager {
	return NewManager(ManagerOptions{
		Mode:      Mode{Kind: ModeSimulation},
		Generator: NewGenerator(StandardBands, 7),
		Clock:     clock.Now,
	}, zap.NewNop())
}

func TestManager_SimulationEndToEnd(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := newSimulationManager(clock)

	require.NoError(t, m.StartSession(ctx, "s1"))
	t0 := clock.Now().UnixMilli()
	for i := int64(0); i < 3; i++ {
		r, err := m.ProcessFrame(ctx, "s1", "AAAA", t0+i*1000)
		require.NoError(t, err)
		assert.True(t, BPMBand.Contains(r.BPM))
		assert.True(t, HRVBand.Contains(r.HRV))
		assert.True(t, ConfidenceBand.Contains(r.Confidence))
		assert.Equal(t, t0+i*1000, r.Timestamp)
	}
	clock.Advance(2 * time.Second)

	summary, err := m.StopSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalReadings)
	assert.Equal(t, 2, summary.ScanDuration)
	assert.Equal(t, domain.SourceFallback, summary.Source)
	// 扫描前 2 秒置信度在 0.62~0.72 之间，可能全部被过滤
	if summary.ValidReadings > 0 {
		assert.GreaterOrEqual(t, summary.AvgBPM, 61)
		assert.LessOrEqual(t, summary.AvgBPM, 90)
	} else {
		assert.Zero(t, summary.AvgBPM)
	}
	assert.Zero(t, m.ActiveSessions())
}

func TestManager_SimulationCalibrated(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := newSimulationManager(clock)

	require.NoError(t, m.StartSession(ctx, "s1"))
	s := m.lookup("s1")
	require.NotNil(t, s)

	t0 := clock.Now().UnixMilli()
	for i := int64(30); i < 36; i++ {
		_, err := m.ProcessFrame(ctx, "s1", "AAAA", t0+i*1000)
		require.NoError(t, err)
	}
	clock.Advance(36 * time.Second)

	summary, err := m.StopSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 6, summary.ValidReadings, "confidence >= 0.85 after 30s")
	assert.InDelta(t, s.baselineBPM, float64(summary.AvgBPM), 7.5)
	assert.LessOrEqual(t, summary.MinBPM, summary.AvgBPM)
	assert.GreaterOrEqual(t, summary.MaxBPM, summary.AvgBPM)
}

func TestManager_SessionIsolation(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := newSimulationManager(clock)

	require.NoError(t, m.StartSession(ctx, "a"))
	require.NoError(t, m.StartSession(ctx, "b"))

	t0 := clock.Now().UnixMilli()
	for i := int64(0); i < 2; i++ {
		_, err := m.ProcessFrame(ctx, "a", "AAAA", t0+i)
		require.NoError(t, err)
	}
	for i := int64(0); i < 5; i++ {
		_, err := m.ProcessFrame(ctx, "b", "BBBB", t0+100+i)
		require.NoError(t, err)
	}

	a, b := m.lookup("a"), m.lookup("b")
	ra, _ := a.snapshot()
	rb, _ := b.snapshot()
	require.Len(t, ra, 2)
	require.Len(t, rb, 5)
	for _, r := range ra {
		assert.Less(t, r.Timestamp, t0+100)
	}
	for _, r := range rb {
		assert.GreaterOrEqual(t, r.Timestamp, t0+100)
	}

	sa, err := m.StopSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, sa.TotalReadings)

	// b 不受 a 结束影响
	_, err = m.ProcessFrame(ctx, "b", "BBBB", t0+200)
	require.NoError(t, err)
	sb, err := m.StopSession(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 6, sb.TotalReadings)
}

func TestManager_StopIsNotRepeatable(t *testing.T) {
	ctx := context.Background()
	m := newSimulationManager(newFakeClock())

	require.NoError(t, m.StartSession(ctx, "s1"))
	_, err := m.StopSession(ctx, "s1")
	require.NoError(t, err)

	_, err = m.StopSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = m.ProcessFrame(ctx, "s1", "AAAA", 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_InvalidSessionID(t *testing.T) {
	m := newSimulationManager(newFakeClock())
	assert.ErrorIs(t, m.StartSession(context.Background(), ""), ErrInvalidSession)
}

func TestManager_MissingTimestampUsesClock(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := newSimulationManager(clock)

	require.NoError(t, m.StartSession(ctx, "s1"))
	clock.Advance(1500 * time.Millisecond)
	r, err := m.ProcessFrame(ctx, "s1", "AAAA", 0)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().UnixMilli(), r.Timestamp)
}

func TestManager_APIMode(t *testing.T) {
	ctx := context.Background()
	frames := &fakeFrames{reading: domain.BiometricReading{BPM: 75, HRV: 40, Confidence: 0.9}}
	m := NewManager(ManagerOptions{
		Mode:   Mode{Kind: ModeAPI, URL: "http://vitals.local"},
		Frames: frames,
		Clock:  newFakeClock().Now,
	}, zap.NewNop())

	require.NoError(t, m.StartSession(ctx, "s1"))
	r, err := m.ProcessFrame(ctx, "s1", "AAAA", 10)
	require.NoError(t, err)
	assert.Equal(t, 75.0, r.BPM)

	frames.err = &BackendError{Op: "analyze frame", StatusCode: 503}
	_, err = m.ProcessFrame(ctx, "s1", "AAAA", 20)
	assert.ErrorIs(t, err, ErrBackend)

	summary, err := m.StopSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalReadings, "failed frames are not recorded")
	assert.Equal(t, 75, summary.AvgBPM)
	assert.Equal(t, domain.SourcePresage, summary.Source)
	assert.Equal(t, 2, frames.calls)
}

func TestManager_VideoAPIMode(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	video := &fakeVideo{summary: domain.BiometricSummary{AvgBPM: 71, MinBPM: 65, MaxBPM: 79, AvgHRV: 16, TotalReadings: 40, ValidReadings: 40, Source: domain.SourcePresage}}
	encoder := &fakeEncoder{}
	m := NewManager(ManagerOptions{
		Mode:    Mode{Kind: ModeVideoAPI, URL: "http://vitals.local/video"},
		Video:   video,
		Encoder: encoder,
		Clock:   clock.Now,
	}, zap.NewNop())

	require.NoError(t, m.StartSession(ctx, "s1"))
	t0 := clock.Now().UnixMilli()
	for i := int64(0); i < 4; i++ {
		r, err := m.ProcessFrame(ctx, "s1", fmt.Sprintf("frame-%d", i), t0+i*200)
		require.NoError(t, err, "live feedback never fails")
		assert.True(t, BPMBand.Contains(r.BPM))
	}
	clock.Advance(12 * time.Second)

	summary, err := m.StopSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"frame-0", "frame-1", "frame-2", "frame-3"}, encoder.frames)
	assert.Equal(t, "video:4", string(video.got))
	assert.Equal(t, 71, summary.AvgBPM)
	assert.Equal(t, 40, summary.TotalReadings, "backend summary bypasses local aggregation")
	assert.Equal(t, 12, summary.ScanDuration)
}

func TestManager_VideoAPIFailuresPropagate(t *testing.T) {
	ctx := context.Background()

	encoder := &fakeEncoder{err: fmt.Errorf("%w: encoder exited with code 1", ErrEncoding)}
	m := NewManager(ManagerOptions{
		Mode:    Mode{Kind: ModeVideoAPI, URL: "http://vitals.local/video"},
		Video:   &fakeVideo{},
		Encoder: encoder,
	}, zap.NewNop())
	require.NoError(t, m.StartSession(ctx, "s1"))
	_, err := m.ProcessFrame(ctx, "s1", "AAAA", 1)
	require.NoError(t, err)
	_, err = m.StopSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Zero(t, m.ActiveSessions(), "session removed on error path")

	m = NewManager(ManagerOptions{
		Mode:    Mode{Kind: ModeVideoAPI, URL: "http://vitals.local/video"},
		Video:   &fakeVideo{err: &BackendError{Op: "analyze video", StatusCode: 500}},
		Encoder: &fakeEncoder{},
	}, zap.NewNop())
	require.NoError(t, m.StartSession(ctx, "s2"))
	_, err = m.ProcessFrame(ctx, "s2", "AAAA", 1)
	require.NoError(t, err)
	_, err = m.StopSession(ctx, "s2")
	assert.ErrorIs(t, err, ErrBackend)
	assert.Zero(t, m.ActiveSessions())
}

func TestManager_VideoAPINoFramesAggregatesLocally(t *testing.T) {
	ctx := context.Background()
	encoder := &fakeEncoder{}
	m := NewManager(ManagerOptions{
		Mode:    Mode{Kind: ModeVideoAPI, URL: "http://vitals.local/video"},
		Video:   &fakeVideo{},
		Encoder: encoder,
	}, zap.NewNop())

	require.NoError(t, m.StartSession(ctx, "s1"))
	summary, err := m.StopSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, encoder.frames, "encoder not called without frames")
	assert.Equal(t, domain.SourceFallback, summary.Source)
	assert.Zero(t, summary.TotalReadings)
}

func newBridgeManager(t *testing.T, script string, timeout time.Duration) *Manager {
	t.Helper()
	path := writeScript(t, "bridge.sh", script)
	m := NewManager(ManagerOptions{
		Mode:          Mode{Kind: ModeBridge, BridgePath: path},
		BridgeTimeout: timeout,
	}, zap.NewNop())
	t.Cleanup(m.Close)
	return m
}

func TestManager_BridgeTimeoutThenRecover(t *testing.T) {
	ctx := context.Background()
	m := newBridgeManager(t, `#!/usr/bin/env bash
IFS= read -r first
while IFS= read -r line; do
  case "$line" in *'"end"'*) exit 0 ;; esac
  echo '{"bpm":81,"hrv":33,"confidence":0.92}'
done
`, 200*time.Millisecond)

	require.NoError(t, m.StartSession(ctx, "s1"))

	start := time.Now()
	_, err := m.ProcessFrame(ctx, "s1", "AAAA", 1)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)

	r, err := m.ProcessFrame(ctx, "s1", "BBBB", 2)
	require.NoError(t, err)
	assert.Equal(t, 81.0, r.BPM)

	bridge := m.lookup("s1").bridge
	summary, err := m.StopSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalReadings)
	assert.Equal(t, 81, summary.AvgBPM)
	assert.Equal(t, domain.SourcePresage, summary.Source)

	select {
	case <-bridge.Exited():
	case <-time.After(3 * time.Second):
		t.Fatal("bridge still running after stop")
	}
}

func TestManager_BridgeCrashStillAggregates(t *testing.T) {
	ctx := context.Background()
	m := newBridgeManager(t, `#!/usr/bin/env bash
IFS= read -r line
echo '{"bpm":70,"hrv":40,"confidence":0.9}'
IFS= read -r line
exit 9
`, 2*time.Second)

	require.NoError(t, m.StartSession(ctx, "s1"))
	_, err := m.ProcessFrame(ctx, "s1", "AAAA", 1)
	require.NoError(t, err)

	_, err = m.ProcessFrame(ctx, "s1", "BBBB", 2)
	assert.ErrorIs(t, err, ErrBridgeExited)

	summary, err := m.StopSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalReadings)
	assert.Equal(t, 70, summary.AvgBPM)
}

func TestManager_BridgeSpawnFailureNotRegistered(t *testing.T) {
	ctx := context.Background()
	m := NewManager(ManagerOptions{
		Mode: Mode{Kind: ModeBridge, BridgePath: "/nonexistent/presage-bridge"},
	}, zap.NewNop())

	err := m.StartSession(ctx, "s1")
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	assert.Zero(t, m.ActiveSessions())

	_, err = m.ProcessFrame(ctx, "s1", "AAAA", 1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_ReusedSessionIDKillsPreviousBridge(t *testing.T) {
	ctx := context.Background()
	m := newBridgeManager(t, echoBridge, time.Second)

	require.NoError(t, m.StartSession(ctx, "s1"))
	first := m.lookup("s1").bridge

	require.NoError(t, m.StartSession(ctx, "s1"))
	second := m.lookup("s1").bridge
	assert.NotSame(t, first, second)

	select {
	case <-first.Exited():
	case <-time.After(3 * time.Second):
		t.Fatal("previous bridge leaked")
	}
	assert.Equal(t, 1, m.ActiveSessions())
}

func TestManager_CloseStopsBridges(t *testing.T) {
	ctx := context.Background()
	m := newBridgeManager(t, echoBridge, time.Second)

	require.NoError(t, m.StartSession(ctx, "a"))
	require.NoError(t, m.StartSession(ctx, "b"))
	a, b := m.lookup("a").bridge, m.lookup("b").bridge

	m.Close()
	assert.Zero(t, m.ActiveSessions())
	for _, p := range []*BridgeProcess{a, b} {
		select {
		case <-p.Exited():
		case <-time.After(3 * time.Second):
			t.Fatal("bridge still running after Close")
		}
	}
}
