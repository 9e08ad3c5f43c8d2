package biometrics

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"heradx-vitals/internal/domain"
)

const (
	bridgeMaxLine    = 1 << 20 // 单行回复上限
	bridgeEndGrace   = 500 * time.Millisecond
	bridgeKillGrace  = 2 * time.Second
	bridgeAPIKeyEnv  = "PRESAGE_API_KEY"
	bridgeEndMessage = `{"end":true}` + "\n"
)

type bridgeRequest struct {
	Frame     string `json:"frame"`
	Timestamp int64  `json:"timestamp"`
}

// bridgeReply 读循环交给等待方的一行回复，或子进程退出错误
type bridgeReply struct {
	line []byte
	err  error
}

// BridgeOptions bridge 子进程参数
type BridgeOptions struct {
	SessionID  string
	Path       string // 可执行文件或脚本；"mock" 为内置 mock bridge
	APIKey     string
	Timeout    time.Duration // 单次请求等待上限
	StartGrace time.Duration // 启动后在该窗口内退出视为 spawn 失败
	Defaults   Defaults
}

// BridgeProcess 会话独占的 bridge 子进程，stdin/stdout 上跑逐行 JSON 协议。
//
// 请求槽状态：pending == nil 为 Idle，非 nil 为 AwaitingReply。
// 同一时刻最多一个在途请求；没有等待方的回复行直接丢弃。
type BridgeProcess struct {
	sessionID string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	timeout   time.Duration
	defaults  Defaults
	logger    *zap.Logger

	writeMu sync.Mutex // 保证整行写入不交错

	mu      sync.Mutex
	pending chan bridgeReply
	exitErr error
	exited  chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// StartBridge 启动子进程并接好管道；启动失败或在 StartGrace 内退出都返回 ErrBackendUnavailable
func StartBridge(opts BridgeOptions, logger *zap.Logger) (*BridgeProcess, error) {
	name, args, err := bridgeCommand(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve bridge: %v", ErrBackendUnavailable, err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	logger = logger.With(zap.String("session_id", opts.SessionID))

	// 子进程生命周期由 Stop 管理，不绑定请求 ctx
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), bridgeAPIKeyEnv+"="+opts.APIKey)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = io.MultiWriter(os.Stderr, &stderrLogger{logger: logger})

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrBackendUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrBackendUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: spawn %s: %v", ErrBackendUnavailable, name, err)
	}

	p := &BridgeProcess{
		sessionID: opts.SessionID,
		cmd:       cmd,
		stdin:     stdin,
		timeout:   opts.Timeout,
		defaults:  opts.Defaults,
		logger:    logger,
		exited:    make(chan struct{}),
	}
	go p.readLoop(stdout)

	if opts.StartGrace > 0 {
		select {
		case <-p.exited:
			_ = stdin.Close()
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, p.exitError())
		case <-time.After(opts.StartGrace):
		}
	}

	logger.Info("Bridge process started",
		zap.String("command", name),
		zap.Int("pid", cmd.Process.Pid),
	)
	return p, nil
}

// Request 写一行 {frame, timestamp}，等待恰好一行回复。
// 槽被占用返回 ErrBridgeBusy；超时返回 ErrTimeout 并释放槽；
// 回复不合协议时返回默认读数（记 warn），不向调用方报错。
func (p *BridgeProcess) Request(ctx context.Context, frame string, timestamp int64) (domain.BiometricReading, error) {
	ch := make(chan bridgeReply, 1)

	p.mu.Lock()
	select {
	case <-p.exited:
		err := p.exitErr
		p.mu.Unlock()
		return domain.BiometricReading{}, err
	default:
	}
	if p.pending != nil {
		p.mu.Unlock()
		return domain.BiometricReading{}, ErrBridgeBusy
	}
	p.pending = ch
	p.mu.Unlock()

	payload, err := json.Marshal(bridgeRequest{Frame: frame, Timestamp: timestamp})
	if err != nil {
		p.release(ch)
		return domain.BiometricReading{}, fmt.Errorf("encode bridge request: %w", err)
	}
	payload = append(payload, '\n')

	// 子进程不读 stdin 时写入会阻塞，放到 goroutine 里，超时仍然生效
	writeErr := make(chan error, 1)
	go func() {
		p.writeMu.Lock()
		defer p.writeMu.Unlock()
		_, err := p.stdin.Write(payload)
		writeErr <- err
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		select {
		case err := <-writeErr:
			if err != nil {
				p.release(ch)
				return domain.BiometricReading{}, fmt.Errorf("%w: write request: %v", ErrBridgeExited, err)
			}
			writeErr = nil
		case reply := <-ch:
			if reply.err != nil {
				return domain.BiometricReading{}, reply.err
			}
			reading, err := DecodeReading(reply.line, p.defaults, timestamp)
			if err != nil {
				p.logger.Warn("Bridge reply violates protocol, using defaults",
					zap.ByteString("line", truncateBytes(reply.line, 256)),
					zap.Error(err),
				)
			}
			return reading, nil
		case <-timer.C:
			p.release(ch)
			p.logger.Warn("Bridge reply timed out", zap.Duration("timeout", p.timeout))
			return domain.BiometricReading{}, fmt.Errorf("%w after %s", ErrTimeout, p.timeout)
		case <-ctx.Done():
			p.release(ch)
			return domain.BiometricReading{}, ctx.Err()
		}
	}
}

// Stop 发送 {"end":true}，关闭 stdin，SIGTERM 整个进程组；
// 宽限期后仍未退出则 SIGKILL。可重复调用。
func (p *BridgeProcess) Stop() error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop()
	})
	return p.stopErr
}

func (p *BridgeProcess) stop() error {
	wrote := make(chan struct{})
	go func() {
		defer close(wrote)
		p.writeMu.Lock()
		defer p.writeMu.Unlock()
		_, _ = io.WriteString(p.stdin, bridgeEndMessage)
	}()
	select {
	case <-wrote:
	case <-p.exited:
	case <-time.After(bridgeEndGrace):
	}
	_ = p.stdin.Close()

	select {
	case <-p.exited:
		return nil
	default:
	}

	pgid := -p.cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)
	select {
	case <-p.exited:
		return nil
	case <-time.After(bridgeKillGrace):
	}

	p.logger.Warn("Bridge ignored SIGTERM, killing")
	if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill bridge: %w", err)
	}
	select {
	case <-p.exited:
		return nil
	case <-time.After(bridgeKillGrace):
		return fmt.Errorf("bridge pid %d did not exit after SIGKILL", p.cmd.Process.Pid)
	}
}

// Exited 子进程退出后关闭
func (p *BridgeProcess) Exited() <-chan struct{} { return p.exited }

func (p *BridgeProcess) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), bridgeMaxLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		p.deliver(append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		// 读不下去了：不再消费 stdout 的子进程会卡住，直接结束它
		p.logger.Error("Bridge stdout read failed", zap.Error(err))
		_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	}

	waitErr := p.cmd.Wait()

	p.mu.Lock()
	p.exitErr = describeExit(p.cmd.ProcessState, waitErr)
	pending := p.pending
	p.pending = nil
	close(p.exited)
	p.mu.Unlock()

	p.logger.Info("Bridge process exited", zap.String("state", p.exitErr.Error()))
	if pending != nil {
		pending <- bridgeReply{err: p.exitErr}
	}
}

func (p *BridgeProcess) deliver(line []byte) {
	p.mu.Lock()
	ch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if ch == nil {
		p.logger.Debug("Dropping bridge line with no pending request", zap.Int("bytes", len(line)))
		return
	}
	ch <- bridgeReply{line: line}
}

// release 超时/取消后归还槽；回复已经投递时什么也不做
func (p *BridgeProcess) release(ch chan bridgeReply) {
	p.mu.Lock()
	if p.pending == ch {
		p.pending = nil
	}
	p.mu.Unlock()
}

func (p *BridgeProcess) exitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

func describeExit(state *os.ProcessState, waitErr error) error {
	if state != nil {
		return fmt.Errorf("%w (%s)", ErrBridgeExited, state.String())
	}
	if waitErr != nil {
		return fmt.Errorf("%w: %v", ErrBridgeExited, waitErr)
	}
	return ErrBridgeExited
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// stderrLogger 子进程 stderr 按行转成 warn 日志（exec 的拷贝 goroutine 单线程调用）
type stderrLogger struct {
	logger *zap.Logger
	buf    []byte
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimSpace(w.buf[:i]); len(line) > 0 {
			w.logger.Warn("Bridge stderr", zap.ByteString("line", line))
		}
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > bridgeMaxLine {
		w.buf = w.buf[:0]
	}
	return len(p), nil
}
