package biometrics

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSession     = errors.New("sessionId is required")
	ErrSessionNotFound    = errors.New("session not found")
	ErrBackendUnavailable = errors.New("vitals backend unavailable")
	ErrBackend            = errors.New("vitals backend error")
	ErrTimeout            = errors.New("vitals backend timeout")
	ErrEncoding           = errors.New("video encoding failed")
	ErrBridgeBusy         = errors.New("bridge request already in flight")
	ErrBridgeExited       = errors.New("bridge process exited")
)

// BackendError 远端后端调用失败（非 2xx、传输错误、无法解析的响应）
// errors.Is(err, ErrBackend) == true
type BackendError struct {
	Op         string
	StatusCode int // 0 表示未拿到 HTTP 响应
	Body       string
	Err        error
}

func (e *BackendError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: vitals backend returned %d: %s", e.Op, e.StatusCode, truncate(e.Body, 512))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": " + ErrBackend.Error()
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
