package biometrics

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VideoAssembler 把一组 base64 JPEG 帧编码为单个视频（批量上传用）
type VideoAssembler struct {
	command string
	fps     int
	tempDir string
	logger  *zap.Logger
}

// NewVideoAssembler command 默认 ffmpeg，fps 默认 5（与客户端采集节奏一致）
func NewVideoAssembler(command string, fps int, tempDir string, logger *zap.Logger) *VideoAssembler {
	if command == "" {
		command = "ffmpeg"
	}
	if fps <= 0 {
		fps = 5
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &VideoAssembler{command: command, fps: fps, tempDir: tempDir, logger: logger}
}

// Assemble 写帧到独立临时目录 -> 调用编码器 -> 读回视频字节；
// 临时目录在成功和失败路径上都会删除
func (a *VideoAssembler) Assemble(ctx context.Context, frames []string) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrEncoding)
	}

	workDir := filepath.Join(a.tempDir, "heradx-frames-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create work dir: %v", ErrEncoding, err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			a.logger.Warn("Failed to remove video work dir", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	for i, frame := range frames {
		data, err := decodeFrame(frame)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %d: %v", ErrEncoding, i, err)
		}
		name := filepath.Join(workDir, fmt.Sprintf("frame_%05d.jpg", i+1))
		if err := os.WriteFile(name, data, 0o600); err != nil {
			return nil, fmt.Errorf("%w: write frame %d: %v", ErrEncoding, i, err)
		}
	}

	output := filepath.Join(workDir, "scan.mp4")
	args := []string{
		"-y",
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-framerate", strconv.Itoa(a.fps),
		"-start_number", "1",
		"-i", filepath.Join(workDir, "frame_%05d.jpg"),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		output,
	}

	cmd := exec.CommandContext(ctx, a.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: encoder exited with code %d: %s", ErrEncoding, exitErr.ExitCode(), detail)
		}
		return nil, fmt.Errorf("%w: run encoder: %v", ErrEncoding, err)
	}

	video, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("%w: read encoded video: %v", ErrEncoding, err)
	}

	a.logger.Info("Assembled scan video",
		zap.Int("frames", len(frames)),
		zap.Int("fps", a.fps),
		zap.Int("video_bytes", len(video)),
	)
	return video, nil
}

// decodeFrame 支持裸 base64 或 data URL（data:image/jpeg;base64,...）
func decodeFrame(frame string) ([]byte, error) {
	if i := strings.Index(frame, ","); i >= 0 && strings.HasPrefix(frame, "data:") {
		frame = frame[i+1:]
	}
	frame = strings.TrimSpace(frame)
	data, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		// 部分浏览器产出无 padding 的 base64
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(frame, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, err
	}
	return data, nil
}
