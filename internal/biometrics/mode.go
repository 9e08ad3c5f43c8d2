package biometrics

import (
	"os"
	"path/filepath"
	"strings"

	"heradx-vitals/internal/config"
	"heradx-vitals/internal/domain"
)

// ModeKind 运行模式
type ModeKind string

const (
	ModeVideoAPI   ModeKind = "video_api"
	ModeAPI        ModeKind = "api"
	ModeBridge     ModeKind = "bridge"
	ModeSimulation ModeKind = "simulation"
)

// MockBridgePath 选择内置 mock bridge（开发用）
const MockBridgePath = "mock"

// Mode 进程级运行模式，启动时解析一次，进程生命周期内不变
// 只有与 Kind 对应的字段有值：
//   - video_api: URL, APIKey
//   - api:       URL, APIKey
//   - bridge:    BridgePath, APIKey, Mock
type Mode struct {
	Kind       ModeKind
	URL        string
	APIKey     string
	BridgePath string
	Mock       bool
}

// ResolveMode 按固定优先级解析运行模式：video_api > api > bridge > simulation
func ResolveMode(cfg config.VitalsConfig) Mode {
	switch {
	case cfg.VideoAPIURL != "":
		return Mode{Kind: ModeVideoAPI, URL: cfg.VideoAPIURL, APIKey: cfg.VideoAPIKey}
	case cfg.APIURL != "":
		return Mode{Kind: ModeAPI, URL: cfg.APIURL, APIKey: cfg.APIKey}
	case cfg.BridgePath != "":
		mock := strings.EqualFold(cfg.BridgePath, MockBridgePath) || strings.EqualFold(cfg.BridgePath, "default")
		return Mode{Kind: ModeBridge, BridgePath: cfg.BridgePath, APIKey: cfg.APIKey, Mock: mock}
	default:
		return Mode{Kind: ModeSimulation}
	}
}

// Real reports whether readings come from an actual vitals provider.
func (m Mode) Real() bool {
	switch m.Kind {
	case ModeVideoAPI, ModeAPI:
		return true
	case ModeBridge:
		return !m.Mock
	default:
		return false
	}
}

// Source 汇总结果的来源标记
func (m Mode) Source() string {
	if m.Real() {
		return domain.SourcePresage
	}
	return domain.SourceFallback
}

// Describe 启动日志用的可读描述
func (m Mode) Describe() string {
	switch m.Kind {
	case ModeVideoAPI:
		return "Presage Engine (batch video)"
	case ModeAPI:
		return "Presage API (per-frame)"
	case ModeBridge:
		if m.Mock {
			return "bridge (mock)"
		}
		return "bridge (real Presage)"
	default:
		return "simulation"
	}
}

// bridgeCommand 解析 bridge 可执行文件：脚本路径需要包一层解释器
func bridgeCommand(path string) (string, []string, error) {
	if strings.EqualFold(path, MockBridgePath) || strings.EqualFold(path, "default") {
		self, err := os.Executable()
		if err != nil {
			return "", nil, err
		}
		return self, []string{"mock-bridge"}, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return "node", []string{path}, nil
	case ".py":
		return "python3", []string{path}, nil
	case ".sh":
		return "bash", []string{path}, nil
	default:
		return path, nil, nil
	}
}
