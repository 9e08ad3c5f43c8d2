package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config heradx-vitals（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr        string
		CORSOrigins []string
	}
	Log struct {
		Level  string
		Format string
	}
	Vitals VitalsConfig
	Gemini GeminiConfig

	RedisEnabled bool
	Redis        RedisConfig
	Summary      struct {
		CacheTTL time.Duration
		Stream   string
	}

	DBEnabled bool
	Database  DatabaseConfig

	MQTT MQTTConfig
}

// VitalsConfig 生命体征后端配置（运行模式在启动时按优先级解析一次）
type VitalsConfig struct {
	VideoAPIURL string // 批量视频后端（优先级最高）
	VideoAPIKey string
	APIURL      string // 逐帧后端
	APIKey      string // 逐帧后端 + bridge 子进程共用
	BridgePath  string // "mock" 表示内置 mock bridge

	BridgeTimeout    time.Duration
	BridgeStartGrace time.Duration
	HTTPTimeout      time.Duration
	VideoTimeout     time.Duration

	VideoFPS      int
	FFmpegCommand string
	TempDir       string

	DefaultBPM          float64
	DefaultHRV          float64
	DefaultConfidence   float64
	ConfidenceThreshold float64
}

// GeminiConfig 分诊分析器（LLM）配置
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// MQTTConfig MQTT 配置（实时读数推送，默认禁用）
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":3001")
	cfg.HTTP.CORSOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", "*"))
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// Presage 配置
	cfg.Vitals.VideoAPIURL = strings.TrimSpace(os.Getenv("PRESAGE_VIDEO_API_URL"))
	cfg.Vitals.APIURL = strings.TrimSpace(os.Getenv("PRESAGE_API_URL"))
	cfg.Vitals.APIKey = strings.TrimSpace(os.Getenv("PRESAGE_API_KEY"))
	cfg.Vitals.VideoAPIKey = getEnv("PRESAGE_VIDEO_API_KEY", cfg.Vitals.APIKey)
	cfg.Vitals.BridgePath = strings.TrimSpace(os.Getenv("PRESAGE_BRIDGE_PATH"))
	cfg.Vitals.BridgeTimeout = millis(getEnv("PRESAGE_BRIDGE_TIMEOUT_MS", "20000"), 20000)
	cfg.Vitals.BridgeStartGrace = millis(getEnv("PRESAGE_BRIDGE_START_GRACE_MS", "150"), 150)
	cfg.Vitals.HTTPTimeout = millis(getEnv("PRESAGE_HTTP_TIMEOUT_MS", "10000"), 10000)
	cfg.Vitals.VideoTimeout = millis(getEnv("PRESAGE_VIDEO_TIMEOUT_MS", "120000"), 120000)
	cfg.Vitals.VideoFPS = parseInt(getEnv("PRESAGE_VIDEO_FPS", "5"), 5)
	cfg.Vitals.FFmpegCommand = getEnv("FFMPEG_COMMAND", "ffmpeg")
	cfg.Vitals.TempDir = getEnv("PRESAGE_TEMP_DIR", os.TempDir())
	cfg.Vitals.DefaultBPM = parseFloat(getEnv("VITALS_DEFAULT_BPM", "72"), 72)
	cfg.Vitals.DefaultHRV = parseFloat(getEnv("VITALS_DEFAULT_HRV", "45"), 45)
	cfg.Vitals.DefaultConfidence = parseFloat(getEnv("VITALS_DEFAULT_CONFIDENCE", "0.8"), 0.8)
	cfg.Vitals.ConfidenceThreshold = parseFloat(getEnv("VITALS_CONFIDENCE_THRESHOLD", "0.7"), 0.7)

	cfg.Gemini.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.Gemini.Model = getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite")
	cfg.Gemini.BaseURL = getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	cfg.Gemini.Timeout = millis(getEnv("GEMINI_TIMEOUT_MS", "30000"), 30000)

	// Redis 默认关闭：本地 `go run` 不依赖 Redis
	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)
	cfg.Summary.CacheTTL = time.Duration(parseInt(getEnv("SUMMARY_CACHE_TTL_SEC", "3600"), 3600)) * time.Second
	cfg.Summary.Stream = getEnv("SUMMARY_STREAM", "heradx:biometric-summaries")

	cfg.DBEnabled = getEnv("DB_ENABLED", "false") == "true"
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "heradx")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "2"), 2)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "heradx-vitals")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = strings.TrimSuffix(getEnv("MQTT_TOPIC_PREFIX", "heradx/biometrics"), "/")

	return cfg
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseFloat(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func millis(s string, def int) time.Duration {
	ms := parseInt(s, def)
	if ms <= 0 {
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
