package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	for _, k := range []string{
		"HTTP_ADDR", "PRESAGE_VIDEO_API_URL", "PRESAGE_API_URL", "PRESAGE_BRIDGE_PATH",
		"PRESAGE_API_KEY", "PRESAGE_BRIDGE_TIMEOUT_MS", "VITALS_DEFAULT_BPM", "REDIS_ENABLED",
		"DB_ENABLED", "MQTT_ENABLED", "CORS_ALLOWED_ORIGINS", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.HTTP.Addr != ":3001" {
		t.Errorf("Expected HTTP_ADDR default ':3001', got '%s'", cfg.HTTP.Addr)
	}
	if cfg.Vitals.BridgeTimeout != 20*time.Second {
		t.Errorf("Expected bridge timeout 20s, got %s", cfg.Vitals.BridgeTimeout)
	}
	if cfg.Vitals.DefaultBPM != 72 || cfg.Vitals.DefaultHRV != 45 || cfg.Vitals.DefaultConfidence != 0.8 {
		t.Errorf("Unexpected decode defaults: %+v", cfg.Vitals)
	}
	if cfg.Vitals.ConfidenceThreshold != 0.7 {
		t.Errorf("Expected confidence threshold 0.7, got %v", cfg.Vitals.ConfidenceThreshold)
	}
	if cfg.Vitals.VideoFPS != 5 {
		t.Errorf("Expected video fps 5, got %d", cfg.Vitals.VideoFPS)
	}
	if cfg.RedisEnabled || cfg.DBEnabled || cfg.MQTT.Enabled {
		t.Errorf("Expected optional stores disabled by default")
	}
	if len(cfg.HTTP.CORSOrigins) != 1 || cfg.HTTP.CORSOrigins[0] != "*" {
		t.Errorf("Expected CORS origins [*], got %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected LOG_LEVEL default 'info', got '%s'", cfg.Log.Level)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("PRESAGE_VIDEO_API_URL", " http://engine:8080/analyze ")
	t.Setenv("PRESAGE_API_KEY", "k-1")
	t.Setenv("PRESAGE_VIDEO_API_KEY", "")
	t.Setenv("PRESAGE_BRIDGE_TIMEOUT_MS", "250")
	t.Setenv("VITALS_DEFAULT_BPM", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.local, http://b.local,")
	t.Setenv("MQTT_TOPIC_PREFIX", "clinic/vitals/")

	cfg := Load()

	if cfg.Vitals.VideoAPIURL != "http://engine:8080/analyze" {
		t.Errorf("Expected trimmed video url, got %q", cfg.Vitals.VideoAPIURL)
	}
	if cfg.Vitals.VideoAPIKey != "k-1" {
		t.Errorf("Expected video key to fall back to PRESAGE_API_KEY, got %q", cfg.Vitals.VideoAPIKey)
	}
	if cfg.Vitals.BridgeTimeout != 250*time.Millisecond {
		t.Errorf("Expected 250ms bridge timeout, got %s", cfg.Vitals.BridgeTimeout)
	}
	if cfg.Vitals.DefaultBPM != 72 {
		t.Errorf("Expected invalid float to fall back to 72, got %v", cfg.Vitals.DefaultBPM)
	}
	if len(cfg.HTTP.CORSOrigins) != 2 {
		t.Errorf("Expected 2 CORS origins, got %v", cfg.HTTP.CORSOrigins)
	}
	if cfg.MQTT.TopicPrefix != "clinic/vitals" {
		t.Errorf("Expected topic prefix without trailing slash, got %q", cfg.MQTT.TopicPrefix)
	}
}

func TestGetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "heradx", SSLMode: "disable"}
	want := "host=db port=5433 user=u password=p dbname=heradx sslmode=disable"
	if got := c.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
