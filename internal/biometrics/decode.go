package biometrics

import (
	"encoding/json"
	"fmt"
	"math"

	"heradx-vitals/internal/config"
	"heradx-vitals/internal/domain"
)

// Defaults 后端响应缺字段时的替代值（策略常量，可配置）
type Defaults struct {
	BPM        float64
	HRV        float64
	Confidence float64
}

// DefaultReadingDefaults 72 bpm / 45 ms / 0.8
var DefaultReadingDefaults = Defaults{BPM: 72, HRV: 45, Confidence: 0.8}

// DefaultsFromConfig 读取配置中的替代值，非法值回退到 DefaultReadingDefaults
func DefaultsFromConfig(cfg config.VitalsConfig) Defaults {
	d := DefaultReadingDefaults
	if cfg.DefaultBPM > 0 {
		d.BPM = cfg.DefaultBPM
	}
	if cfg.DefaultHRV > 0 {
		d.HRV = cfg.DefaultHRV
	}
	if cfg.DefaultConfidence > 0 && cfg.DefaultConfidence <= 1 {
		d.Confidence = cfg.DefaultConfidence
	}
	return d
}

// Reading 全部使用替代值的读数
func (d Defaults) Reading(timestamp int64) domain.BiometricReading {
	return ClampReading(domain.BiometricReading{
		BPM:        d.BPM,
		HRV:        d.HRV,
		Confidence: d.Confidence,
		Timestamp:  timestamp,
	})
}

// ClampReading 把读数钳位到标准区间
func ClampReading(r domain.BiometricReading) domain.BiometricReading {
	r.BPM = BPMBand.Clamp(r.BPM)
	r.HRV = HRVBand.Clamp(r.HRV)
	r.Confidence = ConfidenceBand.Clamp(r.Confidence)
	return r
}

// DecodeReading 解析 {bpm?, hrv?, confidence?}：
// 缺失或类型不对的字段逐个替换为默认值，然后钳位。
// 整体不是 JSON 对象时返回全默认读数 + error，由调用方决定是否当作失败。
func DecodeReading(raw []byte, d Defaults, timestamp int64) (domain.BiometricReading, error) {
	fallback := d.Reading(timestamp)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fallback, fmt.Errorf("decode vitals reading: %w", err)
	}
	if fields == nil {
		return fallback, fmt.Errorf("decode vitals reading: not an object")
	}

	return ClampReading(domain.BiometricReading{
		BPM:        numberOr(fields["bpm"], d.BPM),
		HRV:        numberOr(fields["hrv"], d.HRV),
		Confidence: numberOr(fields["confidence"], d.Confidence),
		Timestamp:  timestamp,
	}), nil
}

func numberOr(raw json.RawMessage, def float64) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return def
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}
