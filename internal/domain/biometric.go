package domain

import "time"

// BiometricReading 单次生命体征采样
// bpm/hrv 始终在各自区间内，confidence 始终在 [0,1]
type BiometricReading struct {
	BPM        float64 `json:"bpm"`
	HRV        float64 `json:"hrv"`        // ms
	Confidence float64 `json:"confidence"` // 0..1
	Timestamp  int64   `json:"timestamp"`  // epoch ms
}

// Summary sources
const (
	SourcePresage  = "presage"
	SourceFallback = "fallback"
)

// BiometricSummary 扫描结束时的汇总结果
// validReadings == 0 时，除 totalReadings/scanDuration 外全部为 0
type BiometricSummary struct {
	AvgBPM        int    `json:"avgBpm"`
	AvgHRV        int    `json:"avgHrv"`
	MinBPM        int    `json:"minBpm"`
	MaxBPM        int    `json:"maxBpm"`
	ScanDuration  int    `json:"scanDuration"` // 秒
	TotalReadings int    `json:"totalReadings"`
	ValidReadings int    `json:"validReadings"`
	Source        string `json:"source,omitempty"`
}

// ScanRecord 扫描历史记录（stop 成功后写入）
type ScanRecord struct {
	ID        string           `json:"id"`
	SessionID string           `json:"sessionId"`
	Mode      string           `json:"mode"`
	Summary   BiometricSummary `json:"summary"`
	CreatedAt time.Time        `json:"createdAt"`
}
