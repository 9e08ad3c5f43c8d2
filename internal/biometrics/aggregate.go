package biometrics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"heradx-vitals/internal/domain"
)

// DefaultConfidenceThreshold 只有 confidence 严格大于该值的读数参与统计
const DefaultConfidenceThreshold = 0.7

// Summarize 汇总读数（纯函数）：BPM/HRV 统计只基于高置信度子集
func Summarize(readings []domain.BiometricReading, startTime, now time.Time, threshold float64) domain.BiometricSummary {
	summary := domain.BiometricSummary{
		ScanDuration:  scanDuration(startTime, now),
		TotalReadings: len(readings),
	}

	bpms := make([]float64, 0, len(readings))
	hrvs := make([]float64, 0, len(readings))
	for _, r := range readings {
		if r.Confidence > threshold {
			bpms = append(bpms, r.BPM)
			hrvs = append(hrvs, r.HRV)
		}
	}
	if len(bpms) == 0 {
		return summary
	}

	summary.AvgBPM = roundInt(stat.Mean(bpms, nil))
	summary.AvgHRV = roundInt(stat.Mean(hrvs, nil))
	summary.MinBPM = roundInt(floats.Min(bpms))
	summary.MaxBPM = roundInt(floats.Max(bpms))
	summary.ValidReadings = len(bpms)
	return summary
}

// scanDuration 墙钟秒数（四舍五入）
func scanDuration(startTime, now time.Time) int {
	d := now.Sub(startTime)
	if d < 0 {
		return 0
	}
	return roundInt(d.Seconds())
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
