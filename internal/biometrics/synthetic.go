package biometrics

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"heradx-vitals/internal/domain"
)

// Band 闭区间 [Min, Max]
type Band struct {
	Min float64
	Max float64
}

// Clamp limits v to the band.
func (b Band) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Contains reports whether v lies within the band.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

var (
	BPMBand        = Band{Min: 50, Max: 120}
	HRVBand        = Band{Min: 10, Max: 80}
	ConfidenceBand = Band{Min: 0, Max: 1}

	// mock bridge 使用更窄的区间
	BridgeBPMBand        = Band{Min: 55, Max: 110}
	BridgeHRVBand        = Band{Min: 15, Max: 70}
	BridgeConfidenceBand = Band{Min: 0.3, Max: 0.98}
)

// Bands 合成信号的钳位区间
type Bands struct {
	BPM        Band
	HRV        Band
	Confidence Band
}

var (
	StandardBands = Bands{BPM: BPMBand, HRV: HRVBand, Confidence: ConfidenceBand}
	BridgeBands   = Bands{BPM: BridgeBPMBand, HRV: BridgeHRVBand, Confidence: BridgeConfidenceBand}
)

// Generator 合成信号发生器（simulation 模式 + video_api 实时反馈）
// 除显式的均匀噪声项外，输出是 (baseline, elapsed) 的确定函数
type Generator struct {
	bands Bands

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator 创建发生器；seed 为 0 时使用时间种子
func NewGenerator(bands Bands, seed uint64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		bands: bands,
		rnd:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Baselines 每个会话固定一次的基线：bpm ∈ [68,83)，hrv ∈ [35,60)
func (g *Generator) Baselines() (bpm, hrv float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return 68 + g.rnd.Float64()*15, 35 + g.rnd.Float64()*25
}

// Reading 根据基线与扫描已用时间（秒）生成一次读数
//
//	bpm        = round(baseBpm + 3·sin(0.3t) + 2·sin(0.1t) + U(-2,2))
//	hrv        = round(baseHrv + 8·sin(0.2t) + U(-3,3))
//	confidence = 0.6 + min(t/30, 0.3) + U(-0.05,0.05)
func (g *Generator) Reading(baselineBPM, baselineHRV, elapsed float64, timestamp int64) domain.BiometricReading {
	if elapsed < 0 {
		elapsed = 0
	}

	g.mu.Lock()
	bpmNoise := g.uniform(-2, 2)
	hrvNoise := g.uniform(-3, 3)
	confNoise := g.uniform(-0.05, 0.05)
	g.mu.Unlock()

	bpm := math.Round(baselineBPM + 3*math.Sin(0.3*elapsed) + 2*math.Sin(0.1*elapsed) + bpmNoise)
	hrv := math.Round(baselineHRV + 8*math.Sin(0.2*elapsed) + hrvNoise)
	confidence := 0.6 + math.Min(elapsed/30, 0.3) + confNoise

	return domain.BiometricReading{
		BPM:        g.bands.BPM.Clamp(bpm),
		HRV:        g.bands.HRV.Clamp(hrv),
		Confidence: g.bands.Confidence.Clamp(confidence),
		Timestamp:  timestamp,
	}
}

// uniform 调用方需持有 g.mu
func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rnd.Float64()*(hi-lo)
}
