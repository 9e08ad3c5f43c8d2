package biometrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"heradx-vitals/internal/domain"
)

// frameRequest 逐帧请求体
type frameRequest struct {
	Frame     string `json:"frame"`
	Timestamp int64  `json:"timestamp"`
}

// rateStats 批量视频响应中的统计块
type rateStats struct {
	Avg   *float64 `json:"avg"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Count *int     `json:"count"`
}

type videoVitals struct {
	HeartRate     *rateStats `json:"heart_rate"`
	BreathingRate *rateStats `json:"breathing_rate"`
}

// videoResponse 兼容顶层和 {"vitals": {...}} 两种包法
type videoResponse struct {
	videoVitals
	Vitals *videoVitals `json:"vitals"`
}

// RemoteClient Presage 远端 HTTP 客户端（无状态）
type RemoteClient struct {
	frameClient *resty.Client
	videoClient *resty.Client
	frameURL    string
	videoURL    string
	defaults    Defaults
	logger      *zap.Logger
}

// RemoteOptions RemoteClient 参数
type RemoteOptions struct {
	FrameURL     string
	VideoURL     string
	APIKey       string
	FrameTimeout time.Duration
	VideoTimeout time.Duration
	Defaults     Defaults
}

// NewRemoteClient 创建远端客户端；逐帧/批量各用一个 resty client（超时不同）
func NewRemoteClient(opts RemoteOptions, logger *zap.Logger) *RemoteClient {
	if opts.FrameTimeout <= 0 {
		opts.FrameTimeout = 10 * time.Second
	}
	if opts.VideoTimeout <= 0 {
		opts.VideoTimeout = 120 * time.Second // 视频分析可能需要较长时间
	}

	newClient := func(timeout time.Duration) *resty.Client {
		c := resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json")
		if opts.APIKey != "" {
			c.SetAuthToken(opts.APIKey)
		}
		return c
	}

	return &RemoteClient{
		frameClient: newClient(opts.FrameTimeout),
		videoClient: newClient(opts.VideoTimeout),
		frameURL:    opts.FrameURL,
		videoURL:    opts.VideoURL,
		defaults:    opts.Defaults,
		logger:      logger,
	}
}

// AnalyzeFrame POST {frame, timestamp}，返回钳位后的读数；缺失字段使用默认值
func (c *RemoteClient) AnalyzeFrame(ctx context.Context, frame string, timestamp int64) (domain.BiometricReading, error) {
	resp, err := c.frameClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(frameRequest{Frame: frame, Timestamp: timestamp}).
		Post(c.frameURL)
	if err != nil {
		c.logger.Warn("Presage frame API call failed", zap.Error(err))
		return domain.BiometricReading{}, &BackendError{Op: "analyze frame", Err: err}
	}
	if !resp.IsSuccess() {
		c.logger.Warn("Presage frame API returned error",
			zap.Int("status_code", resp.StatusCode()),
		)
		return domain.BiometricReading{}, &BackendError{Op: "analyze frame", StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	reading, err := DecodeReading(resp.Body(), c.defaults, timestamp)
	if err != nil {
		return domain.BiometricReading{}, &BackendError{Op: "analyze frame", Body: string(resp.Body()), Err: err}
	}
	return reading, nil
}

// AnalyzeVideo POST 原始视频字节，响应直接映射为 BiometricSummary；
// scanDuration 取墙钟时间（响应中不含时长）
func (c *RemoteClient) AnalyzeVideo(ctx context.Context, video []byte, startTime, now time.Time) (domain.BiometricSummary, error) {
	c.logger.Info("Calling Presage video API", zap.Int("video_bytes", len(video)))

	resp, err := c.videoClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "video/mp4").
		SetBody(video).
		Post(c.videoURL)
	if err != nil {
		c.logger.Error("Presage video API call failed", zap.Error(err))
		return domain.BiometricSummary{}, &BackendError{Op: "analyze video", Err: err}
	}
	if !resp.IsSuccess() {
		c.logger.Error("Presage video API returned error",
			zap.Int("status_code", resp.StatusCode()),
		)
		return domain.BiometricSummary{}, &BackendError{Op: "analyze video", StatusCode: resp.StatusCode(), Body: string(resp.Body())}
	}

	summary, err := decodeVideoSummary(resp.Body())
	if err != nil {
		return domain.BiometricSummary{}, &BackendError{Op: "analyze video", Body: string(resp.Body()), Err: err}
	}
	summary.ScanDuration = scanDuration(startTime, now)
	summary.Source = domain.SourcePresage
	return summary, nil
}

// decodeVideoSummary heart_rate.{avg,min,max,count} + breathing_rate.avg（作为 HRV 代理）
func decodeVideoSummary(raw []byte) (domain.BiometricSummary, error) {
	var envelope videoResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.BiometricSummary{}, fmt.Errorf("decode video vitals: %w", err)
	}
	v := envelope.videoVitals
	if envelope.Vitals != nil {
		v = *envelope.Vitals
	}
	if v.HeartRate == nil || v.HeartRate.Avg == nil {
		return domain.BiometricSummary{}, fmt.Errorf("decode video vitals: missing heart_rate.avg")
	}

	count := 0
	if v.HeartRate.Count != nil {
		count = *v.HeartRate.Count
	}
	if count <= 0 {
		return domain.BiometricSummary{}, nil
	}

	avg := *v.HeartRate.Avg
	lo, hi := avg, avg
	if v.HeartRate.Min != nil {
		lo = *v.HeartRate.Min
	}
	if v.HeartRate.Max != nil {
		hi = *v.HeartRate.Max
	}
	hrv := 0.0
	if v.BreathingRate != nil && v.BreathingRate.Avg != nil {
		hrv = HRVBand.Clamp(*v.BreathingRate.Avg)
	}

	return domain.BiometricSummary{
		AvgBPM:        roundInt(BPMBand.Clamp(avg)),
		AvgHRV:        roundInt(hrv),
		MinBPM:        roundInt(BPMBand.Clamp(lo)),
		MaxBPM:        roundInt(BPMBand.Clamp(hi)),
		TotalReadings: count,
		ValidReadings: count,
	}, nil
}
