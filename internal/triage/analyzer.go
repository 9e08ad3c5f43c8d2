package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"heradx-vitals/internal/config"
	"heradx-vitals/internal/domain"
)

// ErrNotConfigured 未配置 GEMINI_API_KEY
var ErrNotConfigured = errors.New("triage analyzer not configured")

// Analyzer 分诊分析器：问诊 + 生命体征汇总（可为 nil）-> 结构化评估
type Analyzer interface {
	Analyze(ctx context.Context, intake domain.IntakeData, biometrics *domain.BiometricSummary) (domain.DiagnosisResult, error)
}

// Gemini generateContent 请求/响应（只保留用到的字段）
type (
	geminiPart struct {
		Text string `json:"text"`
	}
	geminiContent struct {
		Role  string       `json:"role,omitempty"`
		Parts []geminiPart `json:"parts"`
	}
	geminiGenerationConfig struct {
		Temperature      float64 `json:"temperature"`
		MaxOutputTokens  int     `json:"maxOutputTokens"`
		ResponseMimeType string  `json:"responseMimeType,omitempty"`
	}
	geminiRequest struct {
		SystemInstruction geminiContent          `json:"systemInstruction"`
		Contents          []geminiContent        `json:"contents"`
		GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	}
	geminiResponse struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
)

// GeminiAnalyzer 通过 REST 调用 Gemini generateContent
type GeminiAnalyzer struct {
	client *resty.Client
	model  string
	apiKey string
	logger *zap.Logger
}

// NewGeminiAnalyzer 创建分析器；未配置 key 时 Analyze 返回 ErrNotConfigured
func NewGeminiAnalyzer(cfg config.GeminiConfig, logger *zap.Logger) *GeminiAnalyzer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &GeminiAnalyzer{client: client, model: model, apiKey: cfg.APIKey, logger: logger}
}

// Configured reports whether an API key is set.
func (g *GeminiAnalyzer) Configured() bool { return g.apiKey != "" }

// Analyze 调用模型并解析结果；响应无法解析时返回带默认值的 MODERATE 结果（不报错）
func (g *GeminiAnalyzer) Analyze(ctx context.Context, intake domain.IntakeData, biometrics *domain.BiometricSummary) (domain.DiagnosisResult, error) {
	if !g.Configured() {
		return domain.DiagnosisResult{}, ErrNotConfigured
	}

	prompt := BuildPrompt(intake, biometrics)
	body := geminiRequest{
		SystemInstruction: geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0.3,
			MaxOutputTokens:  2048,
			ResponseMimeType: "application/json",
		},
	}

	var out geminiResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", g.apiKey).
		SetPathParam("model", g.model).
		SetBody(body).
		SetResult(&out).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		g.logger.Error("Gemini API call failed", zap.Error(err))
		return domain.DiagnosisResult{}, fmt.Errorf("gemini generateContent: %w", err)
	}
	if !resp.IsSuccess() {
		g.logger.Error("Gemini API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", truncate(resp.String(), 512)),
		)
		return domain.DiagnosisResult{}, fmt.Errorf("gemini generateContent: status %d", resp.StatusCode())
	}

	text := out.text()
	if text == "" {
		return domain.DiagnosisResult{}, errors.New("gemini generateContent: empty response")
	}
	g.logger.Debug("Gemini raw response", zap.String("text", truncate(text, 500)))

	return ParseResult(text), nil
}

func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ParseResult 解析模型输出（可能包在 ```json 代码块里），缺失字段补默认值
func ParseResult(text string) domain.DiagnosisResult {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	var parsed domain.DiagnosisResult
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return unparsableResult()
	}
	return normalize(parsed)
}

func normalize(r domain.DiagnosisResult) domain.DiagnosisResult {
	r.UrgencyLevel = domain.UrgencyLevel(strings.ToUpper(string(r.UrgencyLevel)))
	if !r.UrgencyLevel.Valid() {
		r.UrgencyLevel = domain.UrgencyModerate
	}
	if r.UrgencyReason == "" {
		r.UrgencyReason = "Unable to determine urgency"
	}
	if r.PrimaryAssessment == "" {
		r.PrimaryAssessment = "Assessment pending"
	}
	if r.DifferentialConsiderations == nil {
		r.DifferentialConsiderations = []string{}
	}
	if r.RedFlags == nil {
		r.RedFlags = []string{}
	}
	if len(r.Recommendations) == 0 {
		r.Recommendations = []string{"Consult with a healthcare provider"}
	}
	if r.Disclaimer == "" {
		r.Disclaimer = defaultDisclaimer
	}
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
