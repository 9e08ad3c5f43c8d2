package triage

import "heradx-vitals/internal/domain"

const defaultDisclaimer = "This is a preliminary triage assessment, not a medical diagnosis. Always consult with a qualified healthcare provider."

// FallbackResult 分析器不可用（网络、配额、未配置）时返回给客户端的安全结果
func FallbackResult() domain.DiagnosisResult {
	return domain.DiagnosisResult{
		UrgencyLevel:               domain.UrgencyModerate,
		UrgencyReason:              "Unable to complete full AI analysis - showing general guidance",
		PrimaryAssessment:          "Based on your reported symptoms, please consult with a healthcare provider for proper evaluation. The AI analysis encountered a technical issue.",
		DifferentialConsiderations: []string{},
		RedFlags:                   []string{},
		Recommendations: []string{
			"Contact your primary care physician",
			"If experiencing severe symptoms, seek immediate medical attention",
			"Bring your biometric readings to your appointment",
		},
		Disclaimer: "This assessment could not be fully completed due to a technical issue. Please consult with a qualified healthcare provider.",
	}
}

// unparsableResult 模型有响应但不是合法 JSON
func unparsableResult() domain.DiagnosisResult {
	return domain.DiagnosisResult{
		UrgencyLevel:               domain.UrgencyModerate,
		UrgencyReason:              "Unable to complete full analysis",
		PrimaryAssessment:          "The AI was unable to provide a complete assessment. Please consult with a healthcare provider.",
		DifferentialConsiderations: []string{},
		RedFlags:                   []string{},
		Recommendations:            []string{"Consult with a healthcare provider for proper evaluation"},
		Disclaimer:                 defaultDisclaimer,
	}
}
