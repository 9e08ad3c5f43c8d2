package triage

import (
	"fmt"
	"math"
	"strings"

	"heradx-vitals/internal/domain"
)

// systemPrompt 分诊模型的系统指令（只要求结构化 JSON 输出）
const systemPrompt = `You are a medical triage assistant specialized in women's health.
Give a preliminary assessment from the reported symptoms, life stage and camera-based biometrics.
Women often present cardiac distress atypically (jaw, neck or upper back pain, fatigue, nausea).
Weigh life stage: postpartum preeclampsia and cardiomyopathy, perimenopausal palpitations, pregnancy.

Respond with JSON only, in this shape:
{
  "urgencyLevel": "EMERGENCY" | "URGENT" | "MODERATE" | "LOW",
  "urgencyReason": "one sentence",
  "primaryAssessment": "short paragraph",
  "differentialConsiderations": ["..."],
  "redFlags": ["..."],
  "recommendations": ["..."],
  "questionsForDoctor": ["..."],
  "specialtyReferral": "specialist type, if any",
  "disclaimer": "` + defaultDisclaimer + `"
}

This is a preliminary triage assessment, not a diagnosis. Always recommend seeking care for concerning symptoms.`

var lifeStageLabels = map[domain.LifeStage]string{
	domain.LifeStageMenstruating:  "Menstruating (regular cycles)",
	domain.LifeStagePregnant:      "Currently Pregnant",
	domain.LifeStagePostpartum:    "Postpartum (0-12 months after birth)",
	domain.LifeStagePerimenopause: "Perimenopause (transitional phase)",
	domain.LifeStageMenopause:     "Menopause (no period for 12+ months)",
	domain.LifeStagePostmenopause: "Postmenopause",
}

// BuildPrompt 拼装用户提示词：问诊 + （可选）生命体征汇总
func BuildPrompt(intake domain.IntakeData, biometrics *domain.BiometricSummary) string {
	var b strings.Builder

	b.WriteString("## PATIENT DATA\n\n### Life Stage\n")
	if label, ok := lifeStageLabels[intake.LifeStage]; ok {
		b.WriteString(label)
	} else {
		b.WriteString(string(intake.LifeStage))
	}

	b.WriteString("\n\n### Affected Body Regions\n")
	b.WriteString(strings.Join(intake.SelectedBodyParts, ", "))

	b.WriteString("\n\n### Reported Symptoms\n")
	if len(intake.Symptoms) == 0 {
		b.WriteString("No specific symptoms described")
	}
	for i, s := range intake.Symptoms {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s (severity: %d/10)", strings.ToUpper(s.BodyPart), s.Description, s.Severity)
		if s.Duration != "" {
			fmt.Fprintf(&b, ", for %s", s.Duration)
		}
	}

	b.WriteString("\n\n### Current Medications\n")
	if len(intake.CurrentMedications) == 0 {
		b.WriteString("None reported")
	}
	for i, m := range intake.CurrentMedications {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- " + m)
	}
	b.WriteByte('\n')

	if biometrics != nil {
		fmt.Fprintf(&b, "\n### Biometric Readings (camera-based PPG, %ds scan, source: %s)\n", biometrics.ScanDuration, sourceLabel(biometrics.Source))
		fmt.Fprintf(&b, "- Average Heart Rate: %d bpm\n", biometrics.AvgBPM)
		fmt.Fprintf(&b, "- Heart Rate Range: %d - %d bpm\n", biometrics.MinBPM, biometrics.MaxBPM)
		fmt.Fprintf(&b, "- Average HRV (SDNN): %d ms\n", biometrics.AvgHRV)
		fmt.Fprintf(&b, "- Reading Confidence: %d%%\n", confidencePercent(*biometrics))
	}

	if notes := strings.TrimSpace(intake.AdditionalNotes); notes != "" {
		b.WriteString("\n### Additional Context\n" + notes + "\n")
	}

	b.WriteString("\nPlease provide your triage assessment based on the above information. Respond with valid JSON only.\n")
	return b.String()
}

func confidencePercent(s domain.BiometricSummary) int {
	if s.TotalReadings == 0 {
		return 0
	}
	return int(math.Round(float64(s.ValidReadings) / float64(s.TotalReadings) * 100))
}

func sourceLabel(source string) string {
	if source == domain.SourcePresage {
		return "measured"
	}
	return "simulated"
}
