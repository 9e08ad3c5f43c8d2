package domain

// LifeStage 生命阶段
type LifeStage string

const (
	LifeStageMenstruating  LifeStage = "menstruating"
	LifeStagePregnant      LifeStage = "pregnant"
	LifeStagePostpartum    LifeStage = "postpartum"
	LifeStagePerimenopause LifeStage = "perimenopause"
	LifeStageMenopause     LifeStage = "menopause"
	LifeStagePostmenopause LifeStage = "postmenopause"
)

// Symptom 症状
type Symptom struct {
	ID          string `json:"id"`
	BodyPart    string `json:"bodyPart"`
	Description string `json:"description"`
	Severity    int    `json:"severity"` // 1..10
	Duration    string `json:"duration,omitempty"`
}

// IntakeData 问诊表单
type IntakeData struct {
	LifeStage          LifeStage `json:"lifeStage"`
	SelectedBodyParts  []string  `json:"selectedBodyParts"`
	Symptoms           []Symptom `json:"symptoms"`
	CurrentMedications []string  `json:"currentMedications,omitempty"`
	AdditionalNotes    string    `json:"additionalNotes,omitempty"`
}

// UrgencyLevel 紧急程度
type UrgencyLevel string

const (
	UrgencyEmergency UrgencyLevel = "EMERGENCY"
	UrgencyUrgent    UrgencyLevel = "URGENT"
	UrgencyModerate  UrgencyLevel = "MODERATE"
	UrgencyLow       UrgencyLevel = "LOW"
)

// Valid reports whether u is one of the four known levels.
func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyEmergency, UrgencyUrgent, UrgencyModerate, UrgencyLow:
		return true
	}
	return false
}

// DiagnosisResult 分诊结果
type DiagnosisResult struct {
	UrgencyLevel               UrgencyLevel `json:"urgencyLevel"`
	UrgencyReason              string       `json:"urgencyReason"`
	PrimaryAssessment          string       `json:"primaryAssessment"`
	DifferentialConsiderations []string     `json:"differentialConsiderations"`
	RedFlags                   []string     `json:"redFlags"`
	Recommendations            []string     `json:"recommendations"`
	QuestionsForDoctor         []string     `json:"questionsForDoctor,omitempty"`
	SpecialtyReferral          string       `json:"specialtyReferral,omitempty"`
	Disclaimer                 string       `json:"disclaimer"`
}
