package domain

import "time"

// CaseSummary is one row of the case list.
type CaseSummary struct {
	CaseID       string    `json:"case_id"`
	Version      int       `json:"version"`
	Category     string    `json:"category"`
	Decision     string    `json:"decision"`
	LesionSizeMM int       `json:"lesion_size_mm"`
	GeneratedAt  string    `json:"generated_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Alert levels for critical findings, most severe first.
const (
	LevelCritical    = "critical"
	LevelUrgent      = "urgent"
	LevelSignificant = "significant"
)

// CriticalFinding is an alert raised from clinical data or a decision.
type CriticalFinding struct {
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// CategoryStats aggregates lesion sizes for one LI-RADS category.
type CategoryStats struct {
	Category     string  `json:"category"`
	Count        int     `json:"count"`
	MeanSizeMM   float64 `json:"mean_size_mm"`
	MedianSizeMM float64 `json:"median_size_mm"`
	MaxSizeMM    float64 `json:"max_size_mm"`
}

// CaseStats summarises the latest version of every stored case.
type CaseStats struct {
	TotalCases int             `json:"total_cases"`
	Categories []CategoryStats `json:"categories"`
}
