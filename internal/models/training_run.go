package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TrainingRunStatus is the state of a training run.
// queued -> running -> completed | failed; terminal states are final.
type TrainingRunStatus string

const (
	TrainingRunQueued    TrainingRunStatus = "queued"
	TrainingRunRunning   TrainingRunStatus = "running"
	TrainingRunCompleted TrainingRunStatus = "completed"
	TrainingRunFailed    TrainingRunStatus = "failed"
)

// IsTerminal returns true for completed and failed
func (s TrainingRunStatus) IsTerminal() bool {
	return s == TrainingRunCompleted || s == TrainingRunFailed
}

// CanTransition reports whether moving from s to next is allowed
func (s TrainingRunStatus) CanTransition(next TrainingRunStatus) bool {
	switch s {
	case TrainingRunQueued:
		return next == TrainingRunRunning || next == TrainingRunFailed
	case TrainingRunRunning:
		return next == TrainingRunCompleted || next == TrainingRunFailed
	default:
		return false
	}
}

// TrainingRun is one gather -> train -> evaluate -> register cycle
type TrainingRun struct {
	gorm.Model
	UUID    string            `json:"uuid" gorm:"uniqueIndex;not null"`
	Lineage string            `json:"lineage" gorm:"not null;index:idx_runs_lineage_status"`
	Status  TrainingRunStatus `json:"status" gorm:"not null;default:'queued';index:idx_runs_lineage_status"`

	// Config
	Iterations int     `json:"iterations"`
	BatchSize  int     `json:"batch_size"`
	Dropout    float64 `json:"dropout"`
	TestSplit  float64 `json:"test_split"`
	MinSamples int     `json:"min_samples"`
	Seed       int64   `json:"seed"`

	// Metrics
	Precision    float64                     `json:"precision"`
	Recall       float64                     `json:"recall"`
	F1           float64                     `json:"f1"`
	TrainSamples int                         `json:"train_samples"`
	TestSamples  int                         `json:"test_samples"`
	InvalidSpans int                         `json:"invalid_spans"`
	FinalLoss    float64                     `json:"final_loss"`
	AvgLoss      float64                     `json:"avg_loss"`
	LossCurve    datatypes.JSONSlice[float64] `json:"loss_curve,omitempty" gorm:"type:json"`

	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Error          string     `json:"error,omitempty"`
	ErrorCode      string     `json:"error_code,omitempty"`
	ModelVersionID *uint      `json:"model_version_id,omitempty"`
	JobID          *uint      `json:"job_id,omitempty" gorm:"index"`
	CreatedBy      string     `json:"created_by,omitempty"`
}

// TableName specifies the table name for GORM
func (TrainingRun) TableName() string {
	return "training_runs"
}
