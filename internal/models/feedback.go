package models

import (
	"time"

	"gorm.io/gorm"
)

// Feedback records a user's judgement of a prior classification result.
// The result is stored by value so later reclassification cannot change it.
type Feedback struct {
	gorm.Model
	UUID              string     `json:"uuid" gorm:"uniqueIndex;not null"`
	Text              string     `json:"text" gorm:"type:text;not null"`
	Entities          EntityList `json:"entities" gorm:"type:json"`
	IsCorrect         bool       `json:"is_correct" gorm:"index"`
	CorrectedEntities EntityList `json:"corrected_entities,omitempty" gorm:"type:json"`
	CorrectedType     string     `json:"corrected_type,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	UserID            string     `json:"user_id,omitempty" gorm:"index"`

	// Set once, when a completed training run consumes the row
	Incorporated  bool       `json:"incorporated" gorm:"default:false;index"`
	TrainingRunID *uint      `json:"training_run_id,omitempty" gorm:"index"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

// HasCorrections reports whether the feedback carries usable gold spans
func (f *Feedback) HasCorrections() bool {
	return !f.IsCorrect && len(f.CorrectedEntities) > 0
}

// TableName specifies the table name for GORM
func (Feedback) TableName() string {
	return "classification_feedback"
}
