package models

import (
	"time"

	"gorm.io/gorm"
)

// TrainingExampleSource records where a gold example came from
type TrainingExampleSource string

const (
	ExampleSourceUserFeedback TrainingExampleSource = "user_feedback"
	ExampleSourceManual       TrainingExampleSource = "manual"
	ExampleSourceImported     TrainingExampleSource = "imported"
)

// Valid reports whether s is a known example source
func (s TrainingExampleSource) Valid() bool {
	switch s {
	case ExampleSourceUserFeedback, ExampleSourceManual, ExampleSourceImported:
		return true
	}
	return false
}

// TrainingExample is a text with gold entity spans
type TrainingExample struct {
	gorm.Model
	Text               string                `json:"text" gorm:"type:text;not null"`
	Entities           EntityList            `json:"entities" gorm:"type:json"`
	ClassificationType string                `json:"classification_type,omitempty" gorm:"index"`
	Source             TrainingExampleSource `json:"source" gorm:"not null;index"`
	Language           string                `json:"language" gorm:"default:'en'"`
	Verified           bool                  `json:"verified" gorm:"default:false;index"`
	VerifiedBy         string                `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time            `json:"verified_at,omitempty"`
	UsageCount         int                   `json:"usage_count" gorm:"default:0"`
	LastUsedAt         *time.Time            `json:"last_used_at,omitempty"`
	FeedbackID         *uint                 `json:"feedback_id,omitempty" gorm:"index"`
	Feedback           *Feedback             `json:"-" gorm:"foreignKey:FeedbackID"`
}

// TableName specifies the table name for GORM
func (TrainingExample) TableName() string {
	return "training_examples"
}
