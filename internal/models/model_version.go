package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ModelVersion is a trained statistical model recorded in the registry.
// Only Active, Production and DeployedAt change after creation, and only
// through an explicit promotion.
type ModelVersion struct {
	gorm.Model
	Lineage  string `json:"lineage" gorm:"not null;uniqueIndex:idx_model_lineage_version"`
	Version  string `json:"version" gorm:"not null;uniqueIndex:idx_model_lineage_version"`
	ParentID *uint  `json:"parent_id,omitempty"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	Active     bool       `json:"active" gorm:"default:false;index"`
	Production bool       `json:"production" gorm:"default:false"`
	DeployedAt *time.Time `json:"deployed_at,omitempty"`

	ArtifactLocation    string                       `json:"artifact_location" gorm:"not null"`
	TrainingRunID       uint                         `json:"training_run_id" gorm:"index"`
	TrainingSamples     int                          `json:"training_samples"`
	TrainingDuration    float64                      `json:"training_duration_seconds"`
	TrainingParams      datatypes.JSONMap            `json:"training_params,omitempty" gorm:"type:json"`
	ClassificationTypes datatypes.JSONSlice[string]  `json:"classification_types,omitempty" gorm:"type:json"`
	Description         string                       `json:"description,omitempty"`
	CreatedBy           string                       `json:"created_by,omitempty"`
}

// TableName specifies the table name for GORM
func (ModelVersion) TableName() string {
	return "model_versions"
}

// ModelMetric is a time-series metric point recorded when a run completes
type ModelMetric struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ModelVersionID uint      `json:"model_version_id" gorm:"index"`
	TrainingRunID  uint      `json:"training_run_id" gorm:"index"`
	Name           string    `json:"name" gorm:"not null;index"`
	Value          float64   `json:"value"`
	EntityType     string    `json:"entity_type,omitempty"`
	RecordedAt     time.Time `json:"recorded_at" gorm:"index"`
}

// TableName specifies the table name for GORM
func (ModelMetric) TableName() string {
	return "model_metrics"
}
