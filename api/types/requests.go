package types

import "github.com/killallgit/sensitive-data-api/internal/models"

// ClassifyRequest represents a single classification request
type ClassifyRequest struct {
	Text           string   `json:"text" binding:"required" example:"Contact John Smith at 123-45-6789"`
	Types          []string `json:"types,omitempty" example:"PII,Financial"`
	UsePattern     *bool    `json:"use_pattern,omitempty"`
	UseStatistical *bool    `json:"use_statistical,omitempty"`
}

// BatchClassifyRequest represents a batch classification request
type BatchClassifyRequest struct {
	Texts          []string `json:"texts" binding:"required"`
	Types          []string `json:"types,omitempty"`
	UsePattern     *bool    `json:"use_pattern,omitempty"`
	UseStatistical *bool    `json:"use_statistical,omitempty"`
}

// FeedbackRequest is a user's judgement of a classification result
type FeedbackRequest struct {
	Text              string          `json:"text" binding:"required"`
	Entities          []models.Entity `json:"entities"`
	IsCorrect         *bool           `json:"is_correct" binding:"required"`
	CorrectedEntities []models.Entity `json:"corrected_entities,omitempty"`
	CorrectedType     string          `json:"corrected_type,omitempty"`
	Notes             string          `json:"notes,omitempty"`
}

// TrainingExampleRequest adds a curated example
type TrainingExampleRequest struct {
	Text               string          `json:"text" binding:"required"`
	Entities           []models.Entity `json:"entities" binding:"required"`
	ClassificationType string          `json:"classification_type,omitempty"`
	Source             string          `json:"source,omitempty" example:"manual"`
	Language           string          `json:"language,omitempty" example:"en"`
	Verified           bool            `json:"verified,omitempty"`
}

// TrainingRunRequest overrides the configured training defaults; omitted fields keep them
type TrainingRunRequest struct {
	Lineage         string   `json:"lineage,omitempty" example:"default"`
	Iterations      *int     `json:"iterations,omitempty"`
	BatchSize       *int     `json:"batch_size,omitempty"`
	Dropout         *float64 `json:"dropout,omitempty"`
	TestSplit       *float64 `json:"test_split,omitempty"`
	MinSamples      *int     `json:"min_samples,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
	IncludeFeedback *bool    `json:"include_feedback,omitempty"`
	IncludeDatasets *bool    `json:"include_datasets,omitempty"`
	Limit           *int     `json:"limit,omitempty"`
	Priority        int      `json:"priority,omitempty"`
}

// PromoteRequest activates a model version
type PromoteRequest struct {
	Production bool `json:"production"`
}
