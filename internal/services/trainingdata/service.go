package trainingdata

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/internal/models"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// AddRequest is a curated example
type AddRequest struct {
	Text               string
	Entities           []models.Entity
	ClassificationType string
	Source             models.TrainingExampleSource
	Language           string
	Verified           bool
	VerifiedBy         string
}

// Page is one page of training examples
type Page struct {
	Items  []models.TrainingExample `json:"items"`
	Total  int64                    `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// Stats summarises the example pool
type Stats struct {
	Total      int64         `json:"total"`
	Verified   int64         `json:"verified"`
	Unverified int64         `json:"unverified"`
	BySource   []SourceCount `json:"by_source"`
}

// CollectOptions selects which examples a training run consumes
type CollectOptions struct {
	IncludeFeedback bool
	IncludeDatasets bool
	// Limit caps the examples read; zero means no cap
	Limit int
}

// LabeledExample is a text with the gold spans that survived validation
type LabeledExample struct {
	ExampleID  uint
	FeedbackID *uint
	Text       string
	Entities   []models.Entity
}

// Collection is the outcome of Collect
type Collection struct {
	Examples []LabeledExample
	// InvalidSpans counts spans excluded for falling outside their text
	InvalidSpans int
	// SkippedExamples counts examples left with no valid span
	SkippedExamples int
	FeedbackIDs     []uint
	ExampleIDs      []uint
}

// Len is the number of usable examples
func (c *Collection) Len() int {
	return len(c.Examples)
}

// ServiceImpl implements the Service interface
type ServiceImpl struct {
	repository Repository
	log        *zap.Logger
	now        func() time.Time
}

// NewService creates a new training data service
func NewService(repository Repository, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &ServiceImpl{repository: repository, log: log, now: time.Now}
}

// AddExample validates and stores a curated example
func (s *ServiceImpl) AddExample(ctx context.Context, req AddRequest) (*models.TrainingExample, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperrors.InvalidInput("text is required")
	}
	if len(req.Entities) == 0 {
		return nil, apperrors.InvalidInput("at least one entity is required")
	}
	if err := models.EntityList(req.Entities).ValidateAll(req.Text); err != nil {
		return nil, apperrors.InvalidInput("invalid entities: %v", err)
	}

	source := req.Source
	if source == "" {
		source = models.ExampleSourceManual
	}
	if source != models.ExampleSourceManual && source != models.ExampleSourceImported {
		return nil, apperrors.InvalidInput("source must be %q or %q", models.ExampleSourceManual, models.ExampleSourceImported)
	}
	language := req.Language
	if language == "" {
		language = "en"
	}

	example := &models.TrainingExample{
		Text:               req.Text,
		Entities:           models.EntityList(req.Entities),
		ClassificationType: req.ClassificationType,
		Source:             source,
		Language:           language,
	}
	if req.Verified {
		now := s.now()
		example.Verified = true
		example.VerifiedBy = req.VerifiedBy
		example.VerifiedAt = &now
	}

	if err := s.repository.Create(ctx, example); err != nil {
		return nil, apperrors.DatabaseError("add training example", err)
	}
	s.log.Info("training example added",
		zap.Uint("example_id", example.ID),
		zap.String("source", string(example.Source)),
		zap.Int("entities", len(example.Entities)),
		zap.Bool("verified", example.Verified))
	return example, nil
}

// GetExample returns one training example
func (s *ServiceImpl) GetExample(ctx context.Context, id uint) (*models.TrainingExample, error) {
	example, err := s.repository.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrExampleNotFound) {
			return nil, apperrors.NotFound("training example", id)
		}
		return nil, apperrors.DatabaseError("get training example", err)
	}
	return example, nil
}

// ListExamples returns a page of examples, newest first
func (s *ServiceImpl) ListExamples(ctx context.Context, filters ListFilters) (*Page, error) {
	if filters.Source != "" && !filters.Source.Valid() {
		return nil, apperrors.InvalidInput("unknown source %q", filters.Source)
	}
	if filters.Limit <= 0 {
		filters.Limit = DefaultPageSize
	}
	if filters.Limit > MaxPageSize {
		filters.Limit = MaxPageSize
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	examples, total, err := s.repository.List(ctx, filters)
	if err != nil {
		return nil, apperrors.DatabaseError("list training examples", err)
	}
	if examples == nil {
		examples = []models.TrainingExample{}
	}
	return &Page{Items: examples, Total: total, Limit: filters.Limit, Offset: filters.Offset}, nil
}

// VerifyExample marks an example as checked by a curator
func (s *ServiceImpl) VerifyExample(ctx context.Context, id uint, verifiedBy string) (*models.TrainingExample, error) {
	if err := s.repository.MarkVerified(ctx, id, verifiedBy, s.now()); err != nil {
		if errors.Is(err, ErrExampleNotFound) {
			return nil, apperrors.NotFound("training example", id)
		}
		return nil, apperrors.DatabaseError("verify training example", err)
	}
	s.log.Info("training example verified", zap.Uint("example_id", id), zap.String("verified_by", verifiedBy))
	return s.GetExample(ctx, id)
}

// GetStats counts examples by source and verification
func (s *ServiceImpl) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.repository.CountBySource(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("training data stats", err)
	}
	stats := &Stats{BySource: counts}
	if stats.BySource == nil {
		stats.BySource = []SourceCount{}
	}
	for _, c := range counts {
		stats.Total += c.Total
		stats.Verified += c.Verified
	}
	stats.Unverified = stats.Total - stats.Verified
	return stats, nil
}

// Collect reads the eligible examples and drops spans that do not fit their
// text. It does not touch usage counts.
func (s *ServiceImpl) Collect(ctx context.Context, opts CollectOptions) (*Collection, error) {
	rows, err := s.repository.Eligible(ctx, opts.IncludeFeedback, opts.IncludeDatasets, opts.Limit)
	if err != nil {
		return nil, apperrors.DatabaseError("collect training examples", err)
	}

	c := &Collection{}
	seenFeedback := make(map[uint]bool)
	for _, row := range rows {
		valid, invalid := row.Entities.Partition(row.Text)
		c.InvalidSpans += invalid
		if len(valid) == 0 {
			c.SkippedExamples++
			continue
		}

		c.Examples = append(c.Examples, LabeledExample{
			ExampleID:  row.ID,
			FeedbackID: row.FeedbackID,
			Text:       row.Text,
			Entities:   valid,
		})
		c.ExampleIDs = append(c.ExampleIDs, row.ID)
		if row.FeedbackID != nil && !seenFeedback[*row.FeedbackID] {
			seenFeedback[*row.FeedbackID] = true
			c.FeedbackIDs = append(c.FeedbackIDs, *row.FeedbackID)
		}
	}

	if c.InvalidSpans > 0 || c.SkippedExamples > 0 {
		s.log.Warn("malformed training spans excluded",
			zap.Int("invalid_spans", c.InvalidSpans),
			zap.Int("skipped_examples", c.SkippedExamples))
	}
	s.log.Info("training examples collected",
		zap.Int("examples", len(c.Examples)),
		zap.Int("from_feedback", len(c.FeedbackIDs)))
	return c, nil
}

func (s *ServiceImpl) RecordUsage(ctx context.Context, ids []uint) error {
	if err := s.repository.MarkUsed(ctx, ids, s.now()); err != nil {
		return apperrors.DatabaseError("record training example usage", err)
	}
	return nil
}
