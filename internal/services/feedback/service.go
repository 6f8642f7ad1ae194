package feedback

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/internal/models"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

const (
	DefaultPageSize    = 50
	MaxPageSize        = 500
	DefaultStatsWindow = 30 * 24 * time.Hour
)

// SubmitRequest is a user's judgement of a classification result
type SubmitRequest struct {
	Text              string
	Entities          []models.Entity
	IsCorrect         bool
	CorrectedEntities []models.Entity
	CorrectedType     string
	Notes             string
	UserID            string
}

// Page is one page of feedback rows
type Page struct {
	Items  []models.Feedback `json:"items"`
	Total  int64             `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// DailyCount is the feedback volume of one UTC day
type DailyCount struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
}

// UserCount is one user's contribution inside the window
type UserCount struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// Stats aggregates feedback over a window
type Stats struct {
	WindowDays     int          `json:"window_days"`
	Total          int          `json:"total"`
	Correct        int          `json:"correct"`
	Incorrect      int          `json:"incorrect"`
	AccuracyRate   float64      `json:"accuracy_rate"`
	Unincorporated int64        `json:"unincorporated"`
	DailyTrend     []DailyCount `json:"daily_trend"`
	ByUser         []UserCount  `json:"by_user"`
}

// ServiceImpl implements the Service interface
type ServiceImpl struct {
	repository Repository
	log        *zap.Logger
	now        func() time.Time
}

// NewService creates a new feedback service
func NewService(repository Repository, log *zap.Logger) Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &ServiceImpl{repository: repository, log: log, now: time.Now}
}

// SubmitFeedback stores the feedback. Incorrect feedback that carries
// corrections also becomes an unverified training example.
func (s *ServiceImpl) SubmitFeedback(ctx context.Context, req SubmitRequest) (uint, error) {
	if strings.TrimSpace(req.Text) == "" {
		return 0, apperrors.InvalidInput("text is required")
	}
	if err := models.EntityList(req.Entities).ValidateAll(req.Text); err != nil {
		return 0, apperrors.InvalidInput("invalid entities: %v", err)
	}
	if err := models.EntityList(req.CorrectedEntities).ValidateAll(req.Text); err != nil {
		return 0, apperrors.InvalidInput("invalid corrected_entities: %v", err)
	}
	if req.IsCorrect && len(req.CorrectedEntities) > 0 {
		return 0, apperrors.InvalidInput("corrected_entities must be empty when is_correct is true")
	}

	fb := &models.Feedback{
		UUID:              uuid.New().String(),
		Text:              req.Text,
		Entities:          models.EntityList(req.Entities),
		IsCorrect:         req.IsCorrect,
		CorrectedEntities: models.EntityList(req.CorrectedEntities),
		CorrectedType:     req.CorrectedType,
		Notes:             req.Notes,
		UserID:            req.UserID,
	}

	var example *models.TrainingExample
	if fb.HasCorrections() {
		example = &models.TrainingExample{
			Text:               req.Text,
			Entities:           models.EntityList(req.CorrectedEntities),
			ClassificationType: req.CorrectedType,
			Source:             models.ExampleSourceUserFeedback,
			Language:           "en",
			Verified:           false,
		}
	}

	if err := s.repository.Create(ctx, fb, example); err != nil {
		return 0, apperrors.DatabaseError("submit feedback", err)
	}

	s.log.Info("feedback submitted",
		zap.Uint("feedback_id", fb.ID),
		zap.Bool("is_correct", fb.IsCorrect),
		zap.Bool("training_example", example != nil),
		zap.String("user_id", fb.UserID))
	return fb.ID, nil
}

// GetFeedback returns one feedback row
func (s *ServiceImpl) GetFeedback(ctx context.Context, id uint) (*models.Feedback, error) {
	fb, err := s.repository.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrFeedbackNotFound) {
			return nil, apperrors.NotFound("feedback", id)
		}
		return nil, apperrors.DatabaseError("get feedback", err)
	}
	return fb, nil
}

// ListFeedback returns a page of feedback, newest first
func (s *ServiceImpl) ListFeedback(ctx context.Context, filters ListFilters) (*Page, error) {
	filters.Limit, filters.Offset = normalizePage(filters.Limit, filters.Offset)

	rows, total, err := s.repository.List(ctx, filters)
	if err != nil {
		return nil, apperrors.DatabaseError("list feedback", err)
	}
	if rows == nil {
		rows = []models.Feedback{}
	}
	return &Page{Items: rows, Total: total, Limit: filters.Limit, Offset: filters.Offset}, nil
}

// GetStats aggregates the feedback created within window of now
func (s *ServiceImpl) GetStats(ctx context.Context, window time.Duration) (*Stats, error) {
	if window <= 0 {
		window = DefaultStatsWindow
	}
	since := s.now().Add(-window)

	rows, err := s.repository.Since(ctx, since)
	if err != nil {
		return nil, apperrors.DatabaseError("feedback stats", err)
	}
	unincorporated, err := s.repository.CountUnincorporated(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError("feedback stats", err)
	}

	stats := &Stats{
		WindowDays:     int(window / (24 * time.Hour)),
		Unincorporated: unincorporated,
		DailyTrend:     []DailyCount{},
		ByUser:         []UserCount{},
	}

	days := make(map[string]*DailyCount)
	users := make(map[string]int)
	for _, row := range rows {
		stats.Total++
		day := row.CreatedAt.UTC().Format("2006-01-02")
		dc, ok := days[day]
		if !ok {
			dc = &DailyCount{Date: day}
			days[day] = dc
		}
		dc.Total++
		if row.IsCorrect {
			stats.Correct++
			dc.Correct++
		} else {
			stats.Incorrect++
			dc.Incorrect++
		}
		if row.UserID != "" {
			users[row.UserID]++
		}
	}
	if stats.Total > 0 {
		stats.AccuracyRate = float64(stats.Correct) / float64(stats.Total)
	}

	for _, dc := range days {
		stats.DailyTrend = append(stats.DailyTrend, *dc)
	}
	sort.Slice(stats.DailyTrend, func(i, j int) bool {
		return stats.DailyTrend[i].Date < stats.DailyTrend[j].Date
	})

	for user, n := range users {
		stats.ByUser = append(stats.ByUser, UserCount{UserID: user, Count: n})
	}
	sort.Slice(stats.ByUser, func(i, j int) bool {
		if stats.ByUser[i].Count != stats.ByUser[j].Count {
			return stats.ByUser[i].Count > stats.ByUser[j].Count
		}
		return stats.ByUser[i].UserID < stats.ByUser[j].UserID
	})

	return stats, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
