package trainingdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/killallgit/sensitive-data-api/internal/database"
	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/internal/services/feedback"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Initialize("", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(zaptest.NewLogger(t)))
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

const sample = "Contact John Smith at 123-45-6789"

func person() models.Entity {
	return models.Entity{Text: "John Smith", Start: 8, End: 18, Label: models.LabelPII, Sublabel: "PERSON"}
}

func ssn() models.Entity {
	return models.Entity{Text: "123-45-6789", Start: 22, End: 33, Label: models.LabelPII, Sublabel: "SSN"}
}

func TestAddExample(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(NewRepository(db), zaptest.NewLogger(t))

	example, err := service.AddExample(ctx, AddRequest{Text: sample, Entities: []models.Entity{person()}})
	require.NoError(t, err)
	assert.NotZero(t, example.ID)
	assert.Equal(t, models.ExampleSourceManual, example.Source)
	assert.Equal(t, "en", example.Language)
	assert.False(t, example.Verified)

	verified, err := service.AddExample(ctx, AddRequest{
		Text:       sample,
		Entities:   []models.Entity{ssn()},
		Source:     models.ExampleSourceImported,
		Verified:   true,
		VerifiedBy: "curator",
	})
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.NotNil(t, verified.VerifiedAt)

	invalid := []struct {
		name string
		req  AddRequest
	}{
		{"empty text", AddRequest{Entities: []models.Entity{person()}}},
		{"no entities", AddRequest{Text: sample}},
		{"span past end", AddRequest{Text: "short", Entities: []models.Entity{{Start: 0, End: 9, Label: "PII"}}}},
		{"feedback source", AddRequest{Text: sample, Entities: []models.Entity{person()}, Source: models.ExampleSourceUserFeedback}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.AddExample(ctx, tt.req)
			assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput), "got %v", err)
		})
	}
}

func TestVerifyExample(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(NewRepository(db), nil)

	example, err := service.AddExample(ctx, AddRequest{Text: sample, Entities: []models.Entity{person()}})
	require.NoError(t, err)

	got, err := service.VerifyExample(ctx, example.ID, "reviewer")
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "reviewer", got.VerifiedBy)
	assert.NotNil(t, got.VerifiedAt)

	_, err = service.VerifyExample(ctx, 999, "reviewer")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestListExamplesAndStats(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(NewRepository(db), nil)

	_, err := service.AddExample(ctx, AddRequest{Text: sample, Entities: []models.Entity{person()}, Verified: true})
	require.NoError(t, err)
	_, err = service.AddExample(ctx, AddRequest{Text: sample, Entities: []models.Entity{ssn()}})
	require.NoError(t, err)
	_, err = service.AddExample(ctx, AddRequest{Text: sample, Entities: []models.Entity{ssn()}, Source: models.ExampleSourceImported})
	require.NoError(t, err)

	verified := true
	page, err := service.ListExamples(ctx, ListFilters{Verified: &verified})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = service.ListExamples(ctx, ListFilters{Source: models.ExampleSourceManual, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Items, 1)

	_, err = service.ListExamples(ctx, ListFilters{Source: "scraped"})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))

	stats, err := service.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Verified)
	assert.Equal(t, int64(2), stats.Unverified)
	require.Len(t, stats.BySource, 2)
	assert.Equal(t, SourceCount{Source: models.ExampleSourceImported, Total: 1}, stats.BySource[0])
	assert.Equal(t, SourceCount{Source: models.ExampleSourceManual, Total: 2, Verified: 1}, stats.BySource[1])
}

func TestCollect_FeedbackRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	feedbackService := feedback.NewService(feedback.NewRepository(db), nil)
	service := NewService(NewRepository(db), zaptest.NewLogger(t))

	scored := person()
	scored.Confidence = 0.85
	scored.Source = models.SourceStatistical
	corrected := []models.Entity{scored, ssn()}

	fbID, err := feedbackService.SubmitFeedback(ctx, feedback.SubmitRequest{
		Text:              sample,
		IsCorrect:         false,
		CorrectedEntities: corrected,
	})
	require.NoError(t, err)

	page, err := service.ListExamples(ctx, ListFilters{Source: models.ExampleSourceUserFeedback})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, sample, page.Items[0].Text)
	assert.Equal(t, corrected, []models.Entity(page.Items[0].Entities), "corrections are stored as submitted")

	c, err := service.Collect(ctx, CollectOptions{IncludeFeedback: true})
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())
	assert.Equal(t, sample, c.Examples[0].Text)
	assert.Equal(t, corrected, []models.Entity(c.Examples[0].Entities))
	assert.Equal(t, []uint{fbID}, c.FeedbackIDs)
	assert.Zero(t, c.InvalidSpans)

	// Incorporated feedback is no longer eligible
	_, err = feedback.MarkIncorporated(db, c.FeedbackIDs, 1, time.Now())
	require.NoError(t, err)

	c, err = service.Collect(ctx, CollectOptions{IncludeFeedback: true})
	require.NoError(t, err)
	assert.Zero(t, c.Len())
	assert.Empty(t, c.FeedbackIDs)
}

func TestCollect_Selection(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	service := NewService(repo, nil)
	feedbackService := feedback.NewService(feedback.NewRepository(db), nil)

	_, err := feedbackService.SubmitFeedback(ctx, feedback.SubmitRequest{Text: sample, CorrectedEntities: []models.Entity{person()}})
	require.NoError(t, err)
	_, err = service.AddExample(ctx, AddRequest{Text: sample, Entities: []models.Entity{ssn()}, Verified: true})
	require.NoError(t, err)
	_, err = service.AddExample(ctx, AddRequest{Text: sample, Entities: []models.Entity{ssn()}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		opts     CollectOptions
		expected int
	}{
		{"feedback only", CollectOptions{IncludeFeedback: true}, 1},
		{"datasets only skip unverified", CollectOptions{IncludeDatasets: true}, 1},
		{"both", CollectOptions{IncludeFeedback: true, IncludeDatasets: true}, 2},
		{"both limited", CollectOptions{IncludeFeedback: true, IncludeDatasets: true, Limit: 1}, 1},
		{"neither", CollectOptions{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := service.Collect(ctx, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, c.Len())
		})
	}
}

func TestCollect_InvalidSpansCounted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	service := NewService(repo, nil)

	// Imported rows written straight through the repository skip validation
	require.NoError(t, repo.Create(ctx, &models.TrainingExample{
		Text:     sample,
		Source:   models.ExampleSourceImported,
		Verified: true,
		Entities: models.EntityList{
			person(),
			{Start: 20, End: 10, Label: "PII"},
			{Start: 30, End: 90, Label: "PII"},
		},
	}))
	require.NoError(t, repo.Create(ctx, &models.TrainingExample{
		Text:     "tiny",
		Source:   models.ExampleSourceImported,
		Verified: true,
		Entities: models.EntityList{{Start: 0, End: 40, Label: "PII"}},
	}))

	c, err := service.Collect(ctx, CollectOptions{IncludeDatasets: true})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 3, c.InvalidSpans)
	assert.Equal(t, 1, c.SkippedExamples)
	assert.Equal(t, []models.Entity{person()}, c.Examples[0].Entities)
}

func TestRecordUsage(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	service := NewService(NewRepository(db), nil)

	example, err := service.AddExample(ctx, AddRequest{Text: sample, Entities: []models.Entity{ssn()}, Verified: true})
	require.NoError(t, err)

	c, err := service.Collect(ctx, CollectOptions{IncludeDatasets: true})
	require.NoError(t, err)
	got, err := service.GetExample(ctx, example.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UsageCount, "collecting alone is not a use")
	assert.Nil(t, got.LastUsedAt)

	for i := 0; i < 2; i++ {
		require.NoError(t, service.RecordUsage(ctx, c.ExampleIDs))
	}
	require.NoError(t, service.RecordUsage(ctx, nil))

	got, err = service.GetExample(ctx, example.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsageCount)
	assert.NotNil(t, got.LastUsedAt)
}
