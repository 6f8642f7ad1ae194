package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/killallgit/sensitive-data-api/internal/database"
	"github.com/killallgit/sensitive-data-api/internal/models"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Initialize("", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(zaptest.NewLogger(t)))
	t.Cleanup(func() { _ = db.Close() })
	return db.DB
}

func register(t *testing.T, db *gorm.DB, s *ServiceImpl, lineage string) *models.ModelVersion {
	t.Helper()
	tag, err := s.NextVersionTag(context.Background(), lineage)
	require.NoError(t, err)
	v := &models.ModelVersion{
		Lineage:          lineage,
		Version:          tag,
		ArtifactLocation: lineage + "/" + tag + "/model.json",
		F1:               0.8,
		Active:           true, // Register must clear this
		Production:       true,
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return s.Register(tx, v)
	}))
	return v
}

func TestRegister_NeverActivates(t *testing.T) {
	db := setupTestDB(t)
	s := NewService(NewRepository(db), zaptest.NewLogger(t))

	v := register(t, db, s, "default")
	got, err := s.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.False(t, got.Production)
	assert.Nil(t, got.DeployedAt)

	_, found, err := s.ActiveArtifact(context.Background(), "default")
	require.NoError(t, err)
	assert.False(t, found)

	err = db.Transaction(func(tx *gorm.DB) error {
		return s.Register(tx, &models.ModelVersion{Lineage: "default"})
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
}

func TestNextVersionTag(t *testing.T) {
	db := setupTestDB(t)
	s := NewService(NewRepository(db), nil)
	ctx := context.Background()

	tag, err := s.NextVersionTag(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "v1", tag)

	register(t, db, s, "default")
	register(t, db, s, "default")
	register(t, db, s, "medical")

	tag, err = s.NextVersionTag(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "v3", tag)

	tag, err = s.NextVersionTag(ctx, "medical")
	require.NoError(t, err)
	assert.Equal(t, "v2", tag)
}

func TestPromote_SingleActivePerLineage(t *testing.T) {
	db := setupTestDB(t)
	s := NewService(NewRepository(db), zaptest.NewLogger(t))
	ctx := context.Background()

	v1 := register(t, db, s, "default")
	v2 := register(t, db, s, "default")
	other := register(t, db, s, "medical")

	var mu sync.Mutex
	var notified []string
	s.OnActivation(func(ctx context.Context, lineage string) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, lineage)
	})

	_, err := s.Promote(ctx, other.ID, PromoteOptions{})
	require.NoError(t, err)

	promoted, err := s.Promote(ctx, v1.ID, PromoteOptions{Production: true, PromotedBy: "ops"})
	require.NoError(t, err)
	assert.True(t, promoted.Active)
	assert.True(t, promoted.Production)
	assert.NotNil(t, promoted.DeployedAt)

	promoted, err = s.Promote(ctx, v2.ID, PromoteOptions{Production: true})
	require.NoError(t, err)
	assert.Equal(t, v2.ID, promoted.ID)

	first, err := s.Get(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, first.Active)
	assert.False(t, first.Production)

	active, err := s.GetActive(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, active.ID)

	// Other lineages are untouched
	med, err := s.GetActive(ctx, "medical")
	require.NoError(t, err)
	assert.Equal(t, other.ID, med.ID)

	location, found, err := s.ActiveArtifact(ctx, "default")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "default/v2/model.json", location)

	assert.Equal(t, []string{"medical", "default", "default"}, notified)
}

func TestPromote_WithoutProductionKeepsProductionFlag(t *testing.T) {
	db := setupTestDB(t)
	s := NewService(NewRepository(db), nil)
	ctx := context.Background()

	v1 := register(t, db, s, "default")
	v2 := register(t, db, s, "default")

	_, err := s.Promote(ctx, v1.ID, PromoteOptions{Production: true})
	require.NoError(t, err)
	_, err = s.Promote(ctx, v2.ID, PromoteOptions{})
	require.NoError(t, err)

	first, err := s.Get(ctx, v1.ID)
	require.NoError(t, err)
	assert.False(t, first.Active)
	assert.True(t, first.Production, "staging promotion leaves the production version alone")
}

func TestDeactivate(t *testing.T) {
	db := setupTestDB(t)
	s := NewService(NewRepository(db), nil)
	ctx := context.Background()

	v := register(t, db, s, "default")
	_, err := s.Promote(ctx, v.ID, PromoteOptions{Production: true})
	require.NoError(t, err)

	calls := 0
	s.OnActivation(func(ctx context.Context, lineage string) { calls++ })

	got, err := s.Deactivate(ctx, v.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.False(t, got.Production)
	assert.Equal(t, 1, calls)

	_, err = s.GetActive(ctx, "default")
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestNotFound(t *testing.T) {
	db := setupTestDB(t)
	s := NewService(NewRepository(db), nil)
	ctx := context.Background()

	_, err := s.Get(ctx, 42)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	_, err = s.Promote(ctx, 42, PromoteOptions{})
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	_, err = s.Deactivate(ctx, 42)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
	_, err = s.GetMetrics(ctx, 42)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNotFound))
}

func TestListAndMetrics(t *testing.T) {
	db := setupTestDB(t)
	s := NewService(NewRepository(db), nil)
	ctx := context.Background()

	v := register(t, db, s, "default")
	register(t, db, s, "medical")
	require.NoError(t, db.Create(&[]models.ModelMetric{
		{ModelVersionID: v.ID, Name: "f1", Value: 0.8},
		{ModelVersionID: v.ID, Name: "f1", Value: 0.7, EntityType: "PII"},
	}).Error)

	page, err := s.List(ctx, ListFilters{Lineage: "default"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, DefaultPageSize, page.Limit)

	inactive := false
	page, err = s.List(ctx, ListFilters{Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	metrics, err := s.GetMetrics(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.Equal(t, "", metrics[0].EntityType)
	assert.Equal(t, "PII", metrics[1].EntityType)
}
