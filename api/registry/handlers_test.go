package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/internal/database"
	"github.com/killallgit/sensitive-data-api/internal/models"
	registryService "github.com/killallgit/sensitive-data-api/internal/services/registry"
)

type fixture struct {
	router    *gin.Engine
	db        *gorm.DB
	registry  *registryService.ServiceImpl
	activated []string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	db, err := database.Initialize("", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(log))
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{db: db.DB, registry: registryService.NewService(registryService.NewRepository(db.DB), log)}
	f.registry.OnActivation(func(ctx context.Context, lineage string) {
		f.activated = append(f.activated, lineage)
	})

	f.router = gin.New()
	RegisterRoutes(f.router.Group("/api/v1/models"), &types.Dependencies{DB: db, RegistryService: f.registry})
	return f
}

func (f *fixture) register(t *testing.T, lineage string) *models.ModelVersion {
	t.Helper()
	tag, err := f.registry.NextVersionTag(context.Background(), lineage)
	require.NoError(t, err)
	v := &models.ModelVersion{Lineage: lineage, Version: tag, ArtifactLocation: lineage + "/" + tag + "/model.json", F1: 0.75}
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.registry.Register(tx, v)
	}))
	return v
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(types.UserIDHeader, "release-manager")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func path(id uint, suffix string) string {
	return "/api/v1/models/" + strconv.FormatUint(uint64(id), 10) + suffix
}

func TestPromoteAndDeactivate(t *testing.T) {
	f := setup(t)
	v1 := f.register(t, "default")
	v2 := f.register(t, "default")

	w := f.do(http.MethodPost, path(v1.ID, "/promote"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp types.ModelVersionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Model.Active)
	assert.False(t, resp.Model.Production)

	w = f.do(http.MethodPost, path(v2.ID, "/promote"), `{"production":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Model.Active)
	assert.True(t, resp.Model.Production)
	assert.NotNil(t, resp.Model.DeployedAt)

	w = f.do(http.MethodGet, path(v1.ID, ""), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Model.Active, "one active version per lineage")

	w = f.do(http.MethodPost, path(v2.ID, "/deactivate"), "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Model.Active)

	assert.Equal(t, []string{"default", "default", "default"}, f.activated)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, path(404, "/promote"), "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, path(404, "/deactivate"), "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, path(v1.ID, "/promote"), `{"production":"yes"}`).Code)
}

func TestListAndMetrics(t *testing.T) {
	f := setup(t)
	v1 := f.register(t, "default")
	f.register(t, "other")

	require.NoError(t, f.db.Create(&models.ModelMetric{
		ModelVersionID: v1.ID, Name: "f1", Value: 0.75, RecordedAt: time.Now(),
	}).Error)
	require.NoError(t, f.db.Create(&models.ModelMetric{
		ModelVersionID: v1.ID, Name: "f1", Value: 0.7, EntityType: "PII", RecordedAt: time.Now(),
	}).Error)

	w := f.do(http.MethodGet, "/api/v1/models?lineage=default", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page registryService.Page
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, v1.ID, page.Items[0].ID)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/models?active=sometimes", "").Code)

	w = f.do(http.MethodGet, path(v1.ID, "/metrics"), "")
	require.Equal(t, http.StatusOK, w.Code)
	var metrics []models.ModelMetric
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	assert.Len(t, metrics, 2)

	w = f.do(http.MethodGet, path(v1.ID, ""), "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp types.ModelVersionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Metrics, 2)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, path(999, ""), "").Code)
}
