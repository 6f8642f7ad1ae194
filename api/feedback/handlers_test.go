package feedback

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/internal/database"
	"github.com/killallgit/sensitive-data-api/internal/models"
	feedbackService "github.com/killallgit/sensitive-data-api/internal/services/feedback"
)

func setupRouter(t *testing.T) (*gin.Engine, *database.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	db, err := database.Initialize("", false)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(log))
	t.Cleanup(func() { _ = db.Close() })

	deps := &types.Dependencies{
		DB:              db,
		FeedbackService: feedbackService.NewService(feedbackService.NewRepository(db.DB), log),
	}
	router := gin.New()
	RegisterRoutes(router.Group("/api/v1/feedback"), deps)
	return router, db
}

func do(router *gin.Engine, method, path, body, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(types.UserIDHeader, user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreate(t *testing.T) {
	router, db := setupRouter(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantGold   bool
	}{
		{
			name:       "confirmation",
			body:       `{"text":"call 555-123-4567","entities":[{"text":"555-123-4567","start":5,"end":17,"label":"PII"}],"is_correct":true}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "correction becomes training example",
			body:       `{"text":"I am Alice","entities":[],"is_correct":false,"corrected_entities":[{"text":"Alice","start":5,"end":10,"label":"PII"}]}`,
			wantStatus: http.StatusCreated,
			wantGold:   true,
		},
		{
			name:       "missing is_correct",
			body:       `{"text":"hello"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "span outside text",
			body:       `{"text":"short","entities":[{"start":2,"end":50,"label":"PII"}],"is_correct":true}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "corrections on correct feedback",
			body:       `{"text":"I am Alice","is_correct":true,"corrected_entities":[{"start":5,"end":10,"label":"PII"}]}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before int64
			require.NoError(t, db.DB.Model(&models.TrainingExample{}).Count(&before).Error)

			w := do(router, http.MethodPost, "/api/v1/feedback", tt.body, "reviewer-1")
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusCreated {
				return
			}

			var resp types.FeedbackCreatedResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotZero(t, resp.FeedbackID)

			var fb models.Feedback
			require.NoError(t, db.DB.First(&fb, resp.FeedbackID).Error)
			assert.Equal(t, "reviewer-1", fb.UserID)

			var after int64
			require.NoError(t, db.DB.Model(&models.TrainingExample{}).Count(&after).Error)
			if tt.wantGold {
				assert.Equal(t, before+1, after)
			} else {
				assert.Equal(t, before, after)
			}
		})
	}
}

func TestListAndGet(t *testing.T) {
	router, _ := setupRouter(t)

	for i, correct := range []bool{true, false, true} {
		body := fmt.Sprintf(`{"text":"text %d","is_correct":%t}`, i, correct)
		require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/v1/feedback", body, "u1").Code)
	}

	t.Run("filter by judgement", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/feedback?is_correct=true", "", "")
		require.Equal(t, http.StatusOK, w.Code)

		var page feedbackService.Page
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.EqualValues(t, 2, page.Total)
		for _, fb := range page.Items {
			assert.True(t, fb.IsCorrect)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/feedback?limit=1&offset=1", "", "")
		require.Equal(t, http.StatusOK, w.Code)

		var page feedbackService.Page
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.EqualValues(t, 3, page.Total)
		assert.Len(t, page.Items, 1)
		assert.Equal(t, 1, page.Offset)
	})

	t.Run("invalid filters", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/feedback?is_correct=maybe", "", "").Code)
		assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/feedback?since=yesterday", "", "").Code)
	})

	t.Run("get by id", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/feedback/1", "", "")
		require.Equal(t, http.StatusOK, w.Code)

		var fb models.Feedback
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fb))
		assert.Equal(t, "text 0", fb.Text)
	})

	t.Run("get missing", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/feedback/999", "", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("get invalid id", func(t *testing.T) {
		w := do(router, http.MethodGet, "/api/v1/feedback/abc", "", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetStats(t *testing.T) {
	router, _ := setupRouter(t)

	for _, body := range []string{
		`{"text":"a","is_correct":true}`,
		`{"text":"b","is_correct":true}`,
		`{"text":"c","is_correct":false}`,
	} {
		require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/api/v1/feedback", body, "u1").Code)
	}

	w := do(router, http.MethodGet, "/api/v1/feedback/stats?days=7", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var stats feedbackService.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 7, stats.WindowDays)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Correct)
	assert.InDelta(t, 2.0/3.0, stats.AccuracyRate, 1e-9)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/feedback/stats?days=-1", "", "").Code)
}
