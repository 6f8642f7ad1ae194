package classify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/internal/classification"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pattern, err := classification.NewPatternMatcher(100, classification.DefaultPatterns()...)
	require.NoError(t, err)
	engine := classification.NewEngine(classification.EngineConfig{
		MaxTextLength:    100,
		UsePattern:       true,
		BatchConcurrency: 2,
		MaxBatchSize:     3,
		Confidence:       classification.DefaultConfidence(),
	}, pattern, nil, zaptest.NewLogger(t))

	router := gin.New()
	RegisterRoutes(router.Group("/api/v1/classify"), &types.Dependencies{Classifier: engine})
	return router
}

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPost(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		wantLabels []string
	}{
		{
			name:       "ssn and email",
			body:       `{"text":"SSN 123-45-6789 mail jo@example.com"}`,
			wantStatus: http.StatusOK,
			wantLabels: []string{"PII"},
		},
		{
			name:       "no sensitive data",
			body:       `{"text":"nothing to see here"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "type filter excludes PII",
			body:       `{"text":"SSN 123-45-6789","types":["Financial"]}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing text",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "text too long",
			body:       `{"text":"` + strings.Repeat("a", 101) + `"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "INVALID_INPUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(router, "/api/v1/classify", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus != http.StatusOK {
				if tt.wantError != "" {
					var resp types.ErrorResponse
					require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
					assert.Equal(t, tt.wantError, resp.Error)
				}
				return
			}

			var resp struct {
				Status          string                   `json:"status"`
				Entities        []map[string]interface{} `json:"entities"`
				EntitiesByLabel map[string][]interface{} `json:"entities_by_label"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, types.StatusOK, resp.Status)

			labels := make([]string, 0, len(resp.EntitiesByLabel))
			for label := range resp.EntitiesByLabel {
				labels = append(labels, label)
			}
			assert.ElementsMatch(t, tt.wantLabels, labels)
		})
	}
}

func TestPostBatch(t *testing.T) {
	router := setupRouter(t)

	w := post(router, "/api/v1/classify/batch", `{"texts":["SSN 123-45-6789","","plain"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp types.BatchClassifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 3)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)

	assert.Nil(t, resp.Items[1].Result)
	require.NotNil(t, resp.Items[1].Error)
	assert.Equal(t, "INVALID_INPUT", resp.Items[1].Error.Error)
	require.NotNil(t, resp.Items[0].Result)
	assert.NotEmpty(t, resp.Items[0].Result.Entities)
	for i, item := range resp.Items {
		assert.Equal(t, i, item.Index, "items keep input order")
	}

	t.Run("batch too large", func(t *testing.T) {
		w := post(router, "/api/v1/classify/batch", `{"texts":["a","b","c","d"]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetStats(t *testing.T) {
	router := setupRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/classify/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats classification.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.True(t, stats.UsePattern)
	assert.False(t, stats.UseStatistical)
	assert.Equal(t, len(classification.DefaultPatterns()), stats.PatternCount)
	assert.Equal(t, 3, stats.MaxBatchSize)
}
