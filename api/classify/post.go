package classify

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/sensitive-data-api/api/types"
	"github.com/killallgit/sensitive-data-api/internal/classification"
)

// Post classifies one text
// @Summary      Classify text
// @Description  Detect sensitive entities with the pattern matcher and the statistical model and merge the results
// @Tags         classify
// @Accept       json
// @Produce      json
// @Param        request body types.ClassifyRequest true "Text and options"
// @Success      200 {object} types.ClassifyResponse
// @Failure      400 {object} types.ErrorResponse "Invalid request"
// @Failure      500 {object} types.ErrorResponse "Internal server error"
// @Router       /api/v1/classify [post]
func Post(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ClassifyRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		result, err := deps.Classifier.Classify(c.Request.Context(), req.Text, classification.ClassifyOptions{
			Types:          req.Types,
			UsePattern:     req.UsePattern,
			UseStatistical: req.UseStatistical,
		})
		if err != nil {
			types.SendError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.ClassifyResponse{
			BaseResponse:    types.BaseResponse{Status: types.StatusOK},
			Result:          result,
			EntitiesByLabel: result.ByLabel(),
		})
	}
}

// PostBatch classifies several texts independently
// @Summary      Classify a batch of texts
// @Description  Each text is classified on its own; a bad item fails alone
// @Tags         classify
// @Accept       json
// @Produce      json
// @Param        request body types.BatchClassifyRequest true "Texts and options"
// @Success      200 {object} types.BatchClassifyResponse
// @Failure      400 {object} types.ErrorResponse "Invalid request"
// @Router       /api/v1/classify/batch [post]
func PostBatch(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.BatchClassifyRequest
		if !types.BindJSONOrError(c, &req) {
			return
		}

		items, err := deps.Classifier.ClassifyBatch(c.Request.Context(), req.Texts, classification.ClassifyOptions{
			Types:          req.Types,
			UsePattern:     req.UsePattern,
			UseStatistical: req.UseStatistical,
		})
		if err != nil {
			types.SendError(c, err)
			return
		}

		resp := types.BatchClassifyResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK},
			Items:        make([]types.BatchItemResponse, len(items)),
		}
		for i, item := range items {
			out := types.BatchItemResponse{Index: item.Index, Result: item.Result}
			if item.Err != nil {
				_, body := types.ErrorBody(item.Err)
				out.Error = &body
				resp.Failed++
			} else {
				resp.Succeeded++
			}
			resp.Items[i] = out
		}

		c.JSON(http.StatusOK, resp)
	}
}
