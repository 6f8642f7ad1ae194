package classification

import (
	"time"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

// Result is the outcome of one classify call. It is a fresh value owned by the caller.
type Result struct {
	Entities            []models.Entity             `json:"entities"`
	OverallConfidence   float64                     `json:"overall_confidence"`
	ProcessingTime      time.Duration               `json:"-"`
	ProcessingTimeMs    float64                     `json:"processing_time_ms"`
	SourceCounts        map[models.EntitySource]int `json:"source_counts"`
	HighConfidenceCount int                         `json:"high_confidence_count"`
	Degraded            bool                        `json:"degraded"`
}

func newResult(entities []models.Entity, highThreshold float64, elapsed time.Duration, degraded bool) *Result {
	if entities == nil {
		entities = []models.Entity{}
	}
	r := &Result{
		Entities:         entities,
		ProcessingTime:   elapsed,
		ProcessingTimeMs: float64(elapsed.Microseconds()) / 1000,
		SourceCounts: map[models.EntitySource]int{
			models.SourceFused:       0,
			models.SourcePattern:     0,
			models.SourceStatistical: 0,
		},
		Degraded: degraded,
	}

	var sum float64
	for _, e := range entities {
		sum += e.Confidence
		r.SourceCounts[e.Source]++
		if e.Confidence >= highThreshold {
			r.HighConfidenceCount++
		}
	}
	// 0.0 when nothing was kept
	if len(entities) > 0 {
		r.OverallConfidence = sum / float64(len(entities))
	}
	return r
}

// ByLabel groups entities by coarse label
func (r *Result) ByLabel() map[string][]models.Entity {
	out := make(map[string][]models.Entity)
	for _, e := range r.Entities {
		out[e.Label] = append(out[e.Label], e)
	}
	return out
}

// BatchItem is one element of a batch result; exactly one of Result and Err is set
type BatchItem struct {
	Index  int
	Result *Result
	Err    error
}
