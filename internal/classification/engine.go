package classification

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/killallgit/sensitive-data-api/internal/models"
	"github.com/killallgit/sensitive-data-api/pkg/config"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

// Detector is the capability shared by both detectors
type Detector interface {
	Classify(ctx context.Context, text string, types []string) ([]models.Entity, error)
}

var (
	_ Detector = (*PatternMatcher)(nil)
	_ Detector = (*StatisticalClassifier)(nil)
)

// EngineConfig configures an Engine
type EngineConfig struct {
	MaxTextLength    int
	UsePattern       bool
	UseStatistical   bool
	DefaultTypes     []string
	BatchConcurrency int
	MaxBatchSize     int
	Confidence       ConfidenceConfig
}

// EngineConfigFromConfig builds engine settings from the classification section
func EngineConfigFromConfig(c config.ClassificationConfig) (EngineConfig, error) {
	confidence, err := ConfidenceFromConfig(c.Confidence)
	if err != nil {
		return EngineConfig{}, err
	}
	return EngineConfig{
		MaxTextLength:    c.MaxTextLength,
		UsePattern:       c.UsePattern,
		UseStatistical:   c.UseStatistical,
		DefaultTypes:     c.DefaultTypes,
		BatchConcurrency: c.BatchConcurrency,
		MaxBatchSize:     c.MaxBatchSize,
		Confidence:       confidence,
	}, nil
}

// ClassifyOptions narrows a single call. Nil toggles mean enabled.
type ClassifyOptions struct {
	Types          []string `json:"types,omitempty"`
	UsePattern     *bool    `json:"use_pattern,omitempty"`
	UseStatistical *bool    `json:"use_statistical,omitempty"`
}

// Stats describes the engine configuration and model health
type Stats struct {
	UsePattern        bool             `json:"use_pattern"`
	UseStatistical    bool             `json:"use_statistical"`
	StatisticalLoaded bool             `json:"statistical_loaded"`
	StatisticalState  string           `json:"statistical_state"`
	Degraded          bool             `json:"degraded"`
	LastLoadError     string           `json:"last_load_error,omitempty"`
	PatternCount      int              `json:"pattern_count"`
	PatternNames      []string         `json:"pattern_names"`
	ConfidenceConfig  ConfidenceConfig `json:"confidence_config"`
	MaxTextLength     int              `json:"max_text_length"`
	MaxBatchSize      int              `json:"max_batch_size"`
}

// Engine orchestrates the pattern matcher, the statistical classifier and the merger
type Engine struct {
	cfg         EngineConfig
	pattern     *PatternMatcher
	statistical *StatisticalClassifier
	merger      *Merger
	log         *zap.Logger
}

// NewEngine wires the detectors. statistical may be nil.
func NewEngine(cfg EngineConfig, pattern *PatternMatcher, statistical *StatisticalClassifier, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.BatchConcurrency < 1 {
		cfg.BatchConcurrency = 1
	}
	if pattern == nil {
		cfg.UsePattern = false
	}
	if statistical == nil {
		cfg.UseStatistical = false
	}
	return &Engine{
		cfg:         cfg,
		pattern:     pattern,
		statistical: statistical,
		merger:      NewMerger(cfg.Confidence),
		log:         log,
	}
}

// Statistical returns the statistical classifier, or nil
func (e *Engine) Statistical() *StatisticalClassifier {
	return e.statistical
}

// Classify detects entities in text. A statistical model that cannot be
// loaded degrades the result to pattern-only instead of failing the call.
func (e *Engine) Classify(ctx context.Context, text string, opts ClassifyOptions) (*Result, error) {
	start := time.Now()
	result, err := e.classify(ctx, text, opts)

	outcome := "ok"
	switch {
	case apperrors.Is(err, apperrors.ErrCodeInvalidInput):
		outcome = "invalid"
	case err != nil:
		outcome = "error"
	}
	classifyDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	result.ProcessingTime = time.Since(start)
	result.ProcessingTimeMs = float64(result.ProcessingTime.Microseconds()) / 1000
	for _, ent := range result.Entities {
		entitiesTotal.WithLabelValues(string(ent.Source), ent.Label).Inc()
	}
	if result.Degraded {
		degradedTotal.Inc()
	}
	return result, nil
}

func (e *Engine) classify(ctx context.Context, text string, opts ClassifyOptions) (*Result, error) {
	start := time.Now()
	if err := checkLength(text, e.cfg.MaxTextLength); err != nil {
		return nil, err
	}

	types := opts.Types
	if len(types) == 0 {
		types = e.cfg.DefaultTypes
	}
	usePattern := e.cfg.UsePattern && enabled(opts.UsePattern)
	useStatistical := e.cfg.UseStatistical && enabled(opts.UseStatistical)

	var patternEntities, statisticalEntities []models.Entity
	degraded := false

	g, gctx := errgroup.WithContext(ctx)
	if usePattern {
		g.Go(func() error {
			ents, err := e.pattern.Classify(gctx, text, types)
			patternEntities = ents
			return err
		})
	}
	if useStatistical {
		g.Go(func() error {
			ents, err := e.statistical.Classify(gctx, text, types)
			if apperrors.Is(err, apperrors.ErrCodeModelUnavailable) {
				degraded = true
				return nil
			}
			statisticalEntities = ents
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := e.merger.Merge(patternEntities, statisticalEntities)
	return newResult(merged, e.cfg.Confidence.HighConfidenceThreshold, time.Since(start), degraded), nil
}

// ClassifyBatch classifies each text independently with bounded concurrency.
// Failures are reported per item; the returned error is only for a batch that
// is rejected as a whole.
func (e *Engine) ClassifyBatch(ctx context.Context, texts []string, opts ClassifyOptions) ([]BatchItem, error) {
	if len(texts) == 0 {
		return nil, apperrors.InvalidInput("batch must contain at least one text")
	}
	if e.cfg.MaxBatchSize > 0 && len(texts) > e.cfg.MaxBatchSize {
		return nil, apperrors.InvalidInput("batch of %d texts exceeds the maximum of %d", len(texts), e.cfg.MaxBatchSize)
	}

	items := make([]BatchItem, len(texts))
	var g errgroup.Group
	g.SetLimit(e.cfg.BatchConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			res, err := e.Classify(ctx, text, opts)
			items[i] = BatchItem{Index: i, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return items, nil
}

// Stats reports configuration and model state. It never triggers or waits on a model load.
func (e *Engine) Stats() Stats {
	s := Stats{
		UsePattern:       e.cfg.UsePattern,
		UseStatistical:   e.cfg.UseStatistical,
		StatisticalState: StateUnloaded.String(),
		ConfidenceConfig: e.cfg.Confidence,
		MaxTextLength:    e.cfg.MaxTextLength,
		MaxBatchSize:     e.cfg.MaxBatchSize,
		PatternNames:     []string{},
	}
	if e.pattern != nil {
		s.PatternCount = e.pattern.Count()
		s.PatternNames = e.pattern.PatternNames()
	}
	if e.statistical != nil {
		state := e.statistical.State()
		s.StatisticalState = state.String()
		s.StatisticalLoaded = state == StateLoaded
		s.Degraded = state == StateDegraded
		s.LastLoadError = e.statistical.LastError()
	}
	return s
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// Bool returns a pointer to b, for ClassifyOptions toggles
func Bool(b bool) *bool {
	return &b
}

func checkLength(text string, maxLength int) error {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return apperrors.InvalidInput("text must not be empty")
	}
	if maxLength > 0 && n > maxLength {
		return apperrors.InvalidInput("text length %d exceeds the maximum of %d", n, maxLength).
			WithDetail("max_text_length", maxLength)
	}
	return nil
}
