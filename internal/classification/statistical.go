package classification

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/killallgit/sensitive-data-api/internal/models"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

// RawSpan is a tagged span reported by a recognizer. Offsets are rune offsets.
type RawSpan struct {
	Start int      `json:"start"`
	End   int      `json:"end"`
	Tag   string   `json:"label"`
	Text  string   `json:"text,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// Recognizer is an entity recognition capability
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]RawSpan, error)
}

// Loader produces the recognizers backing a StatisticalClassifier
type Loader func(ctx context.Context) ([]Recognizer, error)

// State is the lifecycle of the statistical model
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

var generalTags = map[string][2]string{
	"PERSON":   {models.LabelPII, "PERSON"},
	"ORG":      {models.LabelPII, "ORGANIZATION"},
	"GPE":      {models.LabelPII, "LOCATION"},
	"LOC":      {models.LabelPII, "LOCATION"},
	"DATE":     {models.LabelPII, "DATE"},
	"TIME":     {models.LabelPII, "TIME"},
	"MONEY":    {models.LabelFinancial, "MONEY"},
	"CARDINAL": {models.LabelPII, "NUMBER"},
	"PERCENT":  {models.LabelFinancial, "PERCENT"},
}

var medicalTags = map[string][2]string{
	"DISEASE":   {models.LabelPHI, "DISEASE"},
	"CHEMICAL":  {models.LabelPHI, "MEDICATION"},
	"SYMPTOM":   {models.LabelPHI, "SYMPTOM"},
	"PROCEDURE": {models.LabelPHI, "PROCEDURE"},
}

// MapTag converts a raw recognizer tag to a (label, sublabel) pair.
// Tags of the form LABEL/SUBLABEL are taken as-is when LABEL is known.
func MapTag(tag string) (string, string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(tag))
	if m, ok := generalTags[upper]; ok {
		return m[0], m[1], true
	}
	if m, ok := medicalTags[upper]; ok {
		return m[0], m[1], true
	}

	label, sublabel, found := strings.Cut(strings.TrimSpace(tag), "/")
	if !found || sublabel == "" {
		return "", "", false
	}
	for _, known := range models.AllLabels {
		if strings.EqualFold(known, label) {
			return known, strings.ToUpper(sublabel), true
		}
	}
	return "", "", false
}

// StatisticalOptions configures a StatisticalClassifier
type StatisticalOptions struct {
	Confidence       ConfidenceConfig
	LengthHeuristics bool
	MaxTextLength    int
	LoadRetries      uint64
	LoadBackoff      time.Duration
}

// StatisticalClassifier maps recognizer output onto entities. The model is
// loaded on first use; concurrent callers share a single load. A failed load
// leaves the classifier degraded until Reload succeeds.
type StatisticalClassifier struct {
	loader  Loader
	opts    StatisticalOptions
	log     *zap.Logger
	group   singleflight.Group
	state   atomic.Int32
	recs    atomic.Pointer[[]Recognizer]
	lastErr atomic.Pointer[string]
}

// NewStatisticalClassifier creates an unloaded classifier
func NewStatisticalClassifier(loader Loader, opts StatisticalOptions, log *zap.Logger) *StatisticalClassifier {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.LoadBackoff <= 0 {
		opts.LoadBackoff = 100 * time.Millisecond
	}
	return &StatisticalClassifier{loader: loader, opts: opts, log: log}
}

// State returns the current lifecycle state without blocking
func (s *StatisticalClassifier) State() State {
	return State(s.state.Load())
}

// Loaded reports whether recognizers are available
func (s *StatisticalClassifier) Loaded() bool {
	return s.State() == StateLoaded
}

// LastError returns the message of the most recent load failure
func (s *StatisticalClassifier) LastError() string {
	if p := s.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}

// Warm triggers the initial load
func (s *StatisticalClassifier) Warm(ctx context.Context) error {
	_, err := s.ensureLoaded(ctx)
	return err
}

func (s *StatisticalClassifier) ensureLoaded(ctx context.Context) ([]Recognizer, error) {
	switch s.State() {
	case StateLoaded:
		return *s.recs.Load(), nil
	case StateDegraded:
		return nil, apperrors.ModelUnavailable(nil).WithDetail("reason", s.LastError())
	}

	v, err, _ := s.group.Do("load", func() (interface{}, error) {
		if s.State() == StateLoaded {
			return *s.recs.Load(), nil
		}
		s.state.Store(int32(StateLoading))
		statisticalState.Set(float64(StateLoading))

		// A caller abandoning its request must not degrade the shared model
		recs, err := s.load(context.WithoutCancel(ctx))
		if err != nil {
			s.degrade(err)
			return nil, err
		}
		s.install(recs)
		return recs, nil
	})
	if err != nil {
		return nil, apperrors.ModelUnavailable(err)
	}
	return v.([]Recognizer), nil
}

func (s *StatisticalClassifier) load(ctx context.Context) ([]Recognizer, error) {
	if s.loader == nil {
		return nil, nil
	}
	backoff := retry.WithMaxRetries(s.opts.LoadRetries, retry.NewFibonacci(s.opts.LoadBackoff))

	var recs []Recognizer
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := s.loader(ctx)
		if err != nil {
			s.log.Warn("statistical model load attempt failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		recs = r
		return nil
	})
	return recs, err
}

func (s *StatisticalClassifier) install(recs []Recognizer) {
	s.recs.Store(&recs)
	s.state.Store(int32(StateLoaded))
	statisticalState.Set(float64(StateLoaded))
	s.log.Info("statistical model loaded", zap.Int("recognizers", len(recs)))
}

func (s *StatisticalClassifier) degrade(err error) {
	msg := err.Error()
	s.lastErr.Store(&msg)
	s.state.Store(int32(StateDegraded))
	statisticalState.Set(float64(StateDegraded))
	s.log.Error("statistical model unavailable, continuing pattern-only", zap.Error(err))
}

// Reload loads recognizers again, e.g. after a model promotion. Callers keep
// using the previous recognizers until the new ones are installed; if the
// reload fails and nothing was loaded before, the classifier is degraded.
func (s *StatisticalClassifier) Reload(ctx context.Context) error {
	_, err, _ := s.group.Do("reload", func() (interface{}, error) {
		recs, err := s.load(ctx)
		if err != nil {
			if s.State() != StateLoaded {
				s.degrade(err)
			}
			return nil, err
		}
		s.install(recs)
		return nil, nil
	})
	if err != nil {
		return apperrors.ModelUnavailable(err)
	}
	return nil
}

// Classify runs every recognizer and maps their spans. It returns a
// MODEL_UNAVAILABLE error when the model could not be loaded.
func (s *StatisticalClassifier) Classify(ctx context.Context, text string, types []string) ([]models.Entity, error) {
	if err := checkLength(text, s.opts.MaxTextLength); err != nil {
		return nil, err
	}
	recs, err := s.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}

	allowed := labelFilter(types)
	runes := []rune(text)

	var entities []models.Entity
	for _, rec := range recs {
		spans, err := rec.Recognize(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("recognizer failed", zap.Error(err))
			continue
		}
		for _, span := range spans {
			label, sublabel, ok := MapTag(span.Tag)
			if !ok || !allowed(label) {
				continue
			}
			if span.Start < 0 || span.Start >= span.End || span.End > len(runes) {
				continue
			}
			spanText := string(runes[span.Start:span.End])
			entities = append(entities, models.Entity{
				Text:       spanText,
				Start:      span.Start,
				End:        span.End,
				Label:      label,
				Sublabel:   sublabel,
				Confidence: s.confidence(spanText, span.Score),
				Source:     models.SourceStatistical,
				Metadata:   map[string]interface{}{"tag": span.Tag},
			})
		}
	}
	return entities, nil
}

func (s *StatisticalClassifier) confidence(text string, score *float64) float64 {
	if score != nil {
		return clamp(*score, 0, 1)
	}
	c := s.opts.Confidence.StatisticalBase
	if !s.opts.LengthHeuristics {
		return c
	}

	n := utf8.RuneCountInString(text)
	if n > 10 {
		c += 0.05
	}
	if r, _ := utf8.DecodeRuneInString(text); unicode.IsUpper(r) {
		c += 0.03
	}
	if n < 3 {
		c -= 0.10
	}
	return clamp(c, s.opts.Confidence.MinimumConfidence, 0.95)
}
