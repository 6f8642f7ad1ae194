package registry

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/killallgit/sensitive-data-api/internal/models"
	apperrors "github.com/killallgit/sensitive-data-api/pkg/errors"
)

var promotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sdc",
	Subsystem: "registry",
	Name:      "activations_total",
	Help:      "Manual model activation changes by action.",
}, []string{"action"})

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Page is one page of model versions
type Page struct {
	Items  []models.ModelVersion `json:"items"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

var _ Service = (*ServiceImpl)(nil)

// ServiceImpl implements the Service interface. Versions are registered
// inactive; only Promote changes what the classifier serves.
type ServiceImpl struct {
	repository Repository
	log        *zap.Logger
	now        func() time.Time

	mu        sync.RWMutex
	listeners []ActivationListener
}

// NewService creates a new model registry
func NewService(repository Repository, log *zap.Logger) *ServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ServiceImpl{repository: repository, log: log, now: time.Now}
}

// Register records a freshly trained version inside the caller's transaction.
// Activation flags are always cleared here.
func (s *ServiceImpl) Register(tx *gorm.DB, version *models.ModelVersion) error {
	if version.Lineage == "" || version.Version == "" {
		return apperrors.InvalidInput("model version needs a lineage and a version tag")
	}
	if version.ArtifactLocation == "" {
		return apperrors.InvalidInput("model version needs an artifact location")
	}
	version.Active = false
	version.Production = false
	version.DeployedAt = nil
	return s.repository.Create(tx, version)
}

// List returns a page of versions
func (s *ServiceImpl) List(ctx context.Context, filters ListFilters) (*Page, error) {
	if filters.Limit <= 0 {
		filters.Limit = DefaultPageSize
	}
	if filters.Limit > MaxPageSize {
		filters.Limit = MaxPageSize
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	versions, total, err := s.repository.List(ctx, filters)
	if err != nil {
		return nil, apperrors.DatabaseError("list model versions", err)
	}
	if versions == nil {
		versions = []models.ModelVersion{}
	}
	return &Page{Items: versions, Total: total, Limit: filters.Limit, Offset: filters.Offset}, nil
}

// Get returns a version by id
func (s *ServiceImpl) Get(ctx context.Context, id uint) (*models.ModelVersion, error) {
	version, err := s.repository.GetByID(ctx, id)
	if err != nil {
		return nil, s.translate(err, "get model version", id)
	}
	return version, nil
}

// GetMetrics returns the metric points recorded for a version
func (s *ServiceImpl) GetMetrics(ctx context.Context, id uint) ([]models.ModelMetric, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	metrics, err := s.repository.Metrics(ctx, id)
	if err != nil {
		return nil, apperrors.DatabaseError("get model metrics", err)
	}
	if metrics == nil {
		metrics = []models.ModelMetric{}
	}
	return metrics, nil
}

// GetActive returns the active version of a lineage
func (s *ServiceImpl) GetActive(ctx context.Context, lineage string) (*models.ModelVersion, error) {
	version, err := s.repository.GetActive(ctx, lineage)
	if err != nil {
		return nil, s.translate(err, "get active model version", lineage)
	}
	return version, nil
}

// NextVersionTag returns v<N+1> where N is the highest tag of the lineage
func (s *ServiceImpl) NextVersionTag(ctx context.Context, lineage string) (string, error) {
	tags, err := s.repository.Versions(ctx, lineage)
	if err != nil {
		return "", apperrors.DatabaseError("next version tag", err)
	}
	highest := 0
	for _, tag := range tags {
		n, err := strconv.Atoi(strings.TrimPrefix(tag, "v"))
		if err == nil && n > highest {
			highest = n
		}
	}
	return "v" + strconv.Itoa(highest+1), nil
}

// ActiveArtifact resolves the artifact of the active version; found is false
// when nothing has been promoted yet
func (s *ServiceImpl) ActiveArtifact(ctx context.Context, lineage string) (string, bool, error) {
	version, err := s.repository.GetActive(ctx, lineage)
	if err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return version.ArtifactLocation, true, nil
}

// Promote makes the version the single active version of its lineage
func (s *ServiceImpl) Promote(ctx context.Context, id uint, opts PromoteOptions) (*models.ModelVersion, error) {
	version, err := s.repository.Activate(ctx, id, opts.Production, s.now())
	if err != nil {
		return nil, s.translate(err, "promote model version", id)
	}
	promotionsTotal.WithLabelValues("promote").Inc()
	s.log.Info("model version promoted",
		zap.Uint("model_version_id", version.ID),
		zap.String("lineage", version.Lineage),
		zap.String("version", version.Version),
		zap.Bool("production", version.Production),
		zap.String("promoted_by", opts.PromotedBy))

	s.notify(ctx, version.Lineage)
	return version, nil
}

// Deactivate clears the active and production flags of a version
func (s *ServiceImpl) Deactivate(ctx context.Context, id uint) (*models.ModelVersion, error) {
	version, err := s.repository.Deactivate(ctx, id)
	if err != nil {
		return nil, s.translate(err, "deactivate model version", id)
	}
	promotionsTotal.WithLabelValues("deactivate").Inc()
	s.log.Info("model version deactivated",
		zap.Uint("model_version_id", version.ID),
		zap.String("lineage", version.Lineage),
		zap.String("version", version.Version))

	s.notify(ctx, version.Lineage)
	return version, nil
}

// OnActivation registers a listener called after every promotion or deactivation
func (s *ServiceImpl) OnActivation(listener ActivationListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *ServiceImpl) notify(ctx context.Context, lineage string) {
	s.mu.RLock()
	listeners := append([]ActivationListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, lineage)
	}
}

func (s *ServiceImpl) translate(err error, op string, id interface{}) error {
	if errors.Is(err, ErrVersionNotFound) {
		return apperrors.NotFound("model version", id)
	}
	return apperrors.DatabaseError(op, err)
}
