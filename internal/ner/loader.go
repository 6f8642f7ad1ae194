package ner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/internal/artifacts"
	"github.com/killallgit/sensitive-data-api/internal/classification"
)

// ActiveModelSource resolves the artifact of the active model of a lineage
type ActiveModelSource interface {
	ActiveArtifact(ctx context.Context, lineage string) (location string, found bool, err error)
}

// LoaderOptions selects the recognizers a Loader produces
type LoaderOptions struct {
	Sidecar        *Client
	UseLocalTagger bool
	Lineage        string
	Models         ActiveModelSource
	Artifacts      artifacts.Store
	Log            *zap.Logger
}

// NewLoader returns a classification.Loader for the configured recognizers.
// An unreachable sidecar is skipped when the local tagger is available.
func NewLoader(opts LoaderOptions) classification.Loader {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	return func(ctx context.Context) ([]classification.Recognizer, error) {
		var recs []classification.Recognizer

		if opts.Sidecar != nil {
			if err := opts.Sidecar.HealthCheck(ctx); err != nil {
				if !opts.UseLocalTagger {
					return nil, err
				}
				log.Warn("ner sidecar unreachable, using local tagger only", zap.Error(err))
			} else {
				recs = append(recs, opts.Sidecar)
			}
		}

		if opts.UseLocalTagger {
			tagger, err := LoadActiveTagger(ctx, opts.Models, opts.Artifacts, opts.Lineage)
			if err != nil {
				return nil, err
			}
			recs = append(recs, tagger)
		}

		if len(recs) == 0 {
			return nil, errors.New("no statistical recognizer configured")
		}
		return recs, nil
	}
}

// LoadActiveTagger loads the tagger of the lineage's active model, or an
// untrained tagger when no model has been promoted yet.
func LoadActiveTagger(ctx context.Context, src ActiveModelSource, store artifacts.Store, lineage string) (*Tagger, error) {
	if src == nil || store == nil {
		return NewTagger(), nil
	}
	location, found, err := src.ActiveArtifact(ctx, lineage)
	if err != nil {
		return nil, fmt.Errorf("resolve active model: %w", err)
	}
	if !found {
		return NewTagger(), nil
	}

	data, err := store.Get(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("fetch model artifact %s: %w", location, err)
	}
	return LoadTagger(data)
}
