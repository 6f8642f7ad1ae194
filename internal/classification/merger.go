package classification

import (
	"math"
	"sort"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

// Merger fuses pattern and statistical detections into one non-overlapping,
// start-sorted entity list. It is a pure function of its inputs.
type Merger struct {
	cfg ConfidenceConfig
}

// NewMerger creates a merger using cfg
func NewMerger(cfg ConfidenceConfig) *Merger {
	return &Merger{cfg: cfg}
}

// Config returns the merge policy
func (m *Merger) Config() ConfidenceConfig {
	return m.cfg
}

type candidate struct {
	entity models.Entity
	order  int
}

// Merge applies, in order: exact-span fusion across the two lists, greedy
// overlap resolution, the minimum confidence cut and the final sort.
func (m *Merger) Merge(pattern, statistical []models.Entity) []models.Entity {
	candidates := make([]candidate, 0, len(pattern)+len(statistical))
	paired := make([]bool, len(statistical))
	order := 0

	for _, p := range pattern {
		match := -1
		for j, s := range statistical {
			if !paired[j] && p.SameSpan(s) {
				match = j
				break
			}
		}
		if match < 0 {
			candidates = append(candidates, candidate{entity: p, order: order})
			order++
			continue
		}
		paired[match] = true
		candidates = append(candidates, candidate{entity: m.fuse(p, statistical[match]), order: order})
		order++
	}
	for j, s := range statistical {
		if paired[j] {
			continue
		}
		candidates = append(candidates, candidate{entity: s, order: order})
		order++
	}

	kept := resolveOverlaps(candidates)

	out := make([]models.Entity, 0, len(kept))
	for _, e := range kept {
		if e.Confidence < m.cfg.MinimumConfidence {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Source.Rank() < out[j].Source.Rank()
	})
	return out
}

func (m *Merger) fuse(p, s models.Entity) models.Entity {
	metadata := make(map[string]interface{}, len(p.Metadata)+3)
	for k, v := range p.Metadata {
		metadata[k] = v
	}
	metadata["pattern_confidence"] = p.Confidence
	metadata["statistical_confidence"] = s.Confidence
	metadata["statistical_sublabel"] = s.Sublabel

	return models.Entity{
		Text:       p.Text,
		Start:      p.Start,
		End:        p.End,
		Label:      p.Label,
		Sublabel:   p.Sublabel,
		Confidence: math.Min(1.0, math.Max(p.Confidence, s.Confidence)+m.cfg.AgreementBoost),
		Source:     models.SourceFused,
		Metadata:   metadata,
	}
}

// resolveOverlaps visits candidates from strongest to weakest and keeps each
// one that does not overlap anything already kept. Strength is confidence,
// then source rank, then earlier start, then longer span, then input order.
func resolveOverlaps(candidates []candidate) []models.Entity {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.entity.Confidence != b.entity.Confidence {
			return a.entity.Confidence > b.entity.Confidence
		}
		if ra, rb := a.entity.Source.Rank(), b.entity.Source.Rank(); ra != rb {
			return ra < rb
		}
		if a.entity.Start != b.entity.Start {
			return a.entity.Start < b.entity.Start
		}
		if a.entity.Len() != b.entity.Len() {
			return a.entity.Len() > b.entity.Len()
		}
		return a.order < b.order
	})

	kept := make([]models.Entity, 0, len(candidates))
	for _, c := range candidates {
		overlaps := false
		for _, k := range kept {
			if c.entity.Overlaps(k) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c.entity)
		}
	}
	return kept
}
