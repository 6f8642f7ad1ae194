package ner

import (
	"math"
	"sort"
)

// perceptron is a multi-class averaged perceptron over sparse string features
type perceptron struct {
	weights map[string]map[string]float64
	classes []string

	// averaging bookkeeping, reset after every average()
	totals map[string]map[string]float64
	stamps map[string]map[string]int
	step   int
}

func newPerceptron() *perceptron {
	p := &perceptron{weights: make(map[string]map[string]float64)}
	p.resetAveraging()
	p.addClass(outside)
	return p
}

func (p *perceptron) resetAveraging() {
	p.totals = make(map[string]map[string]float64)
	p.stamps = make(map[string]map[string]int)
	p.step = 0
}

// addClass registers a class. outside always sorts first so that an
// untrained model predicts nothing.
func (p *perceptron) addClass(class string) {
	for _, c := range p.classes {
		if c == class {
			return
		}
	}
	p.classes = append(p.classes, class)
	sort.Slice(p.classes, func(i, j int) bool {
		if p.classes[i] == outside || p.classes[j] == outside {
			return p.classes[i] == outside
		}
		return p.classes[i] < p.classes[j]
	})
}

func (p *perceptron) predict(features []string) string {
	scores := make(map[string]float64, len(p.classes))
	for _, f := range features {
		for class, w := range p.weights[f] {
			scores[class] += w
		}
	}
	best := p.classes[0]
	bestScore := scores[best]
	for _, c := range p.classes[1:] {
		if scores[c] > bestScore {
			best, bestScore = c, scores[c]
		}
	}
	return best
}

type delta struct {
	feature string
	class   string
	value   float64
}

func (p *perceptron) apply(deltas []delta) {
	p.step++
	for _, d := range deltas {
		p.updateFeature(d.feature, d.class, d.value)
	}
}

func (p *perceptron) updateFeature(feature, class string, v float64) {
	if p.weights[feature] == nil {
		p.weights[feature] = make(map[string]float64)
		p.totals[feature] = make(map[string]float64)
		p.stamps[feature] = make(map[string]int)
	}
	if p.totals[feature] == nil {
		p.totals[feature] = make(map[string]float64)
		p.stamps[feature] = make(map[string]int)
	}
	w := p.weights[feature][class]
	p.totals[feature][class] += float64(p.step-p.stamps[feature][class]) * w
	p.stamps[feature][class] = p.step
	p.weights[feature][class] = w + v
}

// average replaces every weight with its mean over the updates since the
// last average, which is what makes the perceptron stable.
func (p *perceptron) average() {
	if p.step == 0 {
		return
	}
	for feature, classes := range p.weights {
		for class, w := range classes {
			total := p.totals[feature][class] + float64(p.step-p.stamps[feature][class])*w
			avg := math.Round(total/float64(p.step)*1000) / 1000
			if avg == 0 {
				delete(classes, class)
				continue
			}
			classes[class] = avg
		}
		if len(classes) == 0 {
			delete(p.weights, feature)
		}
	}
	p.resetAveraging()
}

func (p *perceptron) clone() *perceptron {
	c := newPerceptron()
	for _, class := range p.classes {
		c.addClass(class)
	}
	for feature, classes := range p.weights {
		m := make(map[string]float64, len(classes))
		for class, w := range classes {
			m[class] = w
		}
		c.weights[feature] = m
	}
	return c
}
