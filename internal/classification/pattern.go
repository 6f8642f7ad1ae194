package classification

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"unicode/utf8"

	"github.com/killallgit/sensitive-data-api/internal/models"
)

// PatternDefinition is one named detection rule
type PatternDefinition struct {
	Name           string  `json:"name"`
	Label          string  `json:"label"`
	Sublabel       string  `json:"sublabel"`
	Expression     string  `json:"expression"`
	BaseConfidence float64 `json:"base_confidence"`
}

// DefaultPatterns returns the built-in rule set in scan order
func DefaultPatterns() []PatternDefinition {
	return []PatternDefinition{
		{Name: "SSN", Label: models.LabelPII, Sublabel: "SSN", Expression: `\b\d{3}-\d{2}-\d{4}\b`, BaseConfidence: 0.99},
		{Name: "CREDIT_CARD", Label: models.LabelFinancial, Sublabel: "CREDIT_CARD", Expression: `\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`, BaseConfidence: 0.95},
		{Name: "EMAIL", Label: models.LabelPII, Sublabel: "EMAIL", Expression: `\b[A-Za-z0-9._%+-]{1,64}@[A-Za-z0-9.-]{1,255}\.[A-Za-z]{2,24}\b`, BaseConfidence: 0.98},
		{Name: "PHONE", Label: models.LabelPII, Sublabel: "PHONE", Expression: `\b\(?\d{3}\)?[- ]?\d{3}[- ]?\d{4}\b`, BaseConfidence: 0.95},
		{Name: "IP_ADDRESS", Label: models.LabelPII, Sublabel: "IP_ADDRESS", Expression: `\b(?:\d{1,3}\.){3}\d{1,3}\b`, BaseConfidence: 0.90},
		{Name: "MEDICAL_ID", Label: models.LabelPHI, Sublabel: "MEDICAL_ID", Expression: `\b(?:MRN|PATIENT|MED)[- ]?\d{5,10}\b`, BaseConfidence: 0.92},
		{Name: "DATE_OF_BIRTH", Label: models.LabelPII, Sublabel: "DATE_OF_BIRTH", Expression: `\b(?:DOB|Date of Birth):\s{0,4}\d{1,2}/\d{1,2}/\d{4}\b`, BaseConfidence: 0.95},
	}
}

type compiledPattern struct {
	def PatternDefinition
	re  *regexp.Regexp
}

// PatternMatcher scans text with an ordered set of case-insensitive rules.
// Overlapping matches from different rules are all reported.
type PatternMatcher struct {
	mu             sync.RWMutex
	patterns       []compiledPattern
	maxTextLength  int
	baseConfidence float64
}

// NewPatternMatcher compiles defs in order. maxTextLength <= 0 disables the
// length guard.
func NewPatternMatcher(maxTextLength int, defs ...PatternDefinition) (*PatternMatcher, error) {
	m := &PatternMatcher{
		maxTextLength:  maxTextLength,
		baseConfidence: DefaultConfidence().PatternBase,
	}
	for _, def := range defs {
		if err := m.AddPattern(def); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetBaseConfidence sets the confidence used for rules that declare none
func (m *PatternMatcher) SetBaseConfidence(c float64) {
	m.mu.Lock()
	m.baseConfidence = c
	m.mu.Unlock()
}

// AddPattern compiles def and appends it; a rule with an existing name is replaced in place
func (m *PatternMatcher) AddPattern(def PatternDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("pattern name is required")
	}
	if def.Label == "" {
		return fmt.Errorf("pattern %s: label is required", def.Name)
	}
	if def.BaseConfidence < 0 || def.BaseConfidence > 1 {
		return fmt.Errorf("pattern %s: confidence must be within [0,1]", def.Name)
	}
	re, err := regexp.Compile("(?i)" + def.Expression)
	if err != nil {
		return fmt.Errorf("pattern %s: invalid expression: %w", def.Name, err)
	}
	if def.Sublabel == "" {
		def.Sublabel = def.Name
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.patterns {
		if m.patterns[i].def.Name == def.Name {
			m.patterns[i] = compiledPattern{def: def, re: re}
			return nil
		}
	}
	m.patterns = append(m.patterns, compiledPattern{def: def, re: re})
	return nil
}

// Classify returns one entity per match. types restricts results to the given
// labels; empty means all.
func (m *PatternMatcher) Classify(ctx context.Context, text string, types []string) ([]models.Entity, error) {
	if err := checkLength(text, m.maxTextLength); err != nil {
		return nil, err
	}

	m.mu.RLock()
	patterns := m.patterns
	base := m.baseConfidence
	m.mu.RUnlock()

	allowed := labelFilter(types)
	idx := newRuneIndex(text)

	var entities []models.Entity
	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !allowed(p.def.Label) {
			continue
		}
		conf := p.def.BaseConfidence
		if conf == 0 {
			conf = base
		}
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			entities = append(entities, models.Entity{
				Text:       text[loc[0]:loc[1]],
				Start:      idx.runeOffset(loc[0]),
				End:        idx.runeOffset(loc[1]),
				Label:      p.def.Label,
				Sublabel:   p.def.Sublabel,
				Confidence: conf,
				Source:     models.SourcePattern,
				Metadata:   map[string]interface{}{"pattern_name": p.def.Name},
			})
		}
	}
	return entities, nil
}

// PatternNames lists rule names in scan order
func (m *PatternMatcher) PatternNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.patterns))
	for i, p := range m.patterns {
		names[i] = p.def.Name
	}
	return names
}

// Count returns the number of rules
func (m *PatternMatcher) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patterns)
}

// runeIndex converts byte offsets from regexp into rune offsets
type runeIndex struct {
	ascii bool
	text  string
}

func newRuneIndex(text string) runeIndex {
	return runeIndex{ascii: utf8.RuneCountInString(text) == len(text), text: text}
}

func (r runeIndex) runeOffset(byteOffset int) int {
	if r.ascii {
		return byteOffset
	}
	return utf8.RuneCountInString(r.text[:byteOffset])
}

func labelFilter(types []string) func(string) bool {
	if len(types) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(label string) bool {
		_, ok := set[label]
		return ok
	}
}
