package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// EntitySource identifies which detector produced an entity
type EntitySource string

const (
	SourceFused       EntitySource = "fused"
	SourcePattern     EntitySource = "pattern"
	SourceStatistical EntitySource = "statistical"
)

// Rank orders sources for deterministic sorting: fused < pattern < statistical
func (s EntitySource) Rank() int {
	switch s {
	case SourceFused:
		return 0
	case SourcePattern:
		return 1
	case SourceStatistical:
		return 2
	default:
		return 3
	}
}

// Valid reports whether s is a known source
func (s EntitySource) Valid() bool {
	return s.Rank() < 3
}

// Coarse sensitive-data categories
const (
	LabelPII          = "PII"
	LabelPHI          = "PHI"
	LabelFinancial    = "Financial"
	LabelCredentials  = "Credentials"
	LabelConfidential = "Confidential"
)

// AllLabels lists every coarse label the classifier can emit
var AllLabels = []string{LabelPII, LabelPHI, LabelFinancial, LabelCredentials, LabelConfidential}

// Entity is a labeled span of text. Start and End are half-open rune offsets.
type Entity struct {
	Text       string                 `json:"text"`
	Start      int                    `json:"start"`
	End        int                    `json:"end"`
	Label      string                 `json:"label"`
	Sublabel   string                 `json:"sublabel,omitempty"`
	Confidence float64                `json:"confidence"`
	Source     EntitySource           `json:"source,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Len returns the span length in runes
func (e Entity) Len() int {
	return e.End - e.Start
}

// SameSpan reports whether both entities cover exactly the same offsets
func (e Entity) SameSpan(other Entity) bool {
	return e.Start == other.Start && e.End == other.End
}

// Overlaps reports whether the two half-open spans share at least one rune
func (e Entity) Overlaps(other Entity) bool {
	return e.Start < other.End && other.Start < e.End
}

// ValidateSpan checks the span against a text of textLen runes
func (e Entity) ValidateSpan(textLen int) error {
	if e.Start < 0 {
		return fmt.Errorf("span start %d is negative", e.Start)
	}
	if e.Start >= e.End {
		return fmt.Errorf("span start %d must be before end %d", e.Start, e.End)
	}
	if e.End > textLen {
		return fmt.Errorf("span end %d exceeds text length %d", e.End, textLen)
	}
	if e.Label == "" {
		return fmt.Errorf("span [%d,%d) has no label", e.Start, e.End)
	}
	return nil
}

// SpanText returns the runes of text covered by the entity
func (e Entity) SpanText(text string) string {
	runes := []rune(text)
	if e.Start < 0 || e.End > len(runes) || e.Start >= e.End {
		return ""
	}
	return string(runes[e.Start:e.End])
}

// RuneLen is the length of text in runes, the unit used by all entity offsets
func RuneLen(text string) int {
	return utf8.RuneCountInString(text)
}

// EntityList is a JSON column holding entities
type EntityList []Entity

// Value implements driver.Valuer interface for EntityList
func (l EntityList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner interface for EntityList
func (l *EntityList) Scan(value interface{}) error {
	if value == nil {
		*l = EntityList{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}

	if len(data) == 0 {
		*l = EntityList{}
		return nil
	}
	return json.Unmarshal(data, l)
}

// ValidateAll validates every span against text and returns the first problem
func (l EntityList) ValidateAll(text string) error {
	n := RuneLen(text)
	for i, e := range l {
		if err := e.ValidateSpan(n); err != nil {
			return fmt.Errorf("entity %d: %w", i, err)
		}
	}
	return nil
}

// Partition splits the list into spans valid for text and the count of invalid ones
func (l EntityList) Partition(text string) (EntityList, int) {
	n := RuneLen(text)
	valid := make(EntityList, 0, len(l))
	invalid := 0
	for _, e := range l {
		if e.ValidateSpan(n) != nil {
			invalid++
			continue
		}
		valid = append(valid, e)
	}
	return valid, invalid
}
