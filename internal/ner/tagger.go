package ner

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/killallgit/sensitive-data-api/internal/classification"
)

const (
	modelFormat  = "sdc-perceptron-tagger"
	modelVersion = 1
	startTag     = "-START-"
)

// Tagger is a greedy BIO sequence tagger backed by an averaged perceptron.
// A trained Tagger is read-only and safe for concurrent Recognize calls;
// Update and Finish must not run concurrently with anything else.
type Tagger struct {
	model *perceptron
}

var _ classification.Recognizer = (*Tagger)(nil)

// NewTagger returns an untrained tagger that recognizes nothing
func NewTagger() *Tagger {
	return &Tagger{model: newPerceptron()}
}

// Clone returns an independent copy, used to fine-tune without touching a served model
func (t *Tagger) Clone() *Tagger {
	return &Tagger{model: t.model.clone()}
}

// Tags lists the entity tags the tagger knows, without BIO prefixes
func (t *Tagger) Tags() []string {
	seen := make(map[string]bool)
	var tags []string
	for _, c := range t.model.classes {
		_, typ, ok := strings.Cut(c, "-")
		if !ok || seen[typ] {
			continue
		}
		seen[typ] = true
		tags = append(tags, typ)
	}
	return tags
}

// Recognize tags text and returns spans with LABEL/SUBLABEL tags
func (t *Tagger) Recognize(ctx context.Context, text string) ([]classification.RawSpan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := Tokenize(text)
	tags := t.tag(tokens)

	var out []classification.RawSpan
	for _, s := range decodeBIO(tokens, tags) {
		out = append(out, classification.RawSpan{Start: s.Start, End: s.End, Tag: s.Tag})
	}
	return out, nil
}

func (t *Tagger) tag(tokens []Token) []string {
	tags := make([]string, len(tokens))
	prev := startTag
	for i := range tokens {
		tags[i] = t.model.predict(features(tokens, i, prev))
		prev = tags[i]
	}
	return tags
}

// Update runs one pass over batch and applies the accumulated corrections.
// Each non-bias feature is dropped with probability dropout. It returns the
// number of mistagged tokens, used as the training loss.
func (t *Tagger) Update(batch []Example, dropout float64, rng *rand.Rand) float64 {
	var deltas []delta
	mistakes := 0

	for _, ex := range batch {
		tokens := Tokenize(ex.Text)
		gold := encodeBIO(tokens, ex.Spans)
		for _, g := range gold {
			t.model.addClass(g)
		}

		prev := startTag
		for i := range tokens {
			feats := dropFeatures(features(tokens, i, prev), dropout, rng)
			guess := t.model.predict(feats)
			if guess != gold[i] {
				mistakes++
				for _, f := range feats {
					deltas = append(deltas,
						delta{feature: f, class: gold[i], value: 1},
						delta{feature: f, class: guess, value: -1},
					)
				}
			}
			prev = guess
		}
	}

	t.model.apply(deltas)
	return float64(mistakes)
}

// Finish averages the weights learned since the last Finish
func (t *Tagger) Finish() {
	t.model.average()
}

func dropFeatures(feats []string, dropout float64, rng *rand.Rand) []string {
	if dropout <= 0 || rng == nil {
		return feats
	}
	kept := feats[:1:1]
	for _, f := range feats[1:] {
		if rng.Float64() >= dropout {
			kept = append(kept, f)
		}
	}
	return kept
}

func features(tokens []Token, i int, prev string) []string {
	word := tokens[i].Text
	lower := strings.ToLower(word)
	feats := []string{
		"bias",
		"w=" + lower,
		"shape=" + shape(word),
		"pre3=" + prefix(lower, 3),
		"suf3=" + suffix(lower, 3),
		"t-1=" + prev,
		"t-1|w=" + prev + "|" + lower,
	}
	if r, _ := utf8.DecodeRuneInString(word); unicode.IsUpper(r) {
		feats = append(feats, "title")
	}
	if i > 0 {
		p := strings.ToLower(tokens[i-1].Text)
		feats = append(feats, "w-1="+p, "shape-1="+shape(tokens[i-1].Text))
	} else {
		feats = append(feats, "w-1="+startTag)
	}
	if i+1 < len(tokens) {
		n := strings.ToLower(tokens[i+1].Text)
		feats = append(feats, "w+1="+n, "shape+1="+shape(tokens[i+1].Text))
	} else {
		feats = append(feats, "w+1=-END-")
	}
	return feats
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func suffix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

type modelFile struct {
	Format  string                        `json:"format"`
	Version int                           `json:"version"`
	Classes []string                      `json:"classes"`
	Weights map[string]map[string]float64 `json:"weights"`
}

// Marshal serializes the tagger's averaged weights
func (t *Tagger) Marshal() ([]byte, error) {
	return json.Marshal(modelFile{
		Format:  modelFormat,
		Version: modelVersion,
		Classes: t.model.classes,
		Weights: t.model.weights,
	})
}

// LoadTagger restores a tagger written by Marshal
func LoadTagger(data []byte) (*Tagger, error) {
	var f modelFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode tagger: %w", err)
	}
	if f.Format != modelFormat {
		return nil, fmt.Errorf("unsupported model format %q", f.Format)
	}
	if f.Version != modelVersion {
		return nil, fmt.Errorf("unsupported model version %d", f.Version)
	}

	p := newPerceptron()
	for _, c := range f.Classes {
		p.addClass(c)
	}
	if f.Weights != nil {
		p.weights = f.Weights
	}
	return &Tagger{model: p}, nil
}
