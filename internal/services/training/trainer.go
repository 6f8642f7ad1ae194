package training

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/killallgit/sensitive-data-api/internal/classification"
	"github.com/killallgit/sensitive-data-api/internal/ner"
	"github.com/killallgit/sensitive-data-api/internal/services/trainingdata"
)

// Trainable is a recognizer that can be fine-tuned and serialized
type Trainable interface {
	classification.Recognizer
	Update(batch []ner.Example, dropout float64, rng *rand.Rand) float64
	Finish()
	Marshal() ([]byte, error)
}

var _ Trainable = (*ner.Tagger)(nil)

// TrainParams configures one fit
type TrainParams struct {
	Iterations int
	BatchSize  int
	Dropout    float64
	Seed       int64
	// Progress, when set, is called after every iteration
	Progress func(iteration, total int, loss float64)
}

// TrainResult summarises a fit
type TrainResult struct {
	FinalLoss        float64   `json:"final_loss"`
	AvgLoss          float64   `json:"avg_loss"`
	PerIterationLoss []float64 `json:"per_iteration_loss"`
	SampleCount      int       `json:"sample_count"`
}

// LabelScore is the span-level score of one label
type LabelScore struct {
	TP        int     `json:"tp"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Evaluation is an exact span-level score
type Evaluation struct {
	Precision   float64                `json:"precision"`
	Recall      float64                `json:"recall"`
	F1          float64                `json:"f1"`
	SampleCount int                    `json:"sample_count"`
	TP          int                    `json:"tp"`
	FP          int                    `json:"fp"`
	FN          int                    `json:"fn"`
	PerLabel    map[string]*LabelScore `json:"per_label"`
}

// Trainer prepares data for, fits and scores a Trainable
type Trainer struct {
	data trainingdata.Service
	log  *zap.Logger
}

// NewTrainer creates a trainer reading examples from data
func NewTrainer(data trainingdata.Service, log *zap.Logger) *Trainer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Trainer{data: data, log: log}
}

// Prepare collects the examples a run will use
func (t *Trainer) Prepare(ctx context.Context, opts trainingdata.CollectOptions) (*trainingdata.Collection, error) {
	return t.data.Collect(ctx, opts)
}

// Consume records that a started run trains on the collection
func (t *Trainer) Consume(ctx context.Context, c *trainingdata.Collection) error {
	return t.data.RecordUsage(ctx, c.ExampleIDs)
}

// Train fine-tunes model in place. Examples are reshuffled every iteration
// from a generator seeded with params.Seed, so equal inputs give equal
// weights. Cancellation is checked between iterations.
func (t *Trainer) Train(ctx context.Context, model Trainable, examples []trainingdata.LabeledExample, params TrainParams) (*TrainResult, error) {
	if params.Iterations <= 0 {
		params.Iterations = 1
	}
	if params.BatchSize <= 0 {
		params.BatchSize = 8
	}

	data := toNERExamples(examples)
	rng := rand.New(rand.NewSource(params.Seed))
	result := &TrainResult{SampleCount: len(data), PerIterationLoss: make([]float64, 0, params.Iterations)}

	for iter := 0; iter < params.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng.Shuffle(len(data), func(i, j int) { data[i], data[j] = data[j], data[i] })

		loss := 0.0
		for start := 0; start < len(data); start += params.BatchSize {
			end := min(start+params.BatchSize, len(data))
			loss += model.Update(data[start:end], params.Dropout, rng)
		}
		result.PerIterationLoss = append(result.PerIterationLoss, loss)

		t.log.Debug("training iteration finished",
			zap.Int("iteration", iter+1),
			zap.Int("iterations", params.Iterations),
			zap.Float64("loss", loss))
		if params.Progress != nil {
			params.Progress(iter+1, params.Iterations, loss)
		}
	}
	model.Finish()

	result.FinalLoss = result.PerIterationLoss[len(result.PerIterationLoss)-1]
	sum := 0.0
	for _, l := range result.PerIterationLoss {
		sum += l
	}
	result.AvgLoss = sum / float64(len(result.PerIterationLoss))
	return result, nil
}

type spanKey struct {
	start, end int
	label      string
}

// Evaluate scores model on test with exact (start, end, label) matching.
// A prediction on a gold span with a different label is one false positive
// and one false negative. Predicted tags that map to no label are ignored.
func (t *Trainer) Evaluate(ctx context.Context, model classification.Recognizer, test []trainingdata.LabeledExample) (*Evaluation, error) {
	eval := &Evaluation{SampleCount: len(test), PerLabel: make(map[string]*LabelScore)}
	score := func(label string) *LabelScore {
		s, ok := eval.PerLabel[label]
		if !ok {
			s = &LabelScore{}
			eval.PerLabel[label] = s
		}
		return s
	}

	for _, ex := range test {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := model.Recognize(ctx, ex.Text)
		if err != nil {
			return nil, err
		}

		gold := make(map[spanKey]bool, len(ex.Entities))
		for _, e := range ex.Entities {
			gold[spanKey{e.Start, e.End, e.Label}] = true
		}
		predicted := make(map[spanKey]bool, len(raw))
		for _, span := range raw {
			label, _, ok := classification.MapTag(span.Tag)
			if !ok {
				continue
			}
			predicted[spanKey{span.Start, span.End, label}] = true
		}

		for k := range predicted {
			if gold[k] {
				eval.TP++
				score(k.label).TP++
			} else {
				eval.FP++
				score(k.label).FP++
			}
		}
		for k := range gold {
			if !predicted[k] {
				eval.FN++
				score(k.label).FN++
			}
		}
	}

	eval.Precision, eval.Recall, eval.F1 = prf(eval.TP, eval.FP, eval.FN)
	for _, s := range eval.PerLabel {
		s.Precision, s.Recall, s.F1 = prf(s.TP, s.FP, s.FN)
	}
	return eval, nil
}

// prf returns precision, recall and F1; zero denominators give zero
func prf(tp, fp, fn int) (float64, float64, float64) {
	var p, r, f float64
	if tp+fp > 0 {
		p = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		r = float64(tp) / float64(tp+fn)
	}
	if p+r > 0 {
		f = 2 * p * r / (p + r)
	}
	return p, r, f
}

// Split shuffles a copy of examples with seed and cuts it into train and test
// sets. At least one example always goes to training.
func Split(examples []trainingdata.LabeledExample, testSplit float64, seed int64) (train, test []trainingdata.LabeledExample) {
	shuffled := append([]trainingdata.LabeledExample(nil), examples...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	trainN := int(math.Floor(float64(len(shuffled)) * (1 - testSplit)))
	if trainN < 1 {
		trainN = 1
	}
	if trainN > len(shuffled) {
		trainN = len(shuffled)
	}
	return shuffled[:trainN], shuffled[trainN:]
}

// Labels returns the sorted set of labels present in examples
func Labels(examples []trainingdata.LabeledExample) []string {
	seen := make(map[string]bool)
	for _, ex := range examples {
		for _, e := range ex.Entities {
			seen[e.Label] = true
		}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func sortedLabels(m map[string]*LabelScore) []string {
	labels := make([]string, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func toNERExamples(examples []trainingdata.LabeledExample) []ner.Example {
	out := make([]ner.Example, len(examples))
	for i, ex := range examples {
		spans := make([]ner.Span, len(ex.Entities))
		for j, e := range ex.Entities {
			spans[j] = ner.Span{Start: e.Start, End: e.End, Tag: ner.SpanTag(e.Label, e.Sublabel)}
		}
		out[i] = ner.Example{Text: ex.Text, Spans: spans}
	}
	return out
}
