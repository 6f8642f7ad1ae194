package ner

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/killallgit/sensitive-data-api/internal/classification"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Call Zoë at 555-1234.")

	texts := make([]string, len(tokens))
	for i, tok := range tokens {
		texts[i] = tok.Text
	}
	assert.Equal(t, []string{"Call", "Zoë", "at", "555", "-", "1234", "."}, texts)
	assert.Equal(t, Token{Text: "Zoë", Start: 5, End: 8}, tokens[1])
	assert.Equal(t, Token{Text: ".", Start: 20, End: 21}, tokens[6])
	assert.Empty(t, Tokenize("   "))
}

func TestShape(t *testing.T) {
	assert.Equal(t, "Xxxxx", shape("Alice"))
	assert.Equal(t, "Xxxxx", shape("Alexandra"))
	assert.Equal(t, "ddd", shape("123"))
	assert.Equal(t, "XXX-dddd", shape("MRN-1234567"))
}

func TestBIORoundTrip(t *testing.T) {
	tokens := Tokenize("Patient John Smith has MRN 12345")
	spans := []Span{
		{Start: 8, End: 18, Tag: "PII/PERSON"},
		{Start: 23, End: 32, Tag: "PHI/MEDICAL_ID"},
	}

	tags := encodeBIO(tokens, spans)
	assert.Equal(t, []string{"O", "B-PII/PERSON", "I-PII/PERSON", "O", "B-PHI/MEDICAL_ID", "I-PHI/MEDICAL_ID"}, tags)
	assert.Equal(t, spans, decodeBIO(tokens, tags))
}

func TestDecodeBIO_OrphanInside(t *testing.T) {
	tokens := Tokenize("a b c")
	spans := decodeBIO(tokens, []string{"I-PII/X", "I-PII/X", "B-PII/Y"})
	assert.Equal(t, []Span{{Start: 0, End: 3, Tag: "PII/X"}, {Start: 4, End: 5, Tag: "PII/Y"}}, spans)
}

func TestSpanTag(t *testing.T) {
	assert.Equal(t, "PII/PERSON", SpanTag("PII", "person"))
	assert.Equal(t, "PHI/GENERIC", SpanTag("PHI", ""))
}

func trainingSet() []Example {
	return []Example{
		{Text: "my name is Alice", Spans: []Span{{Start: 11, End: 16, Tag: "PII/PERSON"}}},
		{Text: "my name is Bob", Spans: []Span{{Start: 11, End: 14, Tag: "PII/PERSON"}}},
		{Text: "my name is Carol", Spans: []Span{{Start: 11, End: 16, Tag: "PII/PERSON"}}},
		{Text: "diagnosed with asthma today", Spans: []Span{{Start: 15, End: 21, Tag: "PHI/DISEASE"}}},
		{Text: "the weather is nice", Spans: nil},
		{Text: "call me later", Spans: nil},
	}
}

func TestTagger_LearnsTrainingSet(t *testing.T) {
	tagger := NewTagger()
	rng := rand.New(rand.NewSource(42))
	examples := trainingSet()

	var losses []float64
	for iter := 0; iter < 15; iter++ {
		rng.Shuffle(len(examples), func(i, j int) { examples[i], examples[j] = examples[j], examples[i] })
		loss := 0.0
		for _, ex := range examples {
			loss += tagger.Update([]Example{ex}, 0, rng)
		}
		losses = append(losses, loss)
	}
	tagger.Finish()

	assert.Greater(t, losses[0], 0.0)
	assert.Less(t, losses[len(losses)-1], losses[0])

	spans, err := tagger.Recognize(context.Background(), "my name is Alice")
	require.NoError(t, err)
	assert.Equal(t, []classification.RawSpan{{Start: 11, End: 16, Tag: "PII/PERSON"}}, spans)

	spans, err = tagger.Recognize(context.Background(), "diagnosed with asthma today")
	require.NoError(t, err)
	assert.Equal(t, []classification.RawSpan{{Start: 15, End: 21, Tag: "PHI/DISEASE"}}, spans)

	assert.ElementsMatch(t, []string{"PII/PERSON", "PHI/DISEASE"}, tagger.Tags())
}

func TestTagger_UntrainedRecognizesNothing(t *testing.T) {
	spans, err := NewTagger().Recognize(context.Background(), "my name is Alice")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestTagger_MarshalRoundTrip(t *testing.T) {
	tagger := NewTagger()
	for i := 0; i < 10; i++ {
		tagger.Update(trainingSet(), 0, nil)
	}
	tagger.Finish()

	data, err := tagger.Marshal()
	require.NoError(t, err)

	restored, err := LoadTagger(data)
	require.NoError(t, err)

	for _, ex := range trainingSet() {
		want, err := tagger.Recognize(context.Background(), ex.Text)
		require.NoError(t, err)
		got, err := restored.Recognize(context.Background(), ex.Text)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = LoadTagger([]byte(`{"format":"other","version":1}`))
	assert.Error(t, err)
	_, err = LoadTagger([]byte(`not json`))
	assert.Error(t, err)
}

func TestTagger_CloneIsIndependent(t *testing.T) {
	base := NewTagger()
	for i := 0; i < 10; i++ {
		base.Update(trainingSet(), 0, nil)
	}
	base.Finish()
	before, err := base.Marshal()
	require.NoError(t, err)

	tuned := base.Clone()
	tuned.Update([]Example{{Text: "email from Mallory", Spans: []Span{{Start: 11, End: 18, Tag: "PII/PERSON"}}}}, 0, nil)
	tuned.Finish()

	after, err := base.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestClient_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/classify":
			var req classifyRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "Jane lives in Paris", req.Text)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"spans":[{"start":0,"end":4,"label":"PERSON","text":"Jane","score":0.91},{"start":14,"end":19,"label":"GPE"}]}`))
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", time.Second)

	spans, err := client.Recognize(context.Background(), "Jane lives in Paris")
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, "PERSON", spans[0].Tag)
	require.NotNil(t, spans[0].Score)
	assert.Equal(t, 0.91, *spans[0].Score)
	assert.Nil(t, spans[1].Score)

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	client := NewClient(srv.URL, time.Second)
	_, err := client.Recognize(context.Background(), "text")
	assert.Error(t, err)
	assert.Error(t, client.HealthCheck(context.Background()))

	srv.Close()
	_, err = client.Recognize(context.Background(), "text")
	assert.Error(t, err)
}
