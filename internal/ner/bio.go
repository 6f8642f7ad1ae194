package ner

import "strings"

const outside = "O"

// Span is a tagged rune range
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Tag   string `json:"tag"`
}

// Example is a text with its gold spans
type Example struct {
	Text  string `json:"text"`
	Spans []Span `json:"spans"`
}

// SpanTag builds the tag the tagger learns for a label/sublabel pair
func SpanTag(label, sublabel string) string {
	if sublabel == "" {
		sublabel = "GENERIC"
	}
	return label + "/" + strings.ToUpper(sublabel)
}

// encodeBIO assigns one BIO tag per token. Tokens that only partly overlap a
// span are tagged outside.
func encodeBIO(tokens []Token, spans []Span) []string {
	tags := make([]string, len(tokens))
	for i := range tags {
		tags[i] = outside
	}
	for _, s := range spans {
		first := true
		for i, tok := range tokens {
			if tok.Start < s.Start || tok.End > s.End || tags[i] != outside {
				continue
			}
			if first {
				tags[i] = "B-" + s.Tag
				first = false
			} else {
				tags[i] = "I-" + s.Tag
			}
		}
	}
	return tags
}

// decodeBIO turns per-token tags back into spans. An I- tag that does not
// continue a span of the same type opens a new one.
func decodeBIO(tokens []Token, tags []string) []Span {
	var spans []Span
	var cur *Span
	closeSpan := func() {
		if cur != nil {
			spans = append(spans, *cur)
			cur = nil
		}
	}

	for i, tag := range tags {
		prefix, typ, ok := strings.Cut(tag, "-")
		if !ok || tag == outside {
			closeSpan()
			continue
		}
		if prefix == "I" && cur != nil && cur.Tag == typ {
			cur.End = tokens[i].End
			continue
		}
		closeSpan()
		cur = &Span{Start: tokens[i].Start, End: tokens[i].End, Tag: typ}
	}
	closeSpan()
	return spans
}
