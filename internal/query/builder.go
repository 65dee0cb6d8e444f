package query

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// DefaultField is the field free-text input is written against.
const DefaultField = "contents"

// ErrMalformed wraps query-string syntax errors.
var ErrMalformed = errors.New("malformed query")

// Analyzer splits text into index terms the way a field's analyzer does.
type Analyzer interface {
	Tokenize(field, text string) []string
}

// Builder builds weighted multi-field queries for free text.
type Builder struct {
	analyzer Analyzer
	// analyzerName is set on phrase sub-queries so they are analyzed like the default field.
	analyzerName string
}

// NewBuilder returns a builder tokenizing with a. analyzerName names the bleve analyzer of the
// default field; empty means the field's own.
func NewBuilder(a Analyzer, analyzerName string) *Builder {
	return &Builder{analyzer: a, analyzerName: analyzerName}
}

// Build returns the query for text. Text that analyzes to no terms yields nil, which matches
// nothing. With boosts, every weighted field gets a phrase (or term, for a single term)
// sub-query carrying its weight and the sub-queries are OR-ed, so a document needs to match
// one field to be found and ranks by the heaviest field it matched. Without boosts the query
// targets the default field only.
func (b *Builder) Build(text string, boosts map[string]float64) blevequery.Query {
	terms := b.analyzer.Tokenize(DefaultField, text)
	if len(terms) == 0 {
		return nil
	}
	if len(boosts) == 0 {
		return b.fieldQuery(DefaultField, text, terms)
	}

	fields := make([]string, 0, len(boosts))
	for f := range boosts {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	disjuncts := make([]blevequery.Query, 0, len(fields))
	for _, f := range fields {
		q := b.fieldQuery(f, text, terms)
		q.SetBoost(boosts[f])
		disjuncts = append(disjuncts, q)
	}
	dq := bleve.NewDisjunctionQuery(disjuncts...)
	dq.SetMin(1)
	return dq
}

func (b *Builder) fieldQuery(field, text string, terms []string) blevequery.BoostableQuery {
	if len(terms) == 1 {
		tq := bleve.NewTermQuery(terms[0])
		tq.SetField(field)
		return tq
	}
	// The phrase is matched on the original text so positions left by removed stop words
	// are kept.
	pq := bleve.NewMatchPhraseQuery(text)
	pq.SetField(field)
	if b.analyzerName != "" {
		pq.Analyzer = b.analyzerName
	}
	return pq
}

// fieldPrefix finds field-qualified clauses such as title:foo or +name:"a b".
var fieldPrefix = regexp.MustCompile(`(?:^|[\s(])[+-]?([A-Za-z_][A-Za-z0-9_.]*):`)

// Parser routes query text: input that names a non-default field is handed to bleve's
// query-string syntax untouched, everything else is built by the Builder.
type Parser struct {
	builder *Builder
}

// NewParser returns a parser delegating default-field text to b.
func NewParser(b *Builder) *Parser {
	return &Parser{builder: b}
}

// Parse returns the query for text, or nil when text matches nothing. A malformed
// field-qualified query returns an error wrapping ErrMalformed.
func (p *Parser) Parse(text string, boosts map[string]float64) (blevequery.Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if !targetsOtherField(text) {
		return p.builder.Build(stripDefaultField(text), boosts), nil
	}
	qs := bleve.NewQueryStringQuery(text)
	if _, err := qs.Parse(); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	return qs, nil
}

func targetsOtherField(text string) bool {
	for _, m := range fieldPrefix.FindAllStringSubmatch(text, -1) {
		if strings.ToLower(m[1]) != DefaultField {
			return true
		}
	}
	return false
}

func stripDefaultField(text string) string {
	return fieldPrefix.ReplaceAllStringFunc(text, func(s string) string {
		i := strings.Index(strings.ToLower(s), DefaultField+":")
		return s[:i]
	})
}
