// Package schema owns the bleve document layout shared by indexing and querying: field names,
// the index mapping and the analyzer used to tokenize queries the same way documents were.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/hyperjump/docsearcher/internal/extract"
)

// Field names. FieldContents is the default field free-text queries target.
const (
	FieldContents = "contents"
	FieldTitle    = "title"
	FieldSummary  = "summary"
	FieldName     = "name"
	FieldPath     = "path"
	FieldType     = "type"
	FieldISBN     = "isbn"
	FieldSize     = "size"
	FieldModified = "modified"
)

// DocType is the bleve type name of indexed documents.
const DocType = "document"

// StoredFields are returned with every hit.
var StoredFields = []string{FieldTitle, FieldPath, FieldSummary, FieldName, FieldType}

// Document is the indexed form of one file or archive entry.
type Document struct {
	Contents string    `json:"contents"`
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Type     string    `json:"type"`
	ISBN     string    `json:"isbn,omitempty"`
	Size     float64   `json:"size"`
	Modified time.Time `json:"modified"`
}

// BleveType implements bleve's Classifier.
func (Document) BleveType() string { return DocType }

// NewDocument builds the indexed form of an extracted file. docPath is the on-disk path, or
// archive!entry for archive members.
func NewDocument(docPath string, info *extract.ParsedFileInfo) *Document {
	return &Document{
		Contents: extract.Content(info),
		Title:    info.Title,
		Summary:  info.Summary,
		Name:     searchableName(info.Name),
		Path:     docPath,
		Type:     string(info.Type),
		ISBN:     info.ISBN,
		Size:     float64(info.Size),
		Modified: info.ModTime,
	}
}

// searchableName splits file names on underscores and dots, which the standard analyzer keeps
// inside tokens, so "company_profile_2021.pptx" matches "company profile".
func searchableName(name string) string {
	return strings.NewReplacer("_", " ", ".", " ").Replace(name)
}

// NewMapping returns the index mapping for Document.
func NewMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	// Standard analyzer: lowercase + unicode tokenization, no stemming, so a query term
	// matches the word as written.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	text.Store = true

	contents := bleve.NewTextFieldMapping()
	contents.Analyzer = standard.Name
	contents.Store = false

	exact := bleve.NewKeywordFieldMapping()

	size := bleve.NewNumericFieldMapping()
	modified := bleve.NewDateTimeFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(FieldContents, contents)
	doc.AddFieldMappingsAt(FieldTitle, text)
	doc.AddFieldMappingsAt(FieldSummary, text)
	doc.AddFieldMappingsAt(FieldName, text)
	doc.AddFieldMappingsAt(FieldPath, exact)
	doc.AddFieldMappingsAt(FieldType, exact)
	doc.AddFieldMappingsAt(FieldISBN, exact)
	doc.AddFieldMappingsAt(FieldSize, size)
	doc.AddFieldMappingsAt(FieldModified, modified)

	im.AddDocumentMapping(DocType, doc)
	im.DefaultType = DocType
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	im.DefaultField = FieldContents
	return im
}

// Analyzer tokenizes text with the analyzer a mapping assigns to a field.
type Analyzer struct {
	mapping mapping.IndexMapping
}

// NewAnalyzer returns an analyzer over m. A nil m means NewMapping().
func NewAnalyzer(m mapping.IndexMapping) *Analyzer {
	if m == nil {
		m = NewMapping()
	}
	return &Analyzer{mapping: m}
}

// Tokenize returns the terms of text in order, as field's analyzer produces them.
func (a *Analyzer) Tokenize(field, text string) []string {
	an := a.mapping.AnalyzerNamed(a.mapping.AnalyzerNameForPath(field))
	if an == nil {
		return nil
	}
	tokens := an.Analyze([]byte(text))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		terms = append(terms, string(tok.Term))
	}
	return terms
}

// MetaFile is written by bleve into every index directory.
const MetaFile = "index_meta.json"

// CheckIntegrity reports whether dir holds a structurally readable bleve index: the metadata
// file must exist, be non-empty and parse as JSON.
func CheckIntegrity(dir string) error {
	metaPath := filepath.Join(dir, MetaFile)
	info, err := os.Stat(metaPath)
	if err != nil {
		return fmt.Errorf("%s: %w", MetaFile, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", MetaFile)
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", MetaFile, err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("%s is corrupt: %w", MetaFile, err)
	}
	return nil
}
