// Package extract normalizes arbitrary document files into a uniform searchable record.
//
// Each supported format is handled by an Extractor; a Registry maps file extensions to
// extractors and falls back to a metadata-only extractor for anything it does not recognize.
package extract

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// FileType tags the kind of document an extractor produced.
type FileType string

const (
	TypeText         FileType = "TEXT"
	TypeHTML         FileType = "HTML"
	TypeRTF          FileType = "RTF"
	TypeWord         FileType = "WORD"
	TypeExcel        FileType = "EXCEL"
	TypePDF          FileType = "PDF"
	TypePresentation FileType = "PRESENTATION"
	TypeFile         FileType = "FILE"
)

// ErrNoContent is returned by ParsedFileInfo.Open for records without extractable text.
var ErrNoContent = errors.New("no extractable content")

// Source is the input handed to an Extractor.
type Source struct {
	// Name is the file (or archive entry) name; its extension selected the extractor.
	Name string
	// Path is the on-disk location. Empty for archive entries.
	Path string
	Data []byte
}

// Text is what an extractor pulls out of a document.
type Text struct {
	// Title is the document's own title, if the format carries one.
	Title string
	Body  string
}

// Extractor turns the bytes of one document format into text.
type Extractor interface {
	Type() FileType
	Extract(src *Source) (*Text, error)
}

type funcExtractor struct {
	fileType FileType
	fn       func(src *Source) (*Text, error)
}

func (f funcExtractor) Type() FileType { return f.fileType }

func (f funcExtractor) Extract(src *Source) (*Text, error) { return f.fn(src) }

// NewFuncExtractor adapts a plain function to the Extractor interface.
func NewFuncExtractor(t FileType, fn func(src *Source) (*Text, error)) Extractor {
	return funcExtractor{fileType: t, fn: fn}
}

// ParsedFileInfo is the normalized result of extracting one file. It is immutable.
type ParsedFileInfo struct {
	Type    FileType
	Name    string
	Title   string
	Summary string
	ISBN    string
	Size    int64
	ModTime time.Time

	text    string
	hasText bool
}

// HasContent reports whether Open will produce the document text.
func (p *ParsedFileInfo) HasContent() bool {
	return p != nil && p.hasText
}

// Open returns a reader over the full extracted text.
func (p *ParsedFileInfo) Open() (io.ReadCloser, error) {
	if !p.HasContent() {
		return nil, ErrNoContent
	}
	return io.NopCloser(strings.NewReader(p.text)), nil
}

// ExtractionError describes a per-file extraction failure. It is logged and the file skipped.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
