package extract

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultSummaryLength is the summary cap, in runes, used when none is configured.
const DefaultSummaryLength = 200

// Catalog returns the named extractors a mapping may refer to.
func Catalog() map[string]Extractor {
	return map[string]Extractor{
		"text": NewFuncExtractor(TypeText, extractPlain),
		"html": NewFuncExtractor(TypeHTML, extractHTML),
		"rtf":  NewFuncExtractor(TypeRTF, extractWithCat),
		"odt":  NewFuncExtractor(TypeWord, extractWithCat),
		"docx": NewFuncExtractor(TypeWord, extractDOCX),
		"xlsx": NewFuncExtractor(TypeExcel, extractExcel),
		"ods":  NewFuncExtractor(TypeExcel, extractODS),
		"pdf":  NewFuncExtractor(TypePDF, extractPDF),
		"pptx": NewFuncExtractor(TypePresentation, extractPPTX),
		"odp":  NewFuncExtractor(TypePresentation, extractODP),
	}
}

// DefaultMapping returns the extension → extractor name table used when nothing is persisted.
func DefaultMapping() map[string]string {
	return map[string]string{
		".txt":   "text",
		".text":  "text",
		".md":    "text",
		".rst":   "text",
		".csv":   "text",
		".log":   "text",
		".xml":   "text",
		".json":  "text",
		".html":  "html",
		".htm":   "html",
		".xhtml": "html",
		".rtf":   "rtf",
		".odt":   "odt",
		".docx":  "docx",
		".xlsx":  "xlsx",
		".ods":   "ods",
		".pdf":   "pdf",
		".pptx":  "pptx",
		".odp":   "odp",
	}
}

// Registry dispatches files to extractors by extension.
type Registry struct {
	mu         sync.RWMutex
	mapping    map[string]string
	byExt      map[string]Extractor
	summaryLen int
	maxSize    int64
	logger     *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for per-file extraction failures.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithSummaryLength caps summaries at n runes.
func WithSummaryLength(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.summaryLen = n
		}
	}
}

// WithMaxFileSize makes files larger than n bytes metadata-only. Zero means no limit.
func WithMaxFileSize(n int64) Option {
	return func(r *Registry) { r.maxSize = n }
}

// NewRegistry builds a registry from an extension → extractor name mapping.
// A nil mapping means DefaultMapping. Names missing from the catalog are logged and skipped.
func NewRegistry(mapping map[string]string, opts ...Option) *Registry {
	r := &Registry{
		byExt:      make(map[string]Extractor),
		summaryLen: DefaultSummaryLength,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if mapping == nil {
		mapping = DefaultMapping()
	}
	r.mapping = make(map[string]string, len(mapping))
	catalog := Catalog()
	for ext, name := range mapping {
		ext = normalizeExt(ext)
		e, ok := catalog[name]
		if !ok {
			r.logger.Warn("unknown extractor in mapping", zap.String("ext", ext), zap.String("extractor", name))
			continue
		}
		r.mapping[ext] = name
		r.byExt[ext] = e
	}
	return r
}

// Register installs e for ext, replacing any existing extractor. Custom extractors are not
// part of the persisted Mapping.
func (r *Registry) Register(ext string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byExt[normalizeExt(ext)] = e
}

// Mapping returns a copy of the persisted extension → extractor name table.
func (r *Registry) Mapping() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.mapping))
	for k, v := range r.mapping {
		out[k] = v
	}
	return out
}

// Lookup returns the extractor for ext, or nil when the extension is not mapped.
func (r *Registry) Lookup(ext string) Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byExt[normalizeExt(ext)]
}

// Supports reports whether ext has a text extractor.
func (r *Registry) Supports(ext string) bool {
	return r.Lookup(ext) != nil
}

// ExtractInfo extracts the file at path. It returns nil for an empty path, a missing file or a
// directory, and nil (after logging) when the file cannot be read or parsed.
func (r *Registry) ExtractInfo(path string) *ParsedFileInfo {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil
	}
	name := filepath.Base(path)
	if r.tooLarge(info.Size()) || r.Lookup(filepath.Ext(name)) == nil {
		return metadataOnly(name, info.Size(), info.ModTime())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		r.logFailure(&ExtractionError{Path: path, Err: err})
		return nil
	}
	return r.extract(&Source{Name: name, Path: path, Data: data}, info.Size(), info.ModTime())
}

// ExtractBytes extracts an in-memory document such as an archive entry.
func (r *Registry) ExtractBytes(name string, data []byte, modTime time.Time) *ParsedFileInfo {
	if name == "" {
		return nil
	}
	size := int64(len(data))
	if r.tooLarge(size) || r.Lookup(filepath.Ext(name)) == nil {
		return metadataOnly(filepath.Base(name), size, modTime)
	}
	return r.extract(&Source{Name: filepath.Base(name), Data: data}, size, modTime)
}

func (r *Registry) extract(src *Source, size int64, modTime time.Time) *ParsedFileInfo {
	e := r.Lookup(filepath.Ext(src.Name))
	text, err := safeExtract(e, src)
	if err != nil {
		path := src.Path
		if path == "" {
			path = src.Name
		}
		r.logFailure(&ExtractionError{Path: path, Err: err})
		return nil
	}
	title := strings.TrimSpace(text.Title)
	if title == "" {
		title = src.Name
	}
	return &ParsedFileInfo{
		Type:    e.Type(),
		Name:    src.Name,
		Title:   title,
		Summary: Summarize(text.Body, r.summaryLen),
		ISBN:    ExtractISBN(text.Body),
		Size:    size,
		ModTime: modTime,
		text:    text.Body,
		hasText: true,
	}
}

// safeExtract shields the caller from parsers that panic on corrupt input.
func safeExtract(e Extractor, src *Source) (text *Text, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = nil, fmt.Errorf("extractor panic: %v", p)
		}
	}()
	text, err = e.Extract(src)
	if err == nil && text == nil {
		text = &Text{}
	}
	return text, err
}

func (r *Registry) tooLarge(size int64) bool {
	return r.maxSize > 0 && size > r.maxSize
}

func (r *Registry) logFailure(err *ExtractionError) {
	r.logger.Warn("extraction failed, skipping file", zap.String("path", err.Path), zap.Error(err.Err))
}

func metadataOnly(name string, size int64, modTime time.Time) *ParsedFileInfo {
	return &ParsedFileInfo{
		Type:    TypeFile,
		Name:    name,
		Title:   name,
		Size:    size,
		ModTime: modTime,
	}
}

// GetContent reads a content stream into text. It returns "" for a nil reader or a read failure,
// so binary-only records yield an empty string rather than an error.
func GetContent(rd io.Reader) string {
	if rd == nil {
		return ""
	}
	b, err := io.ReadAll(rd)
	if err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(b)
}

// Content returns the full text of p, or "" when it has none.
func Content(p *ParsedFileInfo) string {
	rc, err := p.Open()
	if err != nil {
		return ""
	}
	defer rc.Close()
	return GetContent(rc)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
