package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// Office Open XML and OpenDocument packages are zip files holding XML parts. Text lives in a
// handful of well-known elements, so a tag pattern per format is enough to make them searchable.

const (
	docxDefaultPart  = "word/document.xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix  = "ppt/slides/slide"
	odfContentPart   = "content.xml"
	ooxmlCorePart    = "docProps/core.xml"
	contentTypesPart = "[Content_Types].xml"
)

var (
	wordText   = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	drawText   = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	odfText    = regexp.MustCompile(`<text:(p|span|h)[^>]*>([^<]*)</text:(p|span|h)>`)
	coreTitle  = regexp.MustCompile(`<dc:title[^>]*>([^<]*)</dc:title>`)
	mainPartRe = regexp.MustCompile(`<Override[^>]*(?:PartName="/?([^"]+)"[^>]*ContentType="` + regexp.QuoteMeta(docxMainType) +
		`"|ContentType="` + regexp.QuoteMeta(docxMainType) + `"[^>]*PartName="/?([^"]+)")`)
)

type zipPackage struct {
	files map[string]*zip.File
	names []string
}

func openPackage(format string, content []byte) (*zipPackage, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	p := &zipPackage{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		p.files[f.Name] = f
		p.names = append(p.names, f.Name)
	}
	sort.Strings(p.names)
	return p, nil
}

// read returns the named part, or nil when the package has no such part.
func (p *zipPackage) read(name string) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return b, nil
}

// title reads dc:title from the OOXML core properties, if present.
func (p *zipPackage) title() string {
	core, err := p.read(ooxmlCorePart)
	if err != nil || core == nil {
		return ""
	}
	if m := coreTitle.FindSubmatch(core); m != nil {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

func joinMatches(xml []byte, re *regexp.Regexp, group int, b *strings.Builder) {
	for _, m := range re.FindAllSubmatch(xml, -1) {
		part := strings.TrimSpace(string(m[group]))
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(part)
	}
}

// extractDOCX reads the main document part named by [Content_Types].xml, falling back to
// word/document.xml.
func extractDOCX(src *Source) (*Text, error) {
	p, err := openPackage("DOCX", src.Data)
	if err != nil {
		return nil, err
	}
	part := docxDefaultPart
	if ct, _ := p.read(contentTypesPart); ct != nil {
		if m := mainPartRe.FindSubmatch(ct); m != nil {
			if len(m[1]) > 0 {
				part = string(m[1])
			} else {
				part = string(m[2])
			}
		}
	}
	body, err := p.read(part)
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}
	if body == nil {
		return nil, fmt.Errorf("extract DOCX: %s not found", part)
	}
	var b strings.Builder
	joinMatches(body, wordText, 1, &b)
	return &Text{Title: p.title(), Body: b.String()}, nil
}

// extractPPTX concatenates the text runs of every slide in slide order.
func extractPPTX(src *Source) (*Text, error) {
	p, err := openPackage("PPTX", src.Data)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, name := range p.names {
		if !strings.HasPrefix(name, pptxSlidePrefix) || !strings.HasSuffix(name, ".xml") {
			continue
		}
		slide, err := p.read(name)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		joinMatches(slide, drawText, 1, &b)
	}
	return &Text{Title: p.title(), Body: b.String()}, nil
}

func extractODF(format string, src *Source) (*Text, error) {
	p, err := openPackage(format, src.Data)
	if err != nil {
		return nil, err
	}
	content, err := p.read(odfContentPart)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", format, err)
	}
	if content == nil {
		return nil, fmt.Errorf("extract %s: %s not found", format, odfContentPart)
	}
	var b strings.Builder
	joinMatches(content, odfText, 2, &b)
	return &Text{Body: b.String()}, nil
}

func extractODS(src *Source) (*Text, error) { return extractODF("ODS", src) }

func extractODP(src *Source) (*Text, error) { return extractODF("ODP", src) }
