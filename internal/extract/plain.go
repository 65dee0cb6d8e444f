package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain returns the content as text. Invalid UTF-8 sequences are replaced with the
// replacement character.
func extractPlain(src *Source) (*Text, error) {
	content := src.Data
	if !utf8.Valid(content) {
		return &Text{Body: strings.ToValidUTF8(string(content), "�")}, nil
	}
	return &Text{Body: string(content)}, nil
}
