package extract

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lu4p/cat"
)

// extractWithCat handles RTF and ODT through lu4p/cat, which reads from disk. Archive entries
// are spilled to a temporary file first.
func extractWithCat(src *Source) (*Text, error) {
	path := src.Path
	if path == "" {
		f, err := os.CreateTemp("", "extract-*"+filepath.Ext(src.Name))
		if err != nil {
			return nil, fmt.Errorf("spill %s: %w", src.Name, err)
		}
		defer os.Remove(f.Name())
		if _, err := f.Write(src.Data); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("spill %s: %w", src.Name, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("spill %s: %w", src.Name, err)
		}
		path = f.Name()
	}
	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Ext(src.Name), err)
	}
	return &Text{Body: text}, nil
}
