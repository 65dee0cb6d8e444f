package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel lays each sheet out as tab-separated rows, one row per line.
func extractExcel(src *Source) (*Text, error) {
	f, err := excelize.OpenReader(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("rows of sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
	}

	var title string
	if props, err := f.GetDocProps(); err == nil && props != nil {
		title = props.Title
	}
	return &Text{Title: title, Body: strings.TrimSpace(buf.String())}, nil
}
