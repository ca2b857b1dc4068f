package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MaxSheetChars bounds the CSV rendering of a single sheet.
const MaxSheetChars = 10000

// ConvertSheet renders every sheet of a workbook as a fenced CSV block.
func ConvertSheet(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("*XLSX/XLS document (data converted to CSV):*\n")
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", name, err)
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(rows); err != nil {
			return "", fmt.Errorf("encode sheet %q: %w", name, err)
		}
		fmt.Fprintf(&b, "\n*-- SHEET: %s (converted to CSV) --*\n```csv\n%s\n```", name, truncateRunes(buf.String(), MaxSheetChars))
	}
	return b.String(), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
