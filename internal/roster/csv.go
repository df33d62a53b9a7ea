package roster

import (
	"encoding/csv"
	"io"
	"strings"

	"edutrack/internal/model"
)

// ParseImportCSV reads bulk-import rows of (name, rollNo, section). The
// first line is treated as a header when it looks like one. Short or
// malformed lines come back as zero-valued rows; the import itself
// decides what to skip.
func ParseImportCSV(r io.Reader) ([]model.ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var rows []model.ImportRow
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip unparseable lines the same way blank rows are skipped.
			continue
		}
		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}
		row := model.ImportRow{}
		if len(record) > 0 {
			row.Name = strings.TrimSpace(record[0])
		}
		if len(record) > 1 {
			row.RollNo = strings.TrimSpace(record[1])
		}
		if len(record) > 2 {
			row.Section = strings.TrimSpace(record[2])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	name := strings.ToLower(strings.TrimSpace(record[0]))
	return name == "name"
}
