package framework

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opencomply/comply-server/pkg/apierror"
)

// FlatRow is one row of the flattened import format produced by spreadsheet
// exports: a level column plus the node fields, in document order.
type FlatRow struct {
	Level            int      `json:"level"`
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	OrderNo          *int     `json:"order_no"`
	Summary          string   `json:"summary,omitempty"`
	Questions        []string `json:"questions,omitempty"`
	EvidenceExamples []string `json:"evidence_examples,omitempty"`
}

// RowImport wraps flattened rows with the framework header fields that the
// nested format carries at the top level.
type RowImport struct {
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Version        string        `json:"version,omitempty"`
	Organizational bool          `json:"is_organizational"`
	Hierarchy      HierarchySpec `json:"hierarchy"`
	Rows           []FlatRow     `json:"rows"`
}

// ToPayload reconstructs the nested ImportPayload from the flattened rows.
// Rows are consumed in order: a level-1 row opens a new category, level-2
// rows attach to the current category, level-3 rows to the current control.
// The result feeds the same validator and importer as the nested format.
func (ri *RowImport) ToPayload() (*ImportPayload, error) {
	payload := &ImportPayload{
		Name:           ri.Name,
		Description:    ri.Description,
		Version:        ri.Version,
		Organizational: ri.Organizational,
		Hierarchy:      ri.Hierarchy,
	}

	for i, row := range ri.Rows {
		switch row.Level {
		case 1:
			payload.Structure = append(payload.Structure, Level1Payload{
				Title:       row.Title,
				Description: row.Description,
				OrderNo:     row.OrderNo,
			})
		case 2:
			if len(payload.Structure) == 0 {
				return nil, apierror.NewValidation(fmt.Sprintf("rows[%d]: level 2 row has no preceding level 1 row", i))
			}
			l1 := &payload.Structure[len(payload.Structure)-1]
			l1.Items = append(l1.Items, Level2Payload{
				Title:            row.Title,
				Description:      row.Description,
				OrderNo:          row.OrderNo,
				Summary:          row.Summary,
				Questions:        row.Questions,
				EvidenceExamples: row.EvidenceExamples,
			})
		case 3:
			if len(payload.Structure) == 0 {
				return nil, apierror.NewValidation(fmt.Sprintf("rows[%d]: level 3 row has no preceding level 1 row", i))
			}
			l1 := &payload.Structure[len(payload.Structure)-1]
			if len(l1.Items) == 0 {
				return nil, apierror.NewValidation(fmt.Sprintf("rows[%d]: level 3 row has no preceding level 2 row", i))
			}
			l2 := &l1.Items[len(l1.Items)-1]
			l2.Items = append(l2.Items, Level3Payload{
				Title:            row.Title,
				Description:      row.Description,
				OrderNo:          row.OrderNo,
				Summary:          row.Summary,
				Questions:        row.Questions,
				EvidenceExamples: row.EvidenceExamples,
			})
		default:
			return nil, apierror.NewValidation(fmt.Sprintf("rows[%d]: level must be 1, 2 or 3, got %d", i, row.Level))
		}
	}

	return payload, nil
}

// csvColumns is the fixed column order of the CSV row carrier. Questions and
// evidence examples are semicolon-separated within their cells.
var csvColumns = []string{"level", "title", "description", "order_no", "summary", "questions", "evidence_examples"}

// ParseCSVRows reads flattened rows from CSV. The first record must be the
// header naming the columns in order.
func ParseCSVRows(r io.Reader) ([]FlatRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvColumns)

	header, err := reader.Read()
	if err != nil {
		return nil, apierror.NewValidation(fmt.Sprintf("read CSV header: %v", err))
	}
	for i, want := range csvColumns {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return nil, apierror.NewValidation(fmt.Sprintf("CSV header column %d must be %q, got %q", i, want, header[i]))
		}
	}

	var rows []FlatRow
	for lineNo := 2; ; lineNo++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apierror.NewValidation(fmt.Sprintf("read CSV line %d: %v", lineNo, err))
		}

		level, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, apierror.NewValidation(fmt.Sprintf("CSV line %d: level %q is not a number", lineNo, record[0]))
		}

		row := FlatRow{
			Level:       level,
			Title:       strings.TrimSpace(record[1]),
			Description: strings.TrimSpace(record[2]),
			Summary:     strings.TrimSpace(record[4]),
		}
		if v := strings.TrimSpace(record[3]); v != "" {
			orderNo, err := strconv.Atoi(v)
			if err != nil {
				return nil, apierror.NewValidation(fmt.Sprintf("CSV line %d: order_no %q is not a number", lineNo, record[3]))
			}
			row.OrderNo = &orderNo
		}
		row.Questions = splitCell(record[5])
		row.EvidenceExamples = splitCell(record[6])

		rows = append(rows, row)
	}

	return rows, nil
}

// splitCell splits a semicolon-separated cell, dropping empty entries.
func splitCell(cell string) []string {
	var out []string
	for _, part := range strings.Split(cell, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
