package analytics

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"erp-backend/internal/apperr"
	"erp-backend/internal/timeutil"

	"github.com/goccy/go-json"
	"github.com/jung-kurt/gofpdf/v2"
	"github.com/xuri/excelize/v2"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// Row is one flattened key/value pair of a report.
type Row struct {
	Key   string
	Value string
}

// Flatten walks the JSON form of v and returns one row per leaf, keyed by
// its dotted path. Map keys are sorted so the output is stable.
func Flatten(v interface{}) ([]Row, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}

	var rows []Row
	flattenInto(&rows, "", tree)
	return rows, nil
}

func flattenInto(rows *[]Row, prefix string, node interface{}) {
	switch n := node.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			flattenInto(rows, path, n[k])
		}
	case []interface{}:
		for i, item := range n {
			flattenInto(rows, fmt.Sprintf("%s[%d]", prefix, i), item)
		}
	case nil:
		*rows = append(*rows, Row{Key: prefix})
	default:
		*rows = append(*rows, Row{Key: prefix, Value: fmt.Sprint(n)})
	}
}

// Render encodes the report in format and returns the bytes with their
// content type.
func Render(r *Report, format string) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		b, err := json.Marshal(r)
		return b, "application/json", err
	case FormatPDF:
		b, err := RenderPDF(r)
		return b, "application/pdf", err
	case FormatXLSX:
		b, err := RenderXLSX(r)
		return b, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
	default:
		return nil, "", apperr.Validation("Unsupported format %q", format)
	}
}

func reportTitle(r *Report) string {
	if r.ReportType == "" {
		return "Report"
	}
	return strings.ToUpper(r.ReportType[:1]) + r.ReportType[1:] + " Report"
}

func filterRows(r *Report) []Row {
	keys := make([]string, 0, len(r.FiltersApplied))
	for k := range r.FiltersApplied {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([]Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, Row{Key: k, Value: r.FiltersApplied[k]})
	}
	return rows
}

func RenderPDF(r *Report) ([]byte, error) {
	rows, err := Flatten(r.Data)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(190, 12, reportTitle(r), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, fmt.Sprintf("Generated: %s", r.GeneratedAt.In(timeutil.Loc).Format("02-Jan-2006 03:04 PM")), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	if filters := filterRows(r); len(filters) > 0 {
		pdf.SetFillColor(240, 240, 240)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(190, 8, "Filters", "1", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "", 10)
		for _, f := range filters {
			pdf.CellFormat(70, 7, f.Key, "1", 0, "L", false, 0, "")
			pdf.CellFormat(120, 7, f.Value, "1", 1, "L", false, 0, "")
		}
		pdf.Ln(5)
	}

	// Table header
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(120, 7, "Metric", "1", 0, "C", true, 0, "")
	pdf.CellFormat(70, 7, "Value", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for i, row := range rows {
		if i%2 == 0 {
			pdf.SetFillColor(255, 255, 255)
		} else {
			pdf.SetFillColor(245, 245, 245)
		}
		key := row.Key
		if len(key) > 70 {
			key = key[:67] + "..."
		}
		value := row.Value
		if len(value) > 40 {
			value = value[:37] + "..."
		}
		pdf.CellFormat(120, 6, key, "1", 0, "L", true, 0, "")
		pdf.CellFormat(70, 6, value, "1", 1, "R", true, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func RenderXLSX(r *Report) ([]byte, error) {
	rows, err := Flatten(r.Data)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Report"
	f.SetSheetName("Sheet1", sheet)
	f.SetCellValue(sheet, "A1", reportTitle(r))
	f.SetCellValue(sheet, "A2", "Generated")
	f.SetCellValue(sheet, "B2", r.GeneratedAt.In(timeutil.Loc).Format(timeutil.DateTimeLayout))
	f.SetCellValue(sheet, "A4", "Metric")
	f.SetCellValue(sheet, "B4", "Value")
	for i, row := range rows {
		line := i + 5
		f.SetCellValue(sheet, fmt.Sprintf("A%d", line), row.Key)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", line), row.Value)
	}
	f.SetColWidth(sheet, "A", "A", 50)
	f.SetColWidth(sheet, "B", "B", 25)

	if filters := filterRows(r); len(filters) > 0 {
		const filterSheet = "Filters"
		if _, err := f.NewSheet(filterSheet); err != nil {
			return nil, err
		}
		f.SetCellValue(filterSheet, "A1", "Filter")
		f.SetCellValue(filterSheet, "B1", "Value")
		for i, row := range filters {
			f.SetCellValue(filterSheet, fmt.Sprintf("A%d", i+2), row.Key)
			f.SetCellValue(filterSheet, fmt.Sprintf("B%d", i+2), row.Value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
