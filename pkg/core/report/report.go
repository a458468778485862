// Package report projects aggregate views into tabular files: CSV, JSON, and
// a Markdown summary rendered to HTML. Output filenames carry a date stamp so
// successive runs never clobber each other within a day boundary.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"insiderflow/pkg/core/fundflow"
	"insiderflow/pkg/logger"
)

// Table is an ordered, column-named projection of one view. Cells may be
// strings, numbers, or fundflow.Flow values; Flow infinities survive both
// output formats.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Writer persists tables under one directory.
type Writer struct {
	Dir string
	// Now is injectable for deterministic filenames in tests.
	Now func() time.Time
}

func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, Now: time.Now}
}

func (w *Writer) path(name, ext string) string {
	stamp := w.Now().Format("20060102")
	return filepath.Join(w.Dir, fmt.Sprintf("%s_%s.%s", name, stamp, ext))
}

// WriteCSV writes one table as CSV. Returns the written path.
func (w *Writer) WriteCSV(t Table) (string, error) {
	path := w.path(t.Name, "csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(t.Columns); err != nil {
		return "", fmt.Errorf("write header for %s: %w", t.Name, err)
	}
	for _, row := range t.Rows {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = formatCell(cell)
		}
		if err := cw.Write(record); err != nil {
			return "", fmt.Errorf("write row for %s: %w", t.Name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("flush %s: %w", t.Name, err)
	}
	return path, nil
}

// WriteJSON writes one table as an array of column-keyed objects. Key order
// follows the table's column order; Flow infinities serialize as the string
// "Infinity".
func (w *Writer) WriteJSON(t Table) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteString(",\n")
		}
		buf.WriteString("  {")
		for j, cell := range row {
			if j > 0 {
				buf.WriteString(", ")
			}
			key, err := json.Marshal(t.Columns[j])
			if err != nil {
				return "", fmt.Errorf("encode column name %q: %w", t.Columns[j], err)
			}
			value, err := marshalCell(cell)
			if err != nil {
				return "", fmt.Errorf("encode %s cell: %w", t.Columns[j], err)
			}
			buf.Write(key)
			buf.WriteString(": ")
			buf.Write(value)
		}
		buf.WriteString("}")
	}
	buf.WriteString("\n]\n")

	path := w.path(t.Name, "json")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// WriteSummary renders every table into one Markdown document and its HTML
// rendering. Both files are written; the Markdown path is returned first.
func (w *Writer) WriteSummary(name string, tables []Table) (string, string, error) {
	md := buildMarkdown(tables)

	mdPath := w.path(name, "md")
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", mdPath, err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md), &html); err != nil {
		return "", "", fmt.Errorf("render summary HTML: %w", err)
	}
	htmlPath := w.path(name, "html")
	if err := os.WriteFile(htmlPath, html.Bytes(), 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", htmlPath, err)
	}

	logger.L.Info("summary written", "markdown", mdPath, "html", htmlPath)
	return mdPath, htmlPath, nil
}

func buildMarkdown(tables []Table) string {
	var b strings.Builder
	b.WriteString("# Fund Flow Summary\n")
	for _, t := range tables {
		b.WriteString("\n## " + t.Name + "\n\n")
		if len(t.Rows) == 0 {
			b.WriteString("_no data_\n")
			continue
		}
		b.WriteString("| " + strings.Join(t.Columns, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(t.Columns)) + "\n")
		for _, row := range t.Rows {
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = formatCell(cell)
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}
	return b.String()
}

func formatCell(cell any) string {
	switch v := cell.(type) {
	case string:
		return v
	case fundflow.Flow:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatFloat renders infinities as "+Inf"/"-Inf" in text outputs.
func formatFloat(v float64) string {
	if math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func marshalCell(cell any) ([]byte, error) {
	switch v := cell.(type) {
	case fundflow.Flow:
		return v.MarshalJSON()
	case float64:
		return fundflow.Flow(v).MarshalJSON()
	default:
		return json.Marshal(cell)
	}
}
