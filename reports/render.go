// Package reports renders tabular report data as CSV, JSON or a plain-text table.
package reports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// maxTextWidth caps a single column in the text layout; longer cells are cut.
const maxTextWidth = 40

type Column struct {
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Table is a format-agnostic report. Every row has one cell per column.
type Table struct {
	Title       string
	Columns     []Column
	Rows        [][]string
	GeneratedAt time.Time
}

// Select keeps only the named columns, in the given order. An empty list keeps
// everything.
func (t Table) Select(keys []string) (Table, error) {
	if len(keys) == 0 {
		return t, nil
	}
	index := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		index[c.Key] = i
	}
	picks := make([]int, 0, len(keys))
	cols := make([]Column, 0, len(keys))
	for _, k := range keys {
		i, ok := index[k]
		if !ok {
			return Table{}, fmt.Errorf("unknown column %q", k)
		}
		picks = append(picks, i)
		cols = append(cols, t.Columns[i])
	}
	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]string, len(picks))
		for j, i := range picks {
			if i < len(row) {
				out[j] = row[i]
			}
		}
		rows[r] = out
	}
	t.Columns = cols
	t.Rows = rows
	return t, nil
}

// Keys lists the column keys in order.
func (t Table) Keys() []string {
	keys := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		keys[i] = c.Key
	}
	return keys
}

// Render produces the report body for format (csv, json or text).
func Render(format string, t Table) ([]byte, error) {
	switch format {
	case "csv":
		return renderCSV(t)
	case "json":
		return renderJSON(t)
	case "text":
		return renderText(t), nil
	}
	return nil, fmt.Errorf("unsupported report format: %s", format)
}

// ContentType is the media type the rendered body is served with.
func ContentType(format string) string {
	switch format {
	case "csv":
		return "text/csv; charset=utf-8"
	case "json":
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

func Extension(format string) string {
	if format == "text" {
		return "txt"
	}
	return format
}

// Filename is the attachment name, for example dead_stock-2024-03-01.csv.
func Filename(reportType, format string, at time.Time) string {
	return fmt.Sprintf("%s-%s.%s", reportType, at.Format("2006-01-02"), Extension(format))
}

func renderCSV(t Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Title
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderJSON(t Table) ([]byte, error) {
	rows := make([]map[string]string, len(t.Rows))
	for r, row := range t.Rows {
		m := make(map[string]string, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(row) {
				m[c.Key] = row[i]
			}
		}
		rows[r] = m
	}
	doc := struct {
		Title       string              `json:"title"`
		GeneratedAt time.Time           `json:"generatedAt"`
		Columns     []Column            `json:"columns"`
		Rows        []map[string]string `json:"rows"`
		Total       int                 `json:"total"`
	}{
		Title:       t.Title,
		GeneratedAt: t.GeneratedAt.UTC(),
		Columns:     t.Columns,
		Rows:        rows,
		Total:       len(t.Rows),
	}
	return json.MarshalIndent(doc, "", "  ")
}

func renderText(t Table) []byte {
	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = utf8.RuneCountInString(c.Title)
	}
	for _, row := range t.Rows {
		for i := range widths {
			if i < len(row) {
				if n := utf8.RuneCountInString(row[i]); n > widths[i] {
					widths[i] = n
				}
			}
		}
	}
	lineWidth := 0
	for i := range widths {
		if widths[i] > maxTextWidth {
			widths[i] = maxTextWidth
		}
		lineWidth += widths[i]
	}
	if len(widths) > 1 {
		lineWidth += 2 * (len(widths) - 1)
	}

	var b strings.Builder
	b.WriteString(t.Title + "\n")
	b.WriteString("Generated: " + t.GeneratedAt.UTC().Format("2006-01-02 15:04 MST") + "\n\n")

	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Title
	}
	writeTextRow(&b, header, widths)
	b.WriteString(strings.Repeat("-", lineWidth) + "\n")
	for _, row := range t.Rows {
		writeTextRow(&b, row, widths)
	}
	fmt.Fprintf(&b, "\nTotal rows: %d\n", len(t.Rows))
	return []byte(b.String())
}

func writeTextRow(b *strings.Builder, cells []string, widths []int) {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = fit(cells[i], w)
		}
		if i == len(widths)-1 {
			parts[i] = cell
			continue
		}
		parts[i] = cell + strings.Repeat(" ", w-utf8.RuneCountInString(cell))
	}
	b.WriteString(strings.Join(parts, "  ") + "\n")
}

// fit cuts s to at most w runes, marking the cut with "...".
func fit(s string, w int) string {
	if utf8.RuneCountInString(s) <= w {
		return s
	}
	r := []rune(s)
	if w <= 3 {
		return string(r[:w])
	}
	return string(r[:w-3]) + "..."
}
