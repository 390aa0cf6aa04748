package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/nanogrid/types"
)

// table is a rendered result: a header row plus plain-text rows, and the
// structured value emitted for json and yaml
type table struct {
	Header []string
	Rows   [][]string
	Data   any
}

// OutputFormatter handles formatting command results for different output formats
type OutputFormatter struct {
	format string
	quiet  bool
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(format string, quiet bool) (*OutputFormatter, error) {
	switch format {
	case "", "table":
		format = "table"
	case "json", "yaml", "csv":
	default:
		return nil, NewConfigError("format output", fmt.Sprintf("unknown format %q", format),
			"Use --format table|json|yaml|csv")
	}
	return &OutputFormatter{format: format, quiet: quiet}, nil
}

// Write formats t to w
func (of *OutputFormatter) Write(w io.Writer, t table) error {
	switch of.format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(t.Data)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(t.Data); err != nil {
			return err
		}
		return encoder.Close()
	case "csv":
		cw := csv.NewWriter(w)
		if !of.quiet {
			if err := cw.Write(t.Header); err != nil {
				return err
			}
		}
		if err := cw.WriteAll(t.Rows); err != nil {
			return err
		}
		return cw.Error()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if !of.quiet {
		fmt.Fprintln(tw, strings.Join(t.Header, "\t"))
	}
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// recordsTable lists records with one column per field
func recordsTable(fields []types.Field, records []*types.Record) table {
	t := table{Header: []string{"id"}}
	for _, f := range fields {
		t.Header = append(t.Header, f.Name)
	}
	data := make([]map[string]any, len(records))
	for i, r := range records {
		row := []string{r.ID}
		item := map[string]any{"id": r.ID}
		for _, f := range fields {
			v := r.Get(f.Name)
			row = append(row, cell(v))
			item[f.Name] = plainValue(v)
		}
		t.Rows = append(t.Rows, row)
		data[i] = item
	}
	t.Data = data
	return t
}

// cell renders a value for table and csv output
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(x, ",")
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = types.ToString(item)
		}
		return strings.Join(parts, ",")
	}
	return types.ToString(v)
}

// plainValue converts parsed values to forms yaml and json both encode
// readably
func plainValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int, int64, float64, []string, []any:
		return x
	}
	return types.ToString(v)
}
