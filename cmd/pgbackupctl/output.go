package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// formatter renders a dispatch.Result as either a human-readable table or
// newline-delimited JSON, switched live by the output_format runtime
// variable through internal/rtvars.OutputFormatter.
type formatter struct {
	format string // "text" or "json"
}

func newFormatter() *formatter {
	return &formatter{format: "text"}
}

// SetFormat implements rtvars.OutputFormatter.
func (f *formatter) SetFormat(format string) {
	f.format = format
}

func (f *formatter) printMessage(msg string) {
	if msg == "" {
		return
	}
	if f.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.Encode(map[string]string{"message": msg}) //nolint:errcheck
		return
	}
	fmt.Println(msg)
}

func (f *formatter) printRows(rows []map[string]any) {
	if f.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.Encode(rows) //nolint:errcheck
		return
	}
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return
	}
	cols := columnOrder(rows[0])
	for _, row := range rows {
		parts := make([]string, 0, len(cols))
		for _, c := range cols {
			parts = append(parts, fmt.Sprintf("%s=%v", c, row[c]))
		}
		fmt.Println(joinSpaced(parts))
	}
}

func columnOrder(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func joinSpaced(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "  "
		}
		out += p
	}
	return out
}
