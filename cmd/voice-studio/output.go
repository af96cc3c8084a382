package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

const tabPadding = 2

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	return nil
}

// printTable writes a header and rows aligned in columns.
func printTable(w io.Writer, header []any, rows [][]any) error {
	table := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)

	writeRow := func(cells []any) {
		for i, cell := range cells {
			if i > 0 {
				fmt.Fprint(table, "\t")
			}

			fmt.Fprint(table, cell)
		}

		fmt.Fprintln(table)
	}

	writeRow(header)

	for _, row := range rows {
		writeRow(row)
	}

	err := table.Flush()
	if err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}

	return nil
}
