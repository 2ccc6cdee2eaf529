package main

import (
	"fmt"

	"github.com/ericksa/ptextract/internal/extract"
	"github.com/ericksa/ptextract/internal/history"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const timeLayout = "2006-01-02 15:04:05"

// renderTable draws rows under header with light box borders. Headers keep
// their case. rightAligned holds 1-based column numbers.
func renderTable(header table.Row, rows []table.Row, rightAligned ...int) string {
	if len(header) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(header)
	tw.AppendRows(rows)

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func runsTable(runs []history.Run) string {
	rows := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		chunks := fmt.Sprintf("%d/%d", r.ChunksDone, r.Chunks)
		if r.Aborted {
			chunks += " (aborted)"
		}
		rows = append(rows, table.Row{
			r.StartedAt.Local().Format(timeLayout), r.ID, r.FileName, r.Column, r.Status, chunks, r.Terms,
		})
	}
	return renderTable(table.Row{"Started", "Run", "File", "Column", "Status", "Chunks", "Terms"}, rows, 6, 7)
}

func termsTable(terms []extract.Term) string {
	rows := make([]table.Row, 0, len(terms))
	for _, t := range terms {
		rows = append(rows, table.Row{t.Description, t.Term.String(), t.Cliff.String()})
	}
	return renderTable(table.Row{"Payment Term Description", "Payment Term", "Cliff"}, rows, 2, 3)
}
