package extract

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const promptPreamble = "Please extract the payment terms and values from the following content, providing only original term description and the values. nothing else:\n"

// Chunk splits values into consecutive slices of at most size elements.
func Chunk(values []string, size int) [][]string {
	if size <= 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// RenderTable lays the chunk out as a borderless single-column text table
// headed by the column name, values right aligned.
func RenderTable(column string, chunk []string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleDefault)
	tw.Style().Options = table.OptionsNoBordersAndSeparators
	tw.Style().Format.Header = text.FormatDefault

	tw.AppendHeader(table.Row{column})
	for _, v := range chunk {
		tw.AppendRow(table.Row{v})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{{
		Number:      1,
		Align:       text.AlignRight,
		AlignHeader: text.AlignRight,
	}})
	return tw.Render()
}

// RenderPrompt builds the message sent to the agent for one chunk.
func RenderPrompt(column string, chunk []string) string {
	return promptPreamble + RenderTable(column, chunk)
}
