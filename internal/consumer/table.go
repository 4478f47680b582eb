package consumer

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kjannette/swap-price-monitor/internal/pipeline"
	"github.com/kjannette/swap-price-monitor/internal/pricing"
)

// TableRenderer prints the latest point of each exchange as a terminal table.
type TableRenderer struct {
	out  io.Writer
	pair pricing.Pair
}

func NewTableRenderer(out io.Writer, pair pricing.Pair) *TableRenderer {
	return &TableRenderer{out: out, pair: pair}
}

func (r *TableRenderer) Consume(_ context.Context, c pipeline.Cycle) {
	if c.Failed() {
		fmt.Fprintf(r.out, "Error updating data: %v\n", c.Err)
		return
	}
	if len(c.Series) == 0 {
		fmt.Fprintf(r.out, "No price data (%s, %d records fetched)\n", c.Status, c.Fetched)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(ChartTitle)
	t.AppendHeader(table.Row{"Exchange", "Points", "Last Swap (UTC)", fmt.Sprintf("Price (%s)", r.pair)})

	for _, ex := range c.Series.Exchanges() {
		pts := c.Series.ForExchange(ex)
		last := pts[len(pts)-1]
		t.AppendRow(table.Row{
			ex,
			len(pts),
			last.TimestampUTC.Format("2006-01-02 15:04:05"),
			last.Exact.StringFixed(8),
		})
	}
	t.AppendFooter(table.Row{"", "", "Last updated", c.StartedAt.Local().Format("15:04:05")})
	t.Render()
}
