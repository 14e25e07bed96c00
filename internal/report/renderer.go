package report

import (
	"bytes"
	"fmt"
	"text/tabwriter"
	"time"
)

const defaultTitle = "Top Products"

// TextRenderer lays the products out as an aligned plain-text table.
type TextRenderer struct{}

func (TextRenderer) Render(title string, products []ProductSale, generatedAt time.Time) ([]byte, error) {
	if title == "" {
		title = defaultTitle
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\nGenerated %s\n\n", title, generatedAt.UTC().Format(time.RFC3339))

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Rank\tProduct ID\tName\tTotal Sold\t")
	for i, p := range products {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t\n", i+1, p.ProductID, p.Name, p.TotalSold)
	}
	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName names a report generated at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("TopProducts_%s.txt", t.UTC().Format("20060102_150405"))
}
