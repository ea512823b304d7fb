package notify

import (
	"context"
	"fmt"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// ReportFindings imprime el resultado de un ciclo de auditoría.
func (c *Console) ReportFindings(_ context.Context, findings []domain.Finding) error {
	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║                      LEDGER AUDIT                            ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════╝\n\n")

	if len(findings) == 0 {
		fmt.Fprintln(c.out, "  all markets consistent")
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("", "Market", "Title", "Finding", "Expected", "Actual", "Detail")
	for _, f := range findings {
		level := "WARN"
		expected, actual := "-", "-"
		if f.Kind.Critical() {
			level = "CRIT"
			expected = domain.FormatAmount(f.Expected, c.decimals)
			actual = domain.FormatAmount(f.Actual, c.decimals)
		}
		table.Append(
			level,
			fmt.Sprintf("%d", f.MarketID),
			truncate(f.Title, 30),
			string(f.Kind),
			expected,
			actual,
			truncate(f.Detail, 50),
		)
	}
	table.Render()
	return nil
}
