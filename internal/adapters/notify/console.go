package notify

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out      io.Writer
	table    bool
	decimals int32
}

// NewConsole crea un notificador que escribe a stdout. decimals son los
// decimales del token de liquidación, solo para mostrar montos.
func NewConsole(table bool, decimals int32) *Console {
	return &Console{out: os.Stdout, table: table, decimals: decimals}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table, decimals: 6}
}

// Notify imprime los eventos confirmados de una operación.
func (c *Console) Notify(_ context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	if c.table {
		c.printEventTable(events)
		return nil
	}
	for _, ev := range events {
		c.printCompact(ev)
	}
	return nil
}

// printCompact imprime un evento por línea.
func (c *Console) printCompact(ev domain.Event) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %-22s", ev.OccurredAt.Format("15:04:05"), ev.Type)
	if ev.MarketID != 0 {
		fmt.Fprintf(&sb, " market=%d", ev.MarketID)
	}
	fmt.Fprintf(&sb, " by=%s", ev.Actor)
	if ev.Amount != 0 {
		fmt.Fprintf(&sb, " amount=%s", domain.FormatAmount(ev.Amount, c.decimals))
	}
	if attrs := formatAttrs(ev.Attrs); attrs != "" {
		sb.WriteString(" ")
		sb.WriteString(attrs)
	}
	fmt.Fprintln(c.out, sb.String())
}

func (c *Console) printEventTable(events []domain.Event) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Event", "Market", "Actor", "Amount", "Details")
	for _, ev := range events {
		market := "-"
		if ev.MarketID != 0 {
			market = fmt.Sprintf("%d", ev.MarketID)
		}
		table.Append(
			ev.OccurredAt.Format("15:04:05"),
			string(ev.Type),
			market,
			string(ev.Actor),
			domain.FormatAmount(ev.Amount, c.decimals),
			truncate(formatAttrs(ev.Attrs), 60),
		)
	}
	table.Render()
}

// PrintMarket imprime el estado de un mercado: pool por outcome y, si está
// resuelto, el payout de cada apuesta.
func (c *Console) PrintMarket(m domain.Market, bets []domain.Bet) {
	fmt.Fprintf(c.out, "\n=== MARKET #%d — %s ===\n", m.ID, truncate(m.Title, 60))
	fmt.Fprintf(c.out, "  Category: %s | Status: %s | Stake: %s\n",
		m.Category, m.Status, domain.FormatAmount(m.BetAmount, c.decimals))
	fmt.Fprintf(c.out, "  Pool: %s + bonus %s | Bettors: %d\n",
		domain.FormatAmount(m.TotalPool, c.decimals),
		domain.FormatAmount(m.BonusPool, c.decimals),
		m.TotalBettors())
	if m.HasOracle() {
		fmt.Fprintf(c.out, "  Oracle: #%d\n", *m.Oracle)
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Outcome", "Pool", "Share", "Bettors", "")
	for i, o := range m.Outcomes {
		mark := ""
		if m.Status == domain.MarketResolved && uint8(i) == m.WinningOutcome {
			mark = "WINNER"
		}
		table.Append(
			fmt.Sprintf("%d", i),
			truncate(o.Label, 30),
			domain.FormatAmount(o.TotalAmount, c.decimals),
			share(o.TotalAmount, m.TotalPool),
			fmt.Sprintf("%d", o.BettorCount),
			mark,
		)
	}
	table.Render()

	if len(bets) == 0 {
		fmt.Fprintln(c.out, "  (no bets)")
		return
	}

	table = tablewriter.NewWriter(c.out)
	table.Header("Bettor", "Outcome", "Stake", "Net", "Payout", "Claimed")
	for _, b := range bets {
		payout := "-"
		if m.Status == domain.MarketResolved {
			if p, err := m.CalculatePayout(b); err == nil {
				payout = domain.FormatAmount(p, c.decimals)
			} else {
				payout = "overflow"
			}
		} else if m.Status == domain.MarketCancelled {
			payout = domain.FormatAmount(b.PoolAmount, c.decimals) + " (refund)"
		}
		label := fmt.Sprintf("%d", b.OutcomeIndex)
		if m.ValidOutcome(b.OutcomeIndex) {
			label = truncate(m.Outcomes[b.OutcomeIndex].Label, 20)
		}
		table.Append(
			compactName(string(b.Bettor), 20),
			label,
			domain.FormatAmount(b.OriginalAmount, c.decimals),
			domain.FormatAmount(b.PoolAmount, c.decimals),
			payout,
			yesNo(b.Claimed),
		)
	}
	table.Render()
}

// --- helpers ---

func formatAttrs(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attrs))
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, " ")
}

func share(part, total uint64) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)*100/float64(total))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// compactName acorta identidades largas dejando inicio y final visibles.
func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	keep := (maxLen - 3) / 2
	return s[:keep] + "..." + s[len(s)-keep:]
}
