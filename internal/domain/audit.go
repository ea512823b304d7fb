package domain

import "fmt"

// FindingKind clasifica un hallazgo del monitor.
type FindingKind string

const (
	FindingAwaitingResolution FindingKind = "awaiting_resolution" // apuestas cerradas, falta resolver
	FindingOverdue            FindingKind = "overdue_resolution"  // pasó el resolution deadline
	FindingPoolMismatch       FindingKind = "pool_mismatch"       // total_pool != Σ outcomes
	FindingVaultMismatch      FindingKind = "vault_mismatch"      // saldo del vault != total_pool
	FindingBonusMismatch      FindingKind = "bonus_mismatch"      // saldo del bonus vault != bonus_pool
	FindingVaultShortfall     FindingKind = "vault_shortfall"     // el vault no cubre lo pendiente de pago
)

// Critical indica si el hallazgo es una inconsistencia contable (no solo
// un recordatorio operativo).
func (k FindingKind) Critical() bool {
	switch k {
	case FindingAwaitingResolution, FindingOverdue:
		return false
	default:
		return true
	}
}

// Finding es un hallazgo del monitor sobre un mercado.
type Finding struct {
	MarketID uint64      `json:"market_id"`
	Title    string      `json:"title"`
	Kind     FindingKind `json:"kind"`
	Expected uint64      `json:"expected"`
	Actual   uint64      `json:"actual"`
	Detail   string      `json:"detail"`
}

// AuditMarket contrasta un mercado con sus apuestas y los saldos reales de
// sus dos pools. Es pura: el caller trae los datos.
//
//	Open:      vault == total_pool, bonus == bonus_pool
//	Resolved:  bonus == 0 (sweep), vault >= Σ payouts pendientes
//	Cancelled: bonus == bonus_pool, vault >= Σ pool_amount pendientes
func AuditMarket(m Market, bets []Bet, vault, bonus uint64, now int64) []Finding {
	var out []Finding
	add := func(kind FindingKind, expected, actual uint64, detail string) {
		out = append(out, Finding{
			MarketID: m.ID,
			Title:    m.Title,
			Kind:     kind,
			Expected: expected,
			Actual:   actual,
			Detail:   detail,
		})
	}

	if !m.PoolConsistent() {
		var sum uint64
		for _, o := range m.Outcomes {
			sum += o.TotalAmount
		}
		add(FindingPoolMismatch, m.TotalPool, sum, "outcome totals do not add up to total_pool")
	}

	switch m.Status {
	case MarketOpen:
		if vault != m.TotalPool {
			add(FindingVaultMismatch, m.TotalPool, vault, "market vault differs from total_pool")
		}
		if bonus != m.BonusPool {
			add(FindingBonusMismatch, m.BonusPool, bonus, "bonus vault differs from bonus_pool")
		}
		switch {
		case m.IsPastResolutionDeadline(now):
			add(FindingOverdue, 0, 0, fmt.Sprintf("resolution deadline %d passed", m.ResolutionDeadline))
		case m.IsBettingClosed(now):
			add(FindingAwaitingResolution, 0, 0, fmt.Sprintf("betting closed at %d", m.BettingDeadline))
		}

	case MarketResolved:
		if bonus != 0 {
			add(FindingBonusMismatch, 0, bonus, "bonus vault not swept at resolution")
		}
		var owed uint64
		for _, b := range bets {
			if b.Claimed {
				continue
			}
			p, err := m.CalculatePayout(b)
			if err != nil {
				add(FindingVaultShortfall, 0, vault, "payout overflow for "+string(b.Bettor))
				continue
			}
			owed += p
		}
		if vault < owed {
			add(FindingVaultShortfall, owed, vault, "market vault cannot cover unclaimed winnings")
		}

	case MarketCancelled:
		if bonus != m.BonusPool {
			add(FindingBonusMismatch, m.BonusPool, bonus, "bonus vault differs from bonus_pool")
		}
		var owed uint64
		for _, b := range bets {
			if !b.Claimed {
				owed += b.PoolAmount
			}
		}
		if vault < owed {
			add(FindingVaultShortfall, owed, vault, "market vault cannot cover unclaimed refunds")
		}
	}
	return out
}
