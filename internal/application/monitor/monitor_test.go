package monitor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/fortuna/internal/application/ledger"
	"github.com/alejandrodnm/fortuna/internal/application/monitor"
	"github.com/alejandrodnm/fortuna/internal/domain"
)

type fakeSource struct {
	markets  []domain.Market
	bets     map[uint64][]domain.Bet
	balances map[domain.Account]uint64
	failOn   uint64
}

func (f *fakeSource) ListMarkets(_ context.Context, _ domain.MarketStatus) ([]domain.Market, error) {
	return f.markets, nil
}

func (f *fakeSource) ListBets(_ context.Context, id uint64) ([]domain.Bet, error) {
	if id == f.failOn {
		return nil, errors.New("boom")
	}
	return f.bets[id], nil
}

func (f *fakeSource) Balance(_ context.Context, acct domain.Account) (uint64, error) {
	return f.balances[acct], nil
}

type captureReporter struct{ got [][]domain.Finding }

func (c *captureReporter) ReportFindings(_ context.Context, findings []domain.Finding) error {
	c.got = append(c.got, findings)
	return nil
}

func openMarket(id uint64) domain.Market {
	return domain.Market{
		ID:                 id,
		Title:              "Final",
		Status:             domain.MarketOpen,
		BettingDeadline:    100,
		ResolutionDeadline: 200,
		TotalPool:          18,
		BonusPool:          2,
		Outcomes:           []domain.Outcome{{Label: "A", TotalAmount: 9, BettorCount: 1}, {Label: "B", TotalAmount: 9, BettorCount: 1}},
	}
}

func kinds(findings []domain.Finding) []domain.FindingKind {
	out := make([]domain.FindingKind, len(findings))
	for i, f := range findings {
		out[i] = f.Kind
	}
	return out
}

func TestMonitor_HealthyOpenMarket(t *testing.T) {
	src := &fakeSource{
		markets:  []domain.Market{openMarket(1)},
		balances: map[domain.Account]uint64{domain.MarketVault(1): 18, domain.BonusVault(1): 2},
	}
	m := monitor.New(monitor.Config{Workers: 2}, src, ledger.FixedClock(50), nil, nil)

	findings, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestMonitor_DeadlineReminders(t *testing.T) {
	src := &fakeSource{
		markets: []domain.Market{openMarket(1)},
		balances: map[domain.Account]uint64{
			domain.MarketVault(1): 18, domain.BonusVault(1): 2,
		},
	}

	findings, err := monitor.New(monitor.Config{}, src, ledger.FixedClock(150), nil, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.FindingKind{domain.FindingAwaitingResolution}, kinds(findings))

	findings, err = monitor.New(monitor.Config{}, src, ledger.FixedClock(201), nil, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.FindingKind{domain.FindingOverdue}, kinds(findings))
}

func TestMonitor_CriticalFirst(t *testing.T) {
	resolved := openMarket(2)
	resolved.Status = domain.MarketResolved
	resolved.WinningOutcome = 0

	src := &fakeSource{
		markets: []domain.Market{openMarket(1), resolved},
		bets: map[uint64][]domain.Bet{
			2: {{MarketID: 2, Bettor: "alice", OutcomeIndex: 0, PoolAmount: 9}},
		},
		balances: map[domain.Account]uint64{
			domain.MarketVault(1): 18, domain.BonusVault(1): 2,
			domain.MarketVault(2): 5, // debe 9*20/9 = 20
		},
	}
	findings, err := monitor.New(monitor.Config{Workers: 1}, src, ledger.FixedClock(150), nil, nil).RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, findings, 2)
	assert.Equal(t, domain.FindingVaultShortfall, findings[0].Kind)
	assert.Equal(t, uint64(20), findings[0].Expected)
	assert.Equal(t, uint64(5), findings[0].Actual)
	assert.Equal(t, domain.FindingAwaitingResolution, findings[1].Kind)
}

func TestMonitor_SkipsUnreadableMarket(t *testing.T) {
	cancelled := openMarket(3)
	cancelled.Status = domain.MarketCancelled
	src := &fakeSource{markets: []domain.Market{cancelled}, failOn: 3}

	findings, err := monitor.New(monitor.Config{}, src, ledger.FixedClock(0), nil, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestMonitor_RunOnceReports(t *testing.T) {
	m := openMarket(1)
	src := &fakeSource{
		markets:  []domain.Market{m},
		balances: map[domain.Account]uint64{domain.MarketVault(1): 17, domain.BonusVault(1): 2},
	}
	rep := &captureReporter{}
	mon := monitor.New(monitor.Config{Once: true}, src, ledger.FixedClock(50), nil, rep)

	require.NoError(t, mon.Run(context.Background()))
	require.Len(t, rep.got, 1)
	assert.Equal(t, []domain.FindingKind{domain.FindingVaultMismatch}, kinds(rep.got[0]))
}
