package monitor

// concurrent.go: worker pool para auditar mercados en paralelo.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// auditMarketsConcurrent audita todos los mercados usando un worker pool.
// Un mercado cuya lectura falla se loguea y se omite del ciclo.
//
// Si workers <= 0 usa runtime.NumCPU() × 2.
func auditMarketsConcurrent(
	ctx context.Context,
	src Source,
	markets []domain.Market,
	now int64,
	workers int,
) []domain.Finding {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	workCh := make(chan domain.Market, len(markets))
	resultCh := make(chan []domain.Finding, len(markets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range workCh {
				findings, err := auditMarket(ctx, src, m, now)
				if err != nil {
					slog.Warn("audit failed", "market", m.ID, "err", err)
					continue
				}
				resultCh <- findings
			}
		}()
	}

	for _, m := range markets {
		workCh <- m
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var out []domain.Finding
	for f := range resultCh {
		out = append(out, f...)
	}

	slog.Debug("concurrent audit complete",
		"markets", len(markets),
		"findings", len(out),
		"workers", workers,
	)
	return out
}

func auditMarket(ctx context.Context, src Source, m domain.Market, now int64) ([]domain.Finding, error) {
	// Las apuestas solo importan para lo pendiente de pago.
	var bets []domain.Bet
	if m.Status != domain.MarketOpen {
		var err error
		if bets, err = src.ListBets(ctx, m.ID); err != nil {
			return nil, err
		}
	}
	vault, err := src.Balance(ctx, domain.MarketVault(m.ID))
	if err != nil {
		return nil, err
	}
	bonus, err := src.Balance(ctx, domain.BonusVault(m.ID))
	if err != nil {
		return nil, err
	}
	return domain.AuditMarket(m, bets, vault, bonus, now), nil
}
