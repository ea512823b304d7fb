// Package monitor audita periódicamente los mercados del ledger: saldos
// reales de los pools contra la contabilidad, mercados pendientes de
// resolver y cobertura de pagos pendientes.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/fortuna/internal/domain"
	"github.com/alejandrodnm/fortuna/internal/ports"
)

// Source es el lado de lectura del ledger que necesita el monitor.
type Source interface {
	ListMarkets(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error)
	ListBets(ctx context.Context, marketID uint64) ([]domain.Bet, error)
	Balance(ctx context.Context, acct domain.Account) (uint64, error)
}

// Reporter recibe los hallazgos de cada ciclo.
type Reporter interface {
	ReportFindings(ctx context.Context, findings []domain.Finding) error
}

// Store persiste el historial de hallazgos. Puede ser nil.
type Store interface {
	SaveAudit(ctx context.Context, findings []domain.Finding) error
}

// Config contiene la configuración del monitor.
type Config struct {
	Interval time.Duration
	Workers  int // goroutines para auditar en paralelo (0 = NumCPU*2)
	Once     bool
}

// Monitor es el loop de auditoría.
type Monitor struct {
	cfg      Config
	src      Source
	clock    ports.Clock
	store    Store
	reporter Reporter
	previous map[findingKey]bool // hallazgos del ciclo anterior para alertas
}

type findingKey struct {
	market uint64
	kind   domain.FindingKind
}

// New crea un Monitor con todas las dependencias inyectadas.
func New(cfg Config, src Source, clock ports.Clock, store Store, reporter Reporter) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Monitor{
		cfg:      cfg,
		src:      src,
		clock:    clock,
		store:    store,
		reporter: reporter,
		previous: make(map[findingKey]bool),
	}
}

// Run ejecuta el loop hasta que el contexto se cancele.
// Si cfg.Once está activo, solo ejecuta un ciclo.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("monitor starting",
		"interval", m.cfg.Interval,
		"once", m.cfg.Once,
		"workers", m.cfg.Workers,
	)

	if err := m.runCycle(ctx); err != nil {
		slog.Error("audit cycle failed", "err", err)
		if m.cfg.Once {
			return err
		}
	}

	if m.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor stopped")
			return nil
		case <-ticker.C:
			if err := m.runCycle(ctx); err != nil {
				slog.Error("audit cycle failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta exactamente un ciclo y devuelve los hallazgos.
func (m *Monitor) RunOnce(ctx context.Context) ([]domain.Finding, error) {
	return m.cycle(ctx)
}

func (m *Monitor) runCycle(ctx context.Context) error {
	start := time.Now()

	findings, err := m.cycle(ctx)
	if err != nil {
		return err
	}

	m.emitAlerts(findings)

	if m.reporter != nil {
		if err := m.reporter.ReportFindings(ctx, findings); err != nil {
			slog.Warn("reporter error", "err", err)
		}
	}

	if m.store != nil {
		if err := m.store.SaveAudit(ctx, findings); err != nil {
			slog.Warn("storage error", "err", err)
		}
	}

	critical, reminders := countFindings(findings)
	slog.Info("audit cycle complete",
		"findings", len(findings),
		"critical", critical,
		"reminders", reminders,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// cycle hace fetch → audit concurrente → rank.
func (m *Monitor) cycle(ctx context.Context) ([]domain.Finding, error) {
	markets, err := m.src.ListMarkets(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("monitor.cycle: list markets: %w", err)
	}
	findings := auditMarketsConcurrent(ctx, m.src, markets, m.clock.Now(), m.cfg.Workers)
	return rankFindings(findings), nil
}

// emitAlerts loguea solo los hallazgos nuevos respecto del ciclo anterior.
// Las inconsistencias contables van a ERROR.
func (m *Monitor) emitAlerts(findings []domain.Finding) {
	current := make(map[findingKey]bool, len(findings))
	for _, f := range findings {
		key := findingKey{market: f.MarketID, kind: f.Kind}
		current[key] = true
		if m.previous[key] {
			continue // ya conocido
		}

		attrs := []any{
			"market", f.MarketID,
			"title", f.Title,
			"kind", f.Kind,
			"detail", f.Detail,
		}
		if f.Kind.Critical() {
			attrs = append(attrs, "expected", f.Expected, "actual", f.Actual)
			slog.Error("*** LEDGER INCONSISTENCY ***", attrs...)
		} else {
			slog.Warn("market needs attention", attrs...)
		}
	}
	m.previous = current
}

// rankFindings ordena: críticos primero, luego por mercado.
func rankFindings(findings []domain.Finding) []domain.Finding {
	sort.Slice(findings, func(i, j int) bool {
		ci, cj := findings[i].Kind.Critical(), findings[j].Kind.Critical()
		if ci != cj {
			return ci
		}
		if findings[i].MarketID != findings[j].MarketID {
			return findings[i].MarketID < findings[j].MarketID
		}
		return findings[i].Kind < findings[j].Kind
	})
	return findings
}

func countFindings(findings []domain.Finding) (critical, reminders int) {
	for _, f := range findings {
		if f.Kind.Critical() {
			critical++
		} else {
			reminders++
		}
	}
	return
}
