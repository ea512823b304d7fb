// Package ledger implements the pari-mutuel accounting and lifecycle engine:
// protocol configuration, oracle registry, license gating, market state
// machine, pool bookkeeping and payouts.
//
// Every public operation runs inside a single ports.UnitOfWork scope. All
// checks happen before any write; any error (validation, vault transfer,
// storage) rolls the whole operation back. Mutations are serialized by the
// Ledger itself.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/fortuna/internal/domain"
	"github.com/alejandrodnm/fortuna/internal/ports"
)

// Ledger is the entry point for every public operation.
type Ledger struct {
	uow       ports.UnitOfWork
	clock     ports.Clock
	notifiers []ports.Notifier
	mu        sync.Mutex
	pubMu     sync.Mutex // serializa notifiers sin bloquear el ledger
}

// New creates a ledger. A nil clock uses the system clock.
func New(uow ports.UnitOfWork, clock ports.Clock, notifiers ...ports.Notifier) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ledger{uow: uow, clock: clock, notifiers: notifiers}
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// FixedClock always returns the same instant. Useful for tests and replays.
type FixedClock int64

func (c FixedClock) Now() int64 { return int64(c) }

// txn is the per-operation scope handed to each handler.
type txn struct {
	recs   ports.Records
	vault  ports.Vault
	now    int64
	caller domain.Address
	events []domain.Event
}

func (t *txn) emit(typ domain.EventType, marketID, amount uint64, attrs ...string) {
	ev := domain.Event{
		ID:         uuid.New().String(),
		Type:       typ,
		Actor:      t.caller,
		MarketID:   marketID,
		Amount:     amount,
		OccurredAt: time.Unix(t.now, 0).UTC(),
	}
	if len(attrs) > 0 {
		ev.Attrs = make(map[string]string, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			ev.Attrs[attrs[i]] = attrs[i+1]
		}
	}
	t.events = append(t.events, ev)
}

// protocol loads the singleton config, mapping a missing row to
// ErrProtocolNotInitialized.
func (t *txn) protocol(ctx context.Context) (domain.ProtocolConfig, error) {
	p, err := t.recs.Protocol(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return p, domain.ErrProtocolNotInitialized
	}
	return p, err
}

// requireAuthority loads the protocol config and checks the caller.
func (t *txn) requireAuthority(ctx context.Context) (domain.ProtocolConfig, error) {
	p, err := t.protocol(ctx)
	if err != nil {
		return p, err
	}
	if !p.IsAuthority(t.caller) {
		return p, domain.ErrUnauthorized
	}
	return p, nil
}

// exec runs fn atomically on behalf of caller and publishes the collected
// events after a successful commit. Publishing happens outside the ledger
// lock, so a slow notifier never stalls other operations.
func (l *Ledger) exec(ctx context.Context, op string, caller domain.Address, fn func(ctx context.Context, t *txn) error) error {
	if err := caller.Validate(); err != nil {
		return fmt.Errorf("ledger.%s: caller: %w", op, err)
	}

	events, err := l.commit(ctx, caller, fn)
	if err != nil {
		slog.Debug("ledger: operation rejected", "op", op, "caller", caller, "err", err)
		return fmt.Errorf("ledger.%s: %w", op, err)
	}

	l.publish(ctx, events)
	return nil
}

// commit holds the ledger lock for the unit of work only.
func (l *Ledger) commit(ctx context.Context, caller domain.Address, fn func(ctx context.Context, t *txn) error) ([]domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := &txn{now: l.clock.Now(), caller: caller}
	err := l.uow.Atomically(ctx, func(ctx context.Context, recs ports.Records, vault ports.Vault) error {
		t.recs, t.vault = recs, vault
		t.events = t.events[:0]
		return fn(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t.events, nil
}

// view runs a read-only fn. Reads take the same lock so they never observe a
// half-applied operation of this process.
func (l *Ledger) view(ctx context.Context, op string, fn func(ctx context.Context, t *txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := &txn{now: l.clock.Now()}
	err := l.uow.Atomically(ctx, func(ctx context.Context, recs ports.Records, vault ports.Vault) error {
		t.recs, t.vault = recs, vault
		return fn(ctx, t)
	})
	if err != nil {
		return fmt.Errorf("ledger.%s: %w", op, err)
	}
	return nil
}

func (l *Ledger) publish(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	for _, ev := range events {
		slog.Info("ledger: "+string(ev.Type),
			"market", ev.MarketID,
			"actor", ev.Actor,
			"amount", ev.Amount,
		)
	}
	for _, n := range l.notifiers {
		if err := n.Notify(ctx, events); err != nil {
			slog.Warn("ledger: notifier failed", "err", err, "events", len(events))
		}
	}
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }
