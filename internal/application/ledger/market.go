package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// LicenseUse is the optional license presented with create_market.
type LicenseUse struct {
	Key    *domain.LicenseKey `json:"license_key,omitempty"`
	Domain string             `json:"domain,omitempty"`
}

// CreateMarket opens a new market. When the protocol requires licenses the
// presented license is validated and its quota debited in the same unit of
// work as the market insert.
func (l *Ledger) CreateMarket(ctx context.Context, caller domain.Address, params domain.MarketParams, use LicenseUse) (domain.Market, error) {
	var created domain.Market
	err := l.exec(ctx, "CreateMarket", caller, func(ctx context.Context, t *txn) error {
		p, err := t.protocol(ctx)
		if err != nil {
			return err
		}

		var lic *domain.License
		if p.RequireLicense {
			if use.Key == nil {
				return domain.ErrLicenseRequired
			}
			got, err := t.recs.License(ctx, *use.Key)
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrLicenseRequired
			}
			if err != nil {
				return err
			}
			if err := checkLicenseForCreate(got, caller, use.Domain, t.now); err != nil {
				return err
			}
			lic = &got
		}

		cat, err := params.Validate(t.now)
		if err != nil {
			return err
		}
		m := domain.NewMarket(params, caller, cat, t.now)

		if lic != nil {
			lic.MarketsCreated++
			lic.LastUsedAt = t.now
			key := lic.Key
			m.License = &key
		}
		p.TotalMarkets, err = domain.CheckedAdd(p.TotalMarkets, 1)
		if err != nil {
			return err
		}

		if err := t.recs.InsertMarket(ctx, m); err != nil {
			return err
		}
		if lic != nil {
			if err := t.recs.SaveLicense(ctx, *lic); err != nil {
				return err
			}
		}
		if err := t.recs.SaveProtocol(ctx, p); err != nil {
			return err
		}

		t.emit(domain.EventMarketCreated, m.ID, m.BetAmount,
			"title", m.Title,
			"category", cat.String(),
			"outcomes", strconv.Itoa(len(m.Outcomes)),
		)
		created = m
		return nil
	})
	return created, err
}

// checkLicenseForCreate applies the license gate in a fixed order so the
// reported error names the first unmet requirement.
func checkLicenseForCreate(lic domain.License, creator domain.Address, origin string, now int64) error {
	if !lic.IsActive {
		return domain.ErrLicenseNotActive
	}
	if lic.IsExpired(now) {
		return domain.ErrLicenseExpired
	}
	if !lic.IsWalletAuthorized(creator) {
		return domain.ErrWalletNotAuthorized
	}
	if !lic.IsDomainAllowed(origin) {
		return domain.ErrDomainNotAuthorized
	}
	if !lic.Features.CanCreateMarkets {
		return domain.ErrFeatureNotEnabled
	}
	if !lic.CanCreateMarket() {
		return domain.ErrLicenseMarketLimitReached
	}
	return nil
}

// ResolveMarket settles an open market as its creator.
func (l *Ledger) ResolveMarket(ctx context.Context, caller domain.Address, marketID uint64, winning uint8) error {
	return l.exec(ctx, "ResolveMarket", caller, func(ctx context.Context, t *txn) error {
		m, err := t.recs.Market(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketOpen {
			return domain.ErrMarketNotOpen
		}
		if m.Creator != caller {
			return domain.ErrUnauthorized
		}
		if err := checkResolvable(m, winning, t.now); err != nil {
			return err
		}
		return t.settle(ctx, m, winning, false)
	})
}

// OracleResolveMarket settles an open market as its assigned oracle. The
// caller must be the oracle's registered authority.
func (l *Ledger) OracleResolveMarket(ctx context.Context, caller domain.Address, marketID uint64, oracleID uint32, winning uint8) error {
	return l.exec(ctx, "OracleResolveMarket", caller, func(ctx context.Context, t *txn) error {
		m, err := t.recs.Market(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketOpen {
			return domain.ErrMarketNotOpen
		}
		if !m.HasOracle() {
			return domain.ErrMarketHasNoOracle
		}
		if *m.Oracle != oracleID {
			return domain.ErrOracleMismatch
		}
		o, err := t.recs.Oracle(ctx, oracleID)
		if err != nil {
			return err
		}
		if !o.IsActive {
			return domain.ErrOracleNotActive
		}
		if o.Authority != caller {
			return domain.ErrUnauthorized
		}
		if !o.CanResolveCategory(m.Category) {
			return domain.ErrOracleNotAuthorizedForCategory
		}
		if err := checkResolvable(m, winning, t.now); err != nil {
			return err
		}

		o.MarketsResolved, err = domain.CheckedAdd(o.MarketsResolved, 1)
		if err != nil {
			return err
		}
		o.LastResolutionAt = t.now
		if err := t.recs.SaveOracle(ctx, o); err != nil {
			return err
		}
		return t.settle(ctx, m, winning, true)
	})
}

func checkResolvable(m domain.Market, winning uint8, now int64) error {
	if !m.ValidOutcome(winning) {
		return domain.ErrInvalidOutcome
	}
	if !m.IsBettingClosed(now) {
		return domain.ErrCannotResolveBeforeBettingClose
	}
	return nil
}

// settle marks the market resolved and sweeps the bonus pool into the market
// vault so every payout is drawn from a single pool.
func (t *txn) settle(ctx context.Context, m domain.Market, winning uint8, byOracle bool) error {
	if m.BonusPool > 0 {
		auth := domain.VaultAuthority{MarketID: m.ID}
		if err := t.vault.Withdraw(ctx, domain.BonusVault(m.ID), domain.MarketVault(m.ID), m.BonusPool, auth); err != nil {
			return err
		}
	}

	m.Status = domain.MarketResolved
	m.WinningOutcome = winning
	m.ResolvedAt = t.now
	m.ResolvedByOracle = byOracle
	if err := t.recs.SaveMarket(ctx, m); err != nil {
		return err
	}
	t.emit(domain.EventMarketResolved, m.ID, m.TotalPool,
		"bonus_pool", u64(m.BonusPool),
		"winning_outcome", strconv.Itoa(int(winning)),
		"label", m.Outcomes[winning].Label,
		"by_oracle", strconv.FormatBool(byOracle),
	)
	return nil
}

// CancelMarket moves an open market to Cancelled. The protocol authority may
// cancel any open market; the creator only while no live bet remains.
func (l *Ledger) CancelMarket(ctx context.Context, caller domain.Address, marketID uint64) error {
	return l.exec(ctx, "CancelMarket", caller, func(ctx context.Context, t *txn) error {
		m, err := t.recs.Market(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketOpen {
			return domain.ErrMarketNotOpen
		}

		isAdmin := false
		if p, err := t.protocol(ctx); err == nil {
			isAdmin = p.IsAuthority(caller)
		} else if !errors.Is(err, domain.ErrProtocolNotInitialized) {
			return err
		}
		switch {
		case isAdmin:
		case m.Creator == caller:
			if m.TotalBettors() > 0 {
				return domain.ErrMarketHasBets
			}
		default:
			return domain.ErrUnauthorized
		}

		m.Status = domain.MarketCancelled
		if err := t.recs.SaveMarket(ctx, m); err != nil {
			return err
		}
		t.emit(domain.EventMarketCancelled, m.ID, m.TotalPool, "title", m.Title)
		return nil
	})
}

// Market returns a market by id.
func (l *Ledger) Market(ctx context.Context, id uint64) (domain.Market, error) {
	var m domain.Market
	err := l.view(ctx, "Market", func(ctx context.Context, t *txn) error {
		var err error
		m, err = t.recs.Market(ctx, id)
		return err
	})
	return m, err
}

// ListMarkets returns markets, optionally filtered by status ("" = all).
func (l *Ledger) ListMarkets(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error) {
	var out []domain.Market
	err := l.view(ctx, "ListMarkets", func(ctx context.Context, t *txn) error {
		var err error
		out, err = t.recs.ListMarkets(ctx, status)
		return err
	})
	return out, err
}
