package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// OracleRegistration holds the fields of register_oracle.
type OracleRegistration struct {
	ID         uint32             `json:"oracle_id"`
	Authority  domain.Address     `json:"authority"`
	Name       string             `json:"name"`
	Categories domain.CategorySet `json:"categories"`
	DataSource string             `json:"data_source"`
}

// RegisterOracle creates an active oracle record. Protocol authority only.
func (l *Ledger) RegisterOracle(ctx context.Context, caller domain.Address, reg OracleRegistration) error {
	return l.exec(ctx, "RegisterOracle", caller, func(ctx context.Context, t *txn) error {
		p, err := t.requireAuthority(ctx)
		if err != nil {
			return err
		}
		if err := domain.ValidateOracleName(reg.Name); err != nil {
			return err
		}
		if err := domain.ValidateDataSource(reg.DataSource); err != nil {
			return err
		}
		if err := reg.Authority.Validate(); err != nil {
			return err
		}
		if p.TotalOracles == ^uint32(0) {
			return domain.ErrOverflow
		}

		o := domain.Oracle{
			ID:           reg.ID,
			Authority:    reg.Authority,
			Name:         reg.Name,
			Categories:   reg.Categories,
			DataSource:   reg.DataSource,
			IsActive:     true,
			RegisteredAt: t.now,
		}
		if err := t.recs.InsertOracle(ctx, o); err != nil {
			return err
		}
		p.TotalOracles++
		if err := t.recs.SaveProtocol(ctx, p); err != nil {
			return err
		}
		t.emit(domain.EventOracleRegistered, 0, 0,
			"oracle_id", strconv.FormatUint(uint64(o.ID), 10),
			"name", o.Name,
		)
		return nil
	})
}

// UpdateOracle applies a partial update. Protocol authority only.
func (l *Ledger) UpdateOracle(ctx context.Context, caller domain.Address, id uint32, upd domain.OracleUpdate) error {
	return l.exec(ctx, "UpdateOracle", caller, func(ctx context.Context, t *txn) error {
		if _, err := t.requireAuthority(ctx); err != nil {
			return err
		}
		o, err := t.recs.Oracle(ctx, id)
		if err != nil {
			return err
		}
		next, err := upd.Apply(o)
		if err != nil {
			return err
		}
		if err := t.recs.SaveOracle(ctx, next); err != nil {
			return err
		}
		t.emit(domain.EventOracleUpdated, 0, 0,
			"oracle_id", strconv.FormatUint(uint64(id), 10),
			"name", next.Name,
			"is_active", strconv.FormatBool(next.IsActive),
		)
		return nil
	})
}

// SetOracleCategory enables or disables a single category slot.
// Protocol authority only.
func (l *Ledger) SetOracleCategory(ctx context.Context, caller domain.Address, id uint32, cat domain.MarketCategory, enabled bool) error {
	return l.exec(ctx, "SetOracleCategory", caller, func(ctx context.Context, t *txn) error {
		if _, err := t.requireAuthority(ctx); err != nil {
			return err
		}
		if !cat.Valid() {
			return domain.ErrInvalidCategory
		}
		o, err := t.recs.Oracle(ctx, id)
		if err != nil {
			return err
		}
		if enabled {
			o.EnableCategory(cat)
		} else {
			o.DisableCategory(cat)
		}
		if err := t.recs.SaveOracle(ctx, o); err != nil {
			return err
		}
		t.emit(domain.EventOracleUpdated, 0, 0,
			"oracle_id", strconv.FormatUint(uint64(id), 10),
			"category", cat.String(),
			"enabled", strconv.FormatBool(enabled),
		)
		return nil
	})
}

// AssignOracle binds an oracle to a market. One-shot: the market creator
// may do it once while the market is open.
func (l *Ledger) AssignOracle(ctx context.Context, caller domain.Address, marketID uint64, oracleID uint32) error {
	return l.exec(ctx, "AssignOracle", caller, func(ctx context.Context, t *txn) error {
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
		if m.HasOracle() {
			return domain.ErrMarketAlreadyHasOracle
		}
		o, err := t.recs.Oracle(ctx, oracleID)
		if err != nil {
			return err
		}
		if !o.IsActive {
			return domain.ErrOracleNotActive
		}
		if !o.CanResolveCategory(m.Category) {
			return domain.ErrOracleNotAuthorizedForCategory
		}
		if m.License != nil {
			lic, err := t.recs.License(ctx, *m.License)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if err != nil || !lic.Features.CanUseOracles {
				return domain.ErrFeatureNotEnabled
			}
		}

		m.Oracle = &oracleID
		if err := t.recs.SaveMarket(ctx, m); err != nil {
			return err
		}
		t.emit(domain.EventOracleAssigned, m.ID, 0,
			"oracle_id", strconv.FormatUint(uint64(oracleID), 10),
			"oracle", o.Name,
		)
		return nil
	})
}

// Oracle returns an oracle by id.
func (l *Ledger) Oracle(ctx context.Context, id uint32) (domain.Oracle, error) {
	var o domain.Oracle
	err := l.view(ctx, "Oracle", func(ctx context.Context, t *txn) error {
		var err error
		o, err = t.recs.Oracle(ctx, id)
		return err
	})
	return o, err
}
