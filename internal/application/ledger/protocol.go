package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// InitializeProtocol creates the singleton configuration. The caller becomes
// the protocol authority. License gating starts disabled.
func (l *Ledger) InitializeProtocol(ctx context.Context, caller, treasury domain.Address, fees domain.FeeRates) error {
	return l.exec(ctx, "InitializeProtocol", caller, func(ctx context.Context, t *txn) error {
		if err := fees.Validate(); err != nil {
			return err
		}
		if err := treasury.Validate(); err != nil {
			return err
		}
		_, err := t.recs.Protocol(ctx)
		switch {
		case err == nil:
			return domain.ErrProtocolAlreadyExists
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		p := domain.ProtocolConfig{
			Authority: caller,
			Treasury:  treasury,
			Fees:      fees,
		}
		if err := t.recs.SaveProtocol(ctx, p); err != nil {
			return err
		}
		t.emit(domain.EventProtocolInitialized, 0, 0,
			"pool_fee_bps", strconv.Itoa(int(fees.PoolBPS)),
			"creator_fee_bps", strconv.Itoa(int(fees.CreatorBPS)),
			"protocol_fee_bps", strconv.Itoa(int(fees.ProtocolBPS)),
		)
		return nil
	})
}

// UpdateProtocol replaces the treasury and/or any fee. The fee ceiling is
// checked on the merged result before anything is written.
func (l *Ledger) UpdateProtocol(ctx context.Context, caller domain.Address, upd domain.ProtocolUpdate) error {
	return l.exec(ctx, "UpdateProtocol", caller, func(ctx context.Context, t *txn) error {
		p, err := t.requireAuthority(ctx)
		if err != nil {
			return err
		}
		next, err := upd.Apply(p)
		if err != nil {
			return err
		}
		if err := t.recs.SaveProtocol(ctx, next); err != nil {
			return err
		}
		t.emit(domain.EventProtocolUpdated, 0, 0,
			"treasury", string(next.Treasury),
			"pool_fee_bps", strconv.Itoa(int(next.Fees.PoolBPS)),
			"creator_fee_bps", strconv.Itoa(int(next.Fees.CreatorBPS)),
			"protocol_fee_bps", strconv.Itoa(int(next.Fees.ProtocolBPS)),
		)
		return nil
	})
}

// SetRequireLicense toggles license gating for create_market.
func (l *Ledger) SetRequireLicense(ctx context.Context, caller domain.Address, require bool) error {
	return l.exec(ctx, "SetRequireLicense", caller, func(ctx context.Context, t *txn) error {
		p, err := t.requireAuthority(ctx)
		if err != nil {
			return err
		}
		p.RequireLicense = require
		if err := t.recs.SaveProtocol(ctx, p); err != nil {
			return err
		}
		t.emit(domain.EventLicenseRequirement, 0, 0, "require_license", strconv.FormatBool(require))
		return nil
	})
}

// Protocol returns the current configuration.
func (l *Ledger) Protocol(ctx context.Context) (domain.ProtocolConfig, error) {
	var p domain.ProtocolConfig
	err := l.view(ctx, "Protocol", func(ctx context.Context, t *txn) error {
		var err error
		p, err = t.protocol(ctx)
		return err
	})
	return p, err
}
