package ledger

import (
	"context"
	"slices"
	"strconv"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// LicenseIssue holds the fields of issue_license. MaxMarkets 0 takes the
// tier ceiling; ExpiresAt 0 never expires.
type LicenseIssue struct {
	Key            domain.LicenseKey `json:"license_key"`
	Holder         domain.Address    `json:"holder"`
	TypeCode       uint8             `json:"license_type"`
	AllowedDomains []string          `json:"allowed_domains"`
	AllowedWallets []domain.Address  `json:"allowed_wallets"`
	MaxMarkets     uint32            `json:"max_markets"`
	IsTransferable bool              `json:"is_transferable"`
	ExpiresAt      int64             `json:"expires_at"`
}

// LicenseUpdate carries the optional fields of update_license.
type LicenseUpdate struct {
	MaxMarkets *uint32                 `json:"max_markets,omitempty"`
	ExpiresAt  *int64                  `json:"expires_at,omitempty"`
	Features   *domain.LicenseFeatures `json:"features,omitempty"`
}

// IssueLicense creates an active license. Protocol authority only.
func (l *Ledger) IssueLicense(ctx context.Context, caller domain.Address, iss LicenseIssue) (domain.License, error) {
	var issued domain.License
	err := l.exec(ctx, "IssueLicense", caller, func(ctx context.Context, t *txn) error {
		p, err := t.requireAuthority(ctx)
		if err != nil {
			return err
		}
		lt, err := domain.LicenseTypeFromCode(iss.TypeCode)
		if err != nil {
			return err
		}
		if err := domain.ValidateDomains(iss.AllowedDomains); err != nil {
			return err
		}
		if err := domain.ValidateWallets(iss.AllowedWallets); err != nil {
			return err
		}
		if err := iss.Holder.Validate(); err != nil {
			return err
		}
		if iss.Key.IsZero() {
			return domain.ErrInvalidLicenseKey
		}
		if p.TotalLicenses == ^uint32(0) {
			return domain.ErrOverflow
		}

		maxMarkets := iss.MaxMarkets
		if maxMarkets == 0 {
			maxMarkets = lt.MaxMarkets()
		}
		lic := domain.License{
			Key:            iss.Key,
			Holder:         iss.Holder,
			Type:           lt,
			Features:       lt.DefaultFeatures(),
			AllowedDomains: slices.Clone(iss.AllowedDomains),
			AllowedWallets: slices.Clone(iss.AllowedWallets),
			MaxMarkets:     maxMarkets,
			IsActive:       true,
			IsTransferable: iss.IsTransferable,
			IssuedAt:       t.now,
			ExpiresAt:      iss.ExpiresAt,
			IssuedBy:       caller,
		}
		if err := t.recs.InsertLicense(ctx, lic); err != nil {
			return err
		}
		p.TotalLicenses++
		if err := t.recs.SaveProtocol(ctx, p); err != nil {
			return err
		}

		t.emit(domain.EventLicenseIssued, 0, 0,
			"license", lic.Key.String(),
			"holder", string(lic.Holder),
			"type", lt.String(),
		)
		issued = lic
		return nil
	})
	return issued, err
}

// RevokeLicense deactivates a license. Protocol authority only.
func (l *Ledger) RevokeLicense(ctx context.Context, caller domain.Address, key domain.LicenseKey) error {
	return l.setLicenseActive(ctx, "RevokeLicense", caller, key, false)
}

// ActivateLicense reactivates a revoked license. Protocol authority only.
func (l *Ledger) ActivateLicense(ctx context.Context, caller domain.Address, key domain.LicenseKey) error {
	return l.setLicenseActive(ctx, "ActivateLicense", caller, key, true)
}

func (l *Ledger) setLicenseActive(ctx context.Context, op string, caller domain.Address, key domain.LicenseKey, active bool) error {
	return l.exec(ctx, op, caller, func(ctx context.Context, t *txn) error {
		if _, err := t.requireAuthority(ctx); err != nil {
			return err
		}
		lic, err := t.recs.License(ctx, key)
		if err != nil {
			return err
		}
		lic.IsActive = active
		if err := t.recs.SaveLicense(ctx, lic); err != nil {
			return err
		}
		typ := domain.EventLicenseRevoked
		if active {
			typ = domain.EventLicenseActivated
		}
		t.emit(typ, 0, 0, "license", key.String(), "holder", string(lic.Holder))
		return nil
	})
}

// TransferLicense hands a transferable license to a new holder. Delegated
// wallets are cleared; domains are kept.
func (l *Ledger) TransferLicense(ctx context.Context, caller domain.Address, key domain.LicenseKey, newHolder domain.Address) error {
	return l.exec(ctx, "TransferLicense", caller, func(ctx context.Context, t *txn) error {
		if err := newHolder.Validate(); err != nil {
			return err
		}
		lic, err := t.recs.License(ctx, key)
		if err != nil {
			return err
		}
		if lic.Holder != caller {
			return domain.ErrUnauthorized
		}
		if !lic.IsTransferable {
			return domain.ErrLicenseNotTransferable
		}
		old := lic.Holder
		lic.Holder = newHolder
		lic.AllowedWallets = nil
		if err := t.recs.SaveLicense(ctx, lic); err != nil {
			return err
		}
		t.emit(domain.EventLicenseTransferred, 0, 0,
			"license", key.String(),
			"from", string(old),
			"to", string(newHolder),
		)
		return nil
	})
}

// UpdateLicense overrides quota, expiry or features. Protocol authority only.
// Lowering MaxMarkets below MarketsCreated is rejected.
func (l *Ledger) UpdateLicense(ctx context.Context, caller domain.Address, key domain.LicenseKey, upd LicenseUpdate) error {
	return l.exec(ctx, "UpdateLicense", caller, func(ctx context.Context, t *txn) error {
		if _, err := t.requireAuthority(ctx); err != nil {
			return err
		}
		lic, err := t.recs.License(ctx, key)
		if err != nil {
			return err
		}
		if upd.MaxMarkets != nil {
			if *upd.MaxMarkets < lic.MarketsCreated {
				return domain.ErrLicenseMarketLimitReached
			}
			lic.MaxMarkets = *upd.MaxMarkets
		}
		if upd.ExpiresAt != nil {
			lic.ExpiresAt = *upd.ExpiresAt
		}
		if upd.Features != nil {
			lic.Features = *upd.Features
		}
		if err := t.recs.SaveLicense(ctx, lic); err != nil {
			return err
		}
		t.emit(domain.EventLicenseUpdated, 0, 0,
			"license", key.String(),
			"max_markets", strconv.FormatUint(uint64(lic.MaxMarkets), 10),
			"expires_at", strconv.FormatInt(lic.ExpiresAt, 10),
		)
		return nil
	})
}

// AddAuthorizedWallet delegates market creation to wallet. Holder only.
func (l *Ledger) AddAuthorizedWallet(ctx context.Context, caller domain.Address, key domain.LicenseKey, wallet domain.Address) error {
	return l.editLicense(ctx, "AddAuthorizedWallet", caller, key, func(lic *domain.License) error {
		if err := wallet.Validate(); err != nil {
			return err
		}
		if slices.Contains(lic.AllowedWallets, wallet) {
			return nil
		}
		if len(lic.AllowedWallets) >= domain.MaxLicenseWallets {
			return domain.ErrTooManyWallets
		}
		lic.AllowedWallets = append(lic.AllowedWallets, wallet)
		return nil
	})
}

// RemoveAuthorizedWallet drops a delegated wallet. Holder only.
func (l *Ledger) RemoveAuthorizedWallet(ctx context.Context, caller domain.Address, key domain.LicenseKey, wallet domain.Address) error {
	return l.editLicense(ctx, "RemoveAuthorizedWallet", caller, key, func(lic *domain.License) error {
		lic.AllowedWallets = slices.DeleteFunc(lic.AllowedWallets, func(w domain.Address) bool { return w == wallet })
		return nil
	})
}

// AddAuthorizedDomain allows an additional origin domain. Holder only.
func (l *Ledger) AddAuthorizedDomain(ctx context.Context, caller domain.Address, key domain.LicenseKey, origin string) error {
	return l.editLicense(ctx, "AddAuthorizedDomain", caller, key, func(lic *domain.License) error {
		if len(origin) > domain.MaxDomainLen {
			return domain.ErrDomainTooLong
		}
		if slices.Contains(lic.AllowedDomains, origin) {
			return nil
		}
		if len(lic.AllowedDomains) >= domain.MaxLicenseDomains {
			return domain.ErrTooManyDomains
		}
		lic.AllowedDomains = append(lic.AllowedDomains, origin)
		return nil
	})
}

// RemoveAuthorizedDomain drops an origin domain. Holder only.
func (l *Ledger) RemoveAuthorizedDomain(ctx context.Context, caller domain.Address, key domain.LicenseKey, origin string) error {
	return l.editLicense(ctx, "RemoveAuthorizedDomain", caller, key, func(lic *domain.License) error {
		lic.AllowedDomains = slices.DeleteFunc(lic.AllowedDomains, func(d string) bool { return d == origin })
		return nil
	})
}

// editLicense loads a license, checks the caller is its holder and saves
// the result of edit.
func (l *Ledger) editLicense(ctx context.Context, op string, caller domain.Address, key domain.LicenseKey, edit func(*domain.License) error) error {
	return l.exec(ctx, op, caller, func(ctx context.Context, t *txn) error {
		lic, err := t.recs.License(ctx, key)
		if err != nil {
			return err
		}
		if lic.Holder != caller {
			return domain.ErrUnauthorized
		}
		if err := edit(&lic); err != nil {
			return err
		}
		if err := t.recs.SaveLicense(ctx, lic); err != nil {
			return err
		}
		t.emit(domain.EventLicenseUpdated, 0, 0,
			"license", key.String(),
			"op", op,
			"wallets", strconv.Itoa(len(lic.AllowedWallets)),
			"domains", strconv.Itoa(len(lic.AllowedDomains)),
		)
		return nil
	})
}

// License returns a license by key.
func (l *Ledger) License(ctx context.Context, key domain.LicenseKey) (domain.License, error) {
	var lic domain.License
	err := l.view(ctx, "License", func(ctx context.Context, t *txn) error {
		var err error
		lic, err = t.recs.License(ctx, key)
		return err
	})
	return lic, err
}
