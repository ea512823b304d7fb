package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/fortuna/internal/application/ledger"
	"github.com/alejandrodnm/fortuna/internal/domain"
)

// issue emite una licencia Basic para alice con cuota 2. mutate ajusta la
// emisión antes de enviarla.
func (h *harness) issue(k byte, mutate func(*ledger.LicenseIssue)) domain.LicenseKey {
	h.t.Helper()
	iss := ledger.LicenseIssue{
		Key:        domain.LicenseKey{k},
		Holder:     alice,
		TypeCode:   uint8(domain.LicenseBasic),
		MaxMarkets: 2,
	}
	if mutate != nil {
		mutate(&iss)
	}
	_, err := h.l.IssueLicense(h.ctx, admin, iss)
	require.NoError(h.t, err)
	return iss.Key
}

func (h *harness) license(key domain.LicenseKey) domain.License {
	h.t.Helper()
	lic, err := h.l.License(h.ctx, key)
	require.NoError(h.t, err)
	return lic
}

func licensed(h *harness) *harness {
	require.NoError(h.t, h.l.SetRequireLicense(h.ctx, admin, true))
	return h
}

func TestLedger_CreateMarketLicenseGate(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(h *harness) ledger.LicenseUse
		caller domain.Address
		want   error
	}{
		{
			name:   "no key",
			setup:  func(h *harness) ledger.LicenseUse { return ledger.LicenseUse{} },
			caller: alice,
			want:   domain.ErrLicenseRequired,
		},
		{
			name: "unknown key",
			setup: func(h *harness) ledger.LicenseUse {
				key := domain.LicenseKey{99}
				return ledger.LicenseUse{Key: &key}
			},
			caller: alice,
			want:   domain.ErrLicenseRequired,
		},
		{
			name: "revoked",
			setup: func(h *harness) ledger.LicenseUse {
				key := h.issue(1, nil)
				require.NoError(h.t, h.l.RevokeLicense(h.ctx, admin, key))
				return ledger.LicenseUse{Key: &key}
			},
			caller: alice,
			want:   domain.ErrLicenseNotActive,
		},
		{
			name: "expired",
			setup: func(h *harness) ledger.LicenseUse {
				key := h.issue(1, func(iss *ledger.LicenseIssue) { iss.ExpiresAt = 999 })
				return ledger.LicenseUse{Key: &key}
			},
			caller: alice,
			want:   domain.ErrLicenseExpired,
		},
		{
			name: "revoked and expired reports inactive",
			setup: func(h *harness) ledger.LicenseUse {
				key := h.issue(1, func(iss *ledger.LicenseIssue) { iss.ExpiresAt = 999 })
				require.NoError(h.t, h.l.RevokeLicense(h.ctx, admin, key))
				return ledger.LicenseUse{Key: &key}
			},
			caller: alice,
			want:   domain.ErrLicenseNotActive,
		},
		{
			name: "wallet not delegated",
			setup: func(h *harness) ledger.LicenseUse {
				key := h.issue(1, nil)
				return ledger.LicenseUse{Key: &key}
			},
			caller: bob,
			want:   domain.ErrWalletNotAuthorized,
		},
		{
			name: "domain not listed",
			setup: func(h *harness) ledger.LicenseUse {
				key := h.issue(1, func(iss *ledger.LicenseIssue) { iss.AllowedDomains = []string{"fortuna.io"} })
				return ledger.LicenseUse{Key: &key, Domain: "evil.io"}
			},
			caller: alice,
			want:   domain.ErrDomainNotAuthorized,
		},
		{
			name: "create feature off",
			setup: func(h *harness) ledger.LicenseUse {
				key := h.issue(1, nil)
				off := domain.LicenseFeatures{}
				require.NoError(h.t, h.l.UpdateLicense(h.ctx, admin, key, ledger.LicenseUpdate{Features: &off}))
				return ledger.LicenseUse{Key: &key}
			},
			caller: alice,
			want:   domain.ErrFeatureNotEnabled,
		},
		{
			name: "delegated wallet",
			setup: func(h *harness) ledger.LicenseUse {
				key := h.issue(1, func(iss *ledger.LicenseIssue) { iss.AllowedWallets = []domain.Address{bob} })
				return ledger.LicenseUse{Key: &key}
			},
			caller: bob,
		},
		{
			name: "listed domain",
			setup: func(h *harness) ledger.LicenseUse {
				key := h.issue(1, func(iss *ledger.LicenseIssue) { iss.AllowedDomains = []string{"fortuna.io"} })
				return ledger.LicenseUse{Key: &key, Domain: "fortuna.io"}
			},
			caller: alice,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := licensed(newHarness(t).ready())
			use := tc.setup(h)

			m, err := h.l.CreateMarket(h.ctx, tc.caller, h.params(1), use)
			if tc.want != nil {
				assert.ErrorIs(t, err, tc.want)
				_, err = h.l.Market(h.ctx, 1)
				assert.ErrorIs(t, err, domain.ErrNotFound)
				if use.Key != nil && *use.Key != (domain.LicenseKey{99}) {
					assert.Zero(t, h.license(*use.Key).MarketsCreated)
				}
				return
			}
			require.NoError(t, err)
			require.NotNil(t, m.License)
			assert.Equal(t, *use.Key, *m.License)
			assert.Equal(t, tc.caller, m.Creator)
			assert.Equal(t, uint32(1), h.license(*use.Key).MarketsCreated)
		})
	}
}

func TestLedger_LicenseQuota(t *testing.T) {
	h := licensed(newHarness(t).ready())
	key := h.issue(1, nil)
	use := ledger.LicenseUse{Key: &key}

	// un mercado inválido no consume cuota
	bad := h.params(1)
	bad.Outcomes = []string{"Only"}
	_, err := h.l.CreateMarket(h.ctx, alice, bad, use)
	require.ErrorIs(t, err, domain.ErrTooFewOutcomes)
	assert.Zero(t, h.license(key).MarketsCreated)

	_, err = h.l.CreateMarket(h.ctx, alice, h.params(1), use)
	require.NoError(t, err)
	lic := h.license(key)
	assert.Equal(t, uint32(1), lic.MarketsCreated)
	assert.Equal(t, int64(1_000), lic.LastUsedAt)

	h.clock.now.Store(1_100)
	_, err = h.l.CreateMarket(h.ctx, alice, h.params(2), use)
	require.NoError(t, err)
	lic = h.license(key)
	assert.Equal(t, uint32(2), lic.MarketsCreated)
	assert.Equal(t, int64(1_100), lic.LastUsedAt)

	_, err = h.l.CreateMarket(h.ctx, alice, h.params(3), use)
	assert.ErrorIs(t, err, domain.ErrLicenseMarketLimitReached)
	assert.Equal(t, uint32(2), h.license(key).MarketsCreated)

	p, err := h.l.Protocol(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.TotalMarkets)

	// no se puede bajar la cuota por debajo de lo ya creado
	one, three := uint32(1), uint32(3)
	assert.ErrorIs(t, h.l.UpdateLicense(h.ctx, bob, key, ledger.LicenseUpdate{MaxMarkets: &three}), domain.ErrUnauthorized)
	assert.ErrorIs(t, h.l.UpdateLicense(h.ctx, admin, key, ledger.LicenseUpdate{MaxMarkets: &one}), domain.ErrLicenseMarketLimitReached)
	assert.Equal(t, uint32(2), h.license(key).MaxMarkets)

	require.NoError(t, h.l.UpdateLicense(h.ctx, admin, key, ledger.LicenseUpdate{MaxMarkets: &three}))
	_, err = h.l.CreateMarket(h.ctx, alice, h.params(3), use)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h.license(key).MarketsCreated)
}

func TestLedger_LicenseExpiryUpdate(t *testing.T) {
	h := licensed(newHarness(t).ready())
	key := h.issue(1, func(iss *ledger.LicenseIssue) { iss.MaxMarkets = 5 })
	use := ledger.LicenseUse{Key: &key}

	h.clock.now.Store(1_100)
	expires := int64(1_050)
	require.NoError(t, h.l.UpdateLicense(h.ctx, admin, key, ledger.LicenseUpdate{ExpiresAt: &expires}))
	_, err := h.l.CreateMarket(h.ctx, alice, h.params(1), use)
	assert.ErrorIs(t, err, domain.ErrLicenseExpired)

	never := int64(0)
	require.NoError(t, h.l.UpdateLicense(h.ctx, admin, key, ledger.LicenseUpdate{ExpiresAt: &never}))
	_, err = h.l.CreateMarket(h.ctx, alice, h.params(1), use)
	require.NoError(t, err)
}

func TestLedger_RevokeAndActivate(t *testing.T) {
	h := licensed(newHarness(t).ready())
	key := h.issue(1, nil)
	use := ledger.LicenseUse{Key: &key}

	assert.ErrorIs(t, h.l.RevokeLicense(h.ctx, alice, key), domain.ErrUnauthorized)
	require.NoError(t, h.l.RevokeLicense(h.ctx, admin, key))
	assert.False(t, h.license(key).IsActive)

	_, err := h.l.CreateMarket(h.ctx, alice, h.params(1), use)
	assert.ErrorIs(t, err, domain.ErrLicenseNotActive)

	assert.ErrorIs(t, h.l.ActivateLicense(h.ctx, alice, key), domain.ErrUnauthorized)
	require.NoError(t, h.l.ActivateLicense(h.ctx, admin, key))
	assert.True(t, h.license(key).IsActive)

	_, err = h.l.CreateMarket(h.ctx, alice, h.params(1), use)
	require.NoError(t, err)

	assert.ErrorIs(t, h.l.ActivateLicense(h.ctx, admin, domain.LicenseKey{42}), domain.ErrNotFound)
}

func TestLedger_LicenseWalletsAndDomains(t *testing.T) {
	h := licensed(newHarness(t).ready())
	key := h.issue(1, func(iss *ledger.LicenseIssue) { iss.MaxMarkets = 5 })
	use := ledger.LicenseUse{Key: &key}

	assert.ErrorIs(t, h.l.AddAuthorizedWallet(h.ctx, carol, key, bob), domain.ErrUnauthorized)
	require.NoError(t, h.l.AddAuthorizedWallet(h.ctx, alice, key, bob))
	require.NoError(t, h.l.AddAuthorizedWallet(h.ctx, alice, key, bob)) // repetido: no-op
	assert.Equal(t, []domain.Address{bob}, h.license(key).AllowedWallets)

	_, err := h.l.CreateMarket(h.ctx, bob, h.params(1), use)
	require.NoError(t, err)

	assert.ErrorIs(t, h.l.RemoveAuthorizedWallet(h.ctx, bob, key, bob), domain.ErrUnauthorized)
	require.NoError(t, h.l.RemoveAuthorizedWallet(h.ctx, alice, key, bob))
	assert.Empty(t, h.license(key).AllowedWallets)

	_, err = h.l.CreateMarket(h.ctx, bob, h.params(2), use)
	assert.ErrorIs(t, err, domain.ErrWalletNotAuthorized)

	// con dominios listados el origen tiene que coincidir
	require.NoError(t, h.l.AddAuthorizedDomain(h.ctx, alice, key, "fortuna.io"))
	_, err = h.l.CreateMarket(h.ctx, alice, h.params(2), ledger.LicenseUse{Key: &key, Domain: "other.io"})
	assert.ErrorIs(t, err, domain.ErrDomainNotAuthorized)
	_, err = h.l.CreateMarket(h.ctx, alice, h.params(2), ledger.LicenseUse{Key: &key, Domain: "fortuna.io"})
	require.NoError(t, err)

	assert.ErrorIs(t, h.l.RemoveAuthorizedDomain(h.ctx, carol, key, "fortuna.io"), domain.ErrUnauthorized)
	require.NoError(t, h.l.RemoveAuthorizedDomain(h.ctx, alice, key, "fortuna.io"))
	assert.Empty(t, h.license(key).AllowedDomains)

	// lista vacía: cualquier origen
	_, err = h.l.CreateMarket(h.ctx, alice, h.params(3), ledger.LicenseUse{Key: &key, Domain: "other.io"})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h.license(key).MarketsCreated)
}
