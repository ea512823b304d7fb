package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/fortuna/internal/application/ledger"
	"github.com/alejandrodnm/fortuna/internal/domain"
)

const (
	sportsOracle   domain.Address = "oracle-sports"
	politicsOracle domain.Address = "oracle-politics"
)

func (h *harness) registerOracles() {
	h.t.Helper()
	require.NoError(h.t, h.l.RegisterOracle(h.ctx, admin, ledger.OracleRegistration{
		ID:         7,
		Authority:  sportsOracle,
		Name:       "Sports feed",
		Categories: domain.CategorySetOf(domain.CategorySports),
		DataSource: "https://feeds.example/sports",
	}))
	require.NoError(h.t, h.l.RegisterOracle(h.ctx, admin, ledger.OracleRegistration{
		ID:         8,
		Authority:  politicsOracle,
		Name:       "Politics feed",
		Categories: domain.CategorySetOf(domain.CategoryPolitics),
	}))
}

func TestLedger_RegisterOracle(t *testing.T) {
	h := newHarness(t).ready()

	reg := ledger.OracleRegistration{ID: 7, Authority: sportsOracle, Name: "Sports feed"}
	assert.ErrorIs(t, h.l.RegisterOracle(h.ctx, bob, reg), domain.ErrUnauthorized)

	long := reg
	long.Name = string(make([]byte, domain.MaxOracleNameLen+1))
	assert.ErrorIs(t, h.l.RegisterOracle(h.ctx, admin, long), domain.ErrOracleNameTooLong)

	h.registerOracles()
	assert.ErrorIs(t, h.l.RegisterOracle(h.ctx, admin, reg), domain.ErrAlreadyExists)

	o, err := h.l.Oracle(h.ctx, 7)
	require.NoError(t, err)
	assert.True(t, o.IsActive)
	assert.Equal(t, sportsOracle, o.Authority)
	assert.Equal(t, int64(1_000), o.RegisteredAt)
	assert.True(t, o.CanResolveCategory(domain.CategorySports))
	assert.False(t, o.CanResolveCategory(domain.CategoryPolitics))

	p, err := h.l.Protocol(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), p.TotalOracles)

	// update y toggles de categoría: solo la authority del protocolo
	name := "Sports feed v2"
	assert.ErrorIs(t, h.l.UpdateOracle(h.ctx, bob, 7, domain.OracleUpdate{Name: &name}), domain.ErrUnauthorized)
	require.NoError(t, h.l.UpdateOracle(h.ctx, admin, 7, domain.OracleUpdate{Name: &name}))

	assert.ErrorIs(t, h.l.SetOracleCategory(h.ctx, bob, 7, domain.CategoryCrypto, true), domain.ErrUnauthorized)
	require.NoError(t, h.l.SetOracleCategory(h.ctx, admin, 7, domain.CategoryCrypto, true))

	o, err = h.l.Oracle(h.ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, name, o.Name)
	assert.True(t, o.CanResolveCategory(domain.CategoryCrypto))
	assert.True(t, o.CanResolveCategory(domain.CategorySports))

	_, err = h.l.Oracle(h.ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedger_AssignOracle(t *testing.T) {
	h := newHarness(t).ready()
	h.registerOracles()
	h.market(1)

	assert.ErrorIs(t, h.l.AssignOracle(h.ctx, bob, 1, 7), domain.ErrUnauthorized)
	assert.ErrorIs(t, h.l.AssignOracle(h.ctx, alice, 1, 8), domain.ErrOracleNotAuthorizedForCategory)
	assert.ErrorIs(t, h.l.AssignOracle(h.ctx, alice, 1, 99), domain.ErrNotFound)

	inactive := false
	require.NoError(t, h.l.UpdateOracle(h.ctx, admin, 7, domain.OracleUpdate{IsActive: &inactive}))
	assert.ErrorIs(t, h.l.AssignOracle(h.ctx, alice, 1, 7), domain.ErrOracleNotActive)
	active := true
	require.NoError(t, h.l.UpdateOracle(h.ctx, admin, 7, domain.OracleUpdate{IsActive: &active}))

	require.NoError(t, h.l.AssignOracle(h.ctx, alice, 1, 7))
	assert.ErrorIs(t, h.l.AssignOracle(h.ctx, alice, 1, 7), domain.ErrMarketAlreadyHasOracle)

	m, err := h.l.Market(h.ctx, 1)
	require.NoError(t, err)
	require.True(t, m.HasOracle())
	assert.Equal(t, uint32(7), *m.Oracle)
}

func TestLedger_AssignOracleNeedsLicenseFeature(t *testing.T) {
	h := newHarness(t).ready()
	h.registerOracles()
	require.NoError(t, h.l.SetRequireLicense(h.ctx, admin, true))

	// Basic no trae can_use_oracles
	key := h.issue(1, nil)
	_, err := h.l.CreateMarket(h.ctx, alice, h.params(1), ledger.LicenseUse{Key: &key})
	require.NoError(t, err)
	assert.ErrorIs(t, h.l.AssignOracle(h.ctx, alice, 1, 7), domain.ErrFeatureNotEnabled)

	features := domain.LicenseFeatures{CanCreateMarkets: true, CanUseOracles: true}
	require.NoError(t, h.l.UpdateLicense(h.ctx, admin, key, ledger.LicenseUpdate{Features: &features}))
	require.NoError(t, h.l.AssignOracle(h.ctx, alice, 1, 7))
}

func TestLedger_OracleResolveMarket(t *testing.T) {
	h := newHarness(t).ready()
	h.registerOracles()
	h.market(1)
	h.market(2)
	require.NoError(t, h.l.AssignOracle(h.ctx, alice, 1, 7))
	h.bet(bob, 1, 0)
	h.bet(carol, 1, 1)

	assert.ErrorIs(t, h.l.OracleResolveMarket(h.ctx, sportsOracle, 1, 7, 0), domain.ErrCannotResolveBeforeBettingClose)

	h.clock.now.Store(2_001)
	assert.ErrorIs(t, h.l.OracleResolveMarket(h.ctx, sportsOracle, 2, 7, 0), domain.ErrMarketHasNoOracle)
	assert.ErrorIs(t, h.l.OracleResolveMarket(h.ctx, bob, 1, 7, 0), domain.ErrUnauthorized)
	assert.ErrorIs(t, h.l.OracleResolveMarket(h.ctx, politicsOracle, 1, 8, 0), domain.ErrOracleMismatch)
	assert.ErrorIs(t, h.l.OracleResolveMarket(h.ctx, sportsOracle, 1, 7, 9), domain.ErrInvalidOutcome)

	inactive := false
	require.NoError(t, h.l.UpdateOracle(h.ctx, admin, 7, domain.OracleUpdate{IsActive: &inactive}))
	assert.ErrorIs(t, h.l.OracleResolveMarket(h.ctx, sportsOracle, 1, 7, 0), domain.ErrOracleNotActive)
	active := true
	require.NoError(t, h.l.UpdateOracle(h.ctx, admin, 7, domain.OracleUpdate{IsActive: &active}))

	// la categoría se vuelve a comprobar al resolver
	require.NoError(t, h.l.SetOracleCategory(h.ctx, admin, 7, domain.CategorySports, false))
	assert.ErrorIs(t, h.l.OracleResolveMarket(h.ctx, sportsOracle, 1, 7, 0), domain.ErrOracleNotAuthorizedForCategory)
	require.NoError(t, h.l.SetOracleCategory(h.ctx, admin, 7, domain.CategorySports, true))

	require.NoError(t, h.l.OracleResolveMarket(h.ctx, sportsOracle, 1, 7, 0))
	assert.ErrorIs(t, h.l.OracleResolveMarket(h.ctx, sportsOracle, 1, 7, 0), domain.ErrMarketNotOpen)

	o, err := h.l.Oracle(h.ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), o.MarketsResolved)
	assert.Equal(t, int64(2_001), o.LastResolutionAt)

	m, err := h.l.Market(h.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketResolved, m.Status)
	assert.True(t, m.ResolvedByOracle)
	assert.Equal(t, int64(2_001), m.ResolvedAt)
	assert.Zero(t, h.balance(domain.BonusVault(1)))

	// 18.8M de pool + 1M de bonus para el único ganador
	paid, err := h.l.ClaimWinnings(h.ctx, bob, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(19_800_000), paid)

	_, err = h.l.ClaimWinnings(h.ctx, carol, 1)
	assert.ErrorIs(t, err, domain.ErrLostBet)
}
