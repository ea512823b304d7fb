package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/fortuna/internal/adapters/httpapi"
	"github.com/alejandrodnm/fortuna/internal/adapters/storage"
	"github.com/alejandrodnm/fortuna/internal/application/ledger"
	"github.com/alejandrodnm/fortuna/internal/domain"
)

type clock struct{ now atomic.Int64 }

func (c *clock) Now() int64 { return c.now.Load() }

type fixture struct {
	t     *testing.T
	srv   *httptest.Server
	clock *clock
}

func newFixture(t *testing.T, opts httpapi.Options) *fixture {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := &clock{}
	c.now.Store(1_000)
	l := ledger.New(db, c)
	srv := httptest.NewServer(httpapi.NewServer(l, db, opts).Handler())
	t.Cleanup(srv.Close)
	return &fixture{t: t, srv: srv, clock: c}
}

func (f *fixture) do(method, path, who string, body any) (int, map[string]any) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(f.t, err)
	req.Header.Set("Content-Type", "application/json")
	if who != "" {
		req.Header.Set(httpapi.CallerHeader, who)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (f *fixture) bootstrap() {
	f.t.Helper()
	status, _ := f.do("POST", "/api/protocol/initialize", "admin", map[string]any{
		"treasury": "treasury",
		"fees":     domain.DefaultFeeRates(),
	})
	require.Equal(f.t, http.StatusOK, status)

	for _, who := range []string{"alice", "bob", "carol"} {
		status, _ = f.do("POST", "/api/faucet", "", map[string]any{"account": who, "amount": 100_000_000})
		require.Equal(f.t, http.StatusOK, status)
	}

	status, body := f.do("POST", "/api/markets", "alice", map[string]any{
		"market_id":           1,
		"category":            1,
		"title":               "Final",
		"description":         "Who wins",
		"bet_amount":          10_000_000,
		"betting_deadline":    2_000,
		"resolution_deadline": 3_000,
		"outcomes":            []string{"Home", "Away"},
	})
	require.Equal(f.t, http.StatusCreated, status, body)
}

func TestServer_FullLifecycle(t *testing.T) {
	f := newFixture(t, httpapi.Options{Faucet: true, RatePerSec: 1000, Burst: 1000})
	f.bootstrap()

	status, _ := f.do("POST", "/api/markets/1/bets", "alice", map[string]any{"outcome_index": 0})
	require.Equal(t, http.StatusCreated, status)
	status, _ = f.do("POST", "/api/markets/1/bets", "bob", map[string]any{"outcome_index": 0})
	require.Equal(t, http.StatusCreated, status)
	status, _ = f.do("POST", "/api/markets/1/bets", "carol", map[string]any{"outcome_index": 1})
	require.Equal(t, http.StatusCreated, status)

	status, body := f.do("POST", "/api/markets/1/resolve", "alice", map[string]any{"winning_outcome": 0})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "cannot_resolve_before_betting_deadline", body["code"])

	f.clock.now.Store(2_001)
	status, body = f.do("POST", "/api/markets/1/resolve", "alice", map[string]any{"winning_outcome": 0})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "RESOLVED", body["status"])

	status, body = f.do("GET", "/api/markets/1/bets/bob/payout", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 14_850_000, body["payout"])

	status, body = f.do("POST", "/api/markets/1/claim", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 14_850_000, body["amount"])

	status, body = f.do("POST", "/api/markets/1/claim", "bob", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_claimed", body["code"])

	status, body = f.do("POST", "/api/markets/1/claim", "carol", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "lost_bet", body["code"])

	status, body = f.do("GET", "/api/balance?account=bob", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 100_000_000-10_000_000+14_850_000, body["balance"])

	status, body = f.do("GET", "/api/transfers?account=bob", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["transfers"], 6) // fund + 4 legs de fees + claim
}

func TestServer_ErrorMapping(t *testing.T) {
	f := newFixture(t, httpapi.Options{Faucet: true, RatePerSec: 1000, Burst: 1000})
	f.bootstrap()

	status, _ := f.do("POST", "/api/markets/1/bets", "", map[string]any{"outcome_index": 0})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := f.do("POST", "/api/markets/1/bets", "alice", map[string]any{"outcome_index": 5})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["kind"])

	status, _ = f.do("GET", "/api/markets/99", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do("POST", "/api/markets/1/cancel", "bob", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = f.do("POST", "/api/markets/1/bets", "dave", map[string]any{"outcome_index": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "insufficient_funds", body["code"])

	status, _ = f.do("POST", "/api/markets/1/bets", "alice", map[string]any{"bogus": true})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.do("GET", "/api/licenses/not-hex", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_LicenseRoutes(t *testing.T) {
	f := newFixture(t, httpapi.Options{Faucet: true, RatePerSec: 1000, Burst: 1000})
	f.bootstrap()
	key := domain.LicenseKey{9, 9, 9}

	status, body := f.do("POST", "/api/licenses", "admin", map[string]any{
		"license_key":     key.String(),
		"holder":          "bob",
		"license_type":    0,
		"is_transferable": true,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.EqualValues(t, 5, body["max_markets"])

	status, body = f.do("POST", "/api/licenses/"+key.String()+"/wallets", "bob", map[string]any{"wallet": "carol"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"carol"}, body["allowed_wallets"])

	status, _ = f.do("POST", "/api/licenses/"+key.String()+"/revoke", "bob", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = f.do("POST", "/api/licenses/"+key.String()+"/transfer", "bob", map[string]any{"new_holder": "carol"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "carol", body["holder"])
	assert.Empty(t, body["allowed_wallets"])

	status, body = f.do("PUT", "/api/protocol/require-license", "admin", map[string]any{"require_license": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["require_license"])

	status, body = f.do("POST", "/api/markets", "alice", map[string]any{
		"market_id":           2,
		"category":            0,
		"title":               "Vote",
		"bet_amount":          1,
		"betting_deadline":    2_000,
		"resolution_deadline": 3_000,
		"outcomes":            []string{"Yes", "No"},
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "license_required", body["code"])
}

func TestServer_FaucetDisabled(t *testing.T) {
	f := newFixture(t, httpapi.Options{RatePerSec: 1000, Burst: 1000})

	status, _ := f.do("POST", "/api/faucet", "", map[string]any{"account": "bob", "amount": 1})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_RateLimitPerCaller(t *testing.T) {
	f := newFixture(t, httpapi.Options{RatePerSec: 0.001, Burst: 2})

	for i := 0; i < 2; i++ {
		status, _ := f.do("GET", "/api/health", "alice", nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, _ := f.do("GET", "/api/health", "alice", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)

	// otro caller tiene su propio bucket
	status, _ = f.do("GET", "/api/health", "bob", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, httpapi.StatusFor(domain.KindValidation))
	assert.Equal(t, http.StatusForbidden, httpapi.StatusFor(domain.KindAuthorization))
	assert.Equal(t, http.StatusConflict, httpapi.StatusFor(domain.KindTemporal))
	assert.Equal(t, http.StatusConflict, httpapi.StatusFor(domain.KindEntitlement))
	assert.Equal(t, http.StatusUnprocessableEntity, httpapi.StatusFor(domain.KindResource))
	assert.Equal(t, http.StatusInternalServerError, httpapi.StatusFor(domain.KindUnknown))
}
