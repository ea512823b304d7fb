package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/alejandrodnm/fortuna/internal/application/ledger"
	"github.com/alejandrodnm/fortuna/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// --- protocol ---

func (s *Server) handleGetProtocol(w http.ResponseWriter, r *http.Request) {
	p, err := s.ledger.Protocol(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type initializeRequest struct {
	Treasury domain.Address  `json:"treasury"`
	Fees     domain.FeeRates `json:"fees"`
}

func (s *Server) handleInitializeProtocol(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req initializeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.InitializeProtocol(r.Context(), who, req.Treasury, req.Fees); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.handleGetProtocol(w, r)
}

func (s *Server) handleUpdateProtocol(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var upd domain.ProtocolUpdate
	if !decode(w, r, &upd) {
		return
	}
	if err := s.ledger.UpdateProtocol(r.Context(), who, upd); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.handleGetProtocol(w, r)
}

func (s *Server) handleSetRequireLicense(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		RequireLicense bool `json:"require_license"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.SetRequireLicense(r.Context(), who, req.RequireLicense); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.handleGetProtocol(w, r)
}

// --- oracles ---

func (s *Server) handleRegisterOracle(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var reg ledger.OracleRegistration
	if !decode(w, r, &reg) {
		return
	}
	if err := s.ledger.RegisterOracle(r.Context(), who, reg); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeOracle(w, r, reg.ID, http.StatusCreated)
}

func (s *Server) handleGetOracle(w http.ResponseWriter, r *http.Request) {
	id, ok := oracleID(w, r)
	if !ok {
		return
	}
	s.writeOracle(w, r, id, http.StatusOK)
}

func (s *Server) handleUpdateOracle(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := oracleID(w, r)
	if !ok {
		return
	}
	var upd domain.OracleUpdate
	if !decode(w, r, &upd) {
		return
	}
	if err := s.ledger.UpdateOracle(r.Context(), who, id, upd); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeOracle(w, r, id, http.StatusOK)
}

func (s *Server) handleSetOracleCategory(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := oracleID(w, r)
	if !ok {
		return
	}
	cat, err := domain.ParseCategory(mux.Vars(r)["category"])
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.SetOracleCategory(r.Context(), who, id, cat, req.Enabled); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeOracle(w, r, id, http.StatusOK)
}

func (s *Server) writeOracle(w http.ResponseWriter, r *http.Request, id uint32, status int) {
	o, err := s.ledger.Oracle(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, status, o)
}

// --- markets ---

type createMarketRequest struct {
	domain.MarketParams
	ledger.LicenseUse
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req createMarketRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.ledger.CreateMarket(r.Context(), who, req.MarketParams, req.LicenseUse)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	status := domain.MarketStatus(r.URL.Query().Get("status"))
	markets, err := s.ledger.ListMarkets(r.Context(), status)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": markets,
		"count":   len(markets),
	})
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	s.writeMarket(w, r, id)
}

func (s *Server) handleAssignOracle(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var req struct {
		OracleID uint32 `json:"oracle_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.AssignOracle(r.Context(), who, id, req.OracleID); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeMarket(w, r, id)
}

type resolveRequest struct {
	OracleID       uint32 `json:"oracle_id,omitempty"`
	WinningOutcome uint8  `json:"winning_outcome"`
}

func (s *Server) handleResolveMarket(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.ResolveMarket(r.Context(), who, id, req.WinningOutcome); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeMarket(w, r, id)
}

func (s *Server) handleOracleResolveMarket(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.ledger.OracleResolveMarket(r.Context(), who, id, req.OracleID, req.WinningOutcome); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeMarket(w, r, id)
}

func (s *Server) handleCancelMarket(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.CancelMarket(r.Context(), who, id); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeMarket(w, r, id)
}

func (s *Server) writeMarket(w http.ResponseWriter, r *http.Request, id uint64) {
	m, err := s.ledger.Market(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// --- bets ---

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var req struct {
		OutcomeIndex uint8 `json:"outcome_index"`
	}
	if !decode(w, r, &req) {
		return
	}
	bet, err := s.ledger.PlaceBet(r.Context(), who, id, req.OutcomeIndex)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

func (s *Server) handleListBets(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	bets, err := s.ledger.ListBets(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bets":  bets,
		"count": len(bets),
	})
}

func (s *Server) handleGetBet(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	bet, err := s.ledger.Bet(r.Context(), id, domain.Address(mux.Vars(r)["bettor"]))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

func (s *Server) handleQuotePayout(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	payout, err := s.ledger.QuotePayout(r.Context(), id, domain.Address(mux.Vars(r)["bettor"]))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"payout": payout})
}

// moneyOp es la forma común de withdraw/claim/refund.
type moneyOp func(l *ledger.Ledger, r *http.Request, who domain.Address, marketID uint64) (uint64, error)

func (s *Server) handleMoney(op moneyOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := marketID(w, r)
		if !ok {
			return
		}
		amount, err := op(s.ledger, r, who, id)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"market_id": id,
			"bettor":    who,
			"amount":    amount,
		})
	}
}

func (s *Server) handleWithdrawBet(w http.ResponseWriter, r *http.Request) {
	s.handleMoney(func(l *ledger.Ledger, r *http.Request, who domain.Address, id uint64) (uint64, error) {
		return l.WithdrawBet(r.Context(), who, id)
	})(w, r)
}

func (s *Server) handleClaimWinnings(w http.ResponseWriter, r *http.Request) {
	s.handleMoney(func(l *ledger.Ledger, r *http.Request, who domain.Address, id uint64) (uint64, error) {
		return l.ClaimWinnings(r.Context(), who, id)
	})(w, r)
}

func (s *Server) handleClaimRefund(w http.ResponseWriter, r *http.Request) {
	s.handleMoney(func(l *ledger.Ledger, r *http.Request, who domain.Address, id uint64) (uint64, error) {
		return l.ClaimRefund(r.Context(), who, id)
	})(w, r)
}

// --- licenses ---

func (s *Server) handleIssueLicense(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var iss ledger.LicenseIssue
	if !decode(w, r, &iss) {
		return
	}
	lic, err := s.ledger.IssueLicense(r.Context(), who, iss)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lic)
}

func (s *Server) handleGetLicense(w http.ResponseWriter, r *http.Request) {
	key, ok := licenseKey(w, r)
	if !ok {
		return
	}
	s.writeLicense(w, r, key)
}

func (s *Server) handleUpdateLicense(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := licenseKey(w, r)
	if !ok {
		return
	}
	var upd ledger.LicenseUpdate
	if !decode(w, r, &upd) {
		return
	}
	if err := s.ledger.UpdateLicense(r.Context(), who, key, upd); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeLicense(w, r, key)
}

func (s *Server) handleRevokeLicense(w http.ResponseWriter, r *http.Request) {
	s.licenseAction(w, r, func(who domain.Address, key domain.LicenseKey) error {
		return s.ledger.RevokeLicense(r.Context(), who, key)
	})
}

func (s *Server) handleActivateLicense(w http.ResponseWriter, r *http.Request) {
	s.licenseAction(w, r, func(who domain.Address, key domain.LicenseKey) error {
		return s.ledger.ActivateLicense(r.Context(), who, key)
	})
}

func (s *Server) handleTransferLicense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewHolder domain.Address `json:"new_holder"`
	}
	s.licenseActionWithBody(w, r, &req, func(who domain.Address, key domain.LicenseKey) error {
		return s.ledger.TransferLicense(r.Context(), who, key, req.NewHolder)
	})
}

func (s *Server) handleAddWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Wallet domain.Address `json:"wallet"`
	}
	s.licenseActionWithBody(w, r, &req, func(who domain.Address, key domain.LicenseKey) error {
		return s.ledger.AddAuthorizedWallet(r.Context(), who, key, req.Wallet)
	})
}

func (s *Server) handleRemoveWallet(w http.ResponseWriter, r *http.Request) {
	wallet := domain.Address(mux.Vars(r)["wallet"])
	s.licenseAction(w, r, func(who domain.Address, key domain.LicenseKey) error {
		return s.ledger.RemoveAuthorizedWallet(r.Context(), who, key, wallet)
	})
}

func (s *Server) handleAddDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
	}
	s.licenseActionWithBody(w, r, &req, func(who domain.Address, key domain.LicenseKey) error {
		return s.ledger.AddAuthorizedDomain(r.Context(), who, key, req.Domain)
	})
}

func (s *Server) handleRemoveDomain(w http.ResponseWriter, r *http.Request) {
	origin := mux.Vars(r)["domain"]
	s.licenseAction(w, r, func(who domain.Address, key domain.LicenseKey) error {
		return s.ledger.RemoveAuthorizedDomain(r.Context(), who, key, origin)
	})
}

func (s *Server) licenseAction(w http.ResponseWriter, r *http.Request, fn func(domain.Address, domain.LicenseKey) error) {
	s.licenseActionWithBody(w, r, nil, fn)
}

// licenseActionWithBody resuelve caller y clave, decodifica body si no es
// nil, ejecuta fn y responde con la licencia actualizada.
func (s *Server) licenseActionWithBody(w http.ResponseWriter, r *http.Request, body any, fn func(domain.Address, domain.LicenseKey) error) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	key, ok := licenseKey(w, r)
	if !ok {
		return
	}
	if body != nil && !decode(w, r, body) {
		return
	}
	if err := fn(who, key); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeLicense(w, r, key)
}

func (s *Server) writeLicense(w http.ResponseWriter, r *http.Request, key domain.LicenseKey) {
	lic, err := s.ledger.License(r.Context(), key)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lic)
}

// --- vault ---

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	acct := domain.Account(r.URL.Query().Get("account"))
	if acct == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing account")
		return
	}
	s.handleBalanceFor(w, r, acct)
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if s.bank == nil {
		writeError(w, http.StatusNotFound, "not_found", "transfer journal not available")
		return
	}
	acct := domain.Account(r.URL.Query().Get("account"))
	if acct == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing account")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	transfers, err := s.bank.Transfers(r.Context(), acct, limit)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transfers": transfers,
		"limit":     limit,
	})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if !s.opts.Faucet || s.bank == nil {
		writeError(w, http.StatusNotFound, "not_found", "faucet disabled")
		return
	}
	var req struct {
		Account domain.Account `json:"account"`
		Amount  uint64         `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Account == "" || req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "account and amount are required")
		return
	}
	if err := s.bank.Fund(r.Context(), req.Account, req.Amount); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.handleBalanceFor(w, r, req.Account)
}

func (s *Server) handleBalanceFor(w http.ResponseWriter, r *http.Request, acct domain.Account) {
	bal, err := s.ledger.Balance(r.Context(), acct)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": acct, "balance": bal})
}

// --- path params ---

func marketID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["market_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid market_id")
		return 0, false
	}
	return id, true
}

func oracleID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["oracle_id"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid oracle_id")
		return 0, false
	}
	return uint32(id), true
}

func licenseKey(w http.ResponseWriter, r *http.Request) (domain.LicenseKey, bool) {
	key, err := domain.ParseLicenseKey(mux.Vars(r)["license_key"])
	if err != nil {
		writeLedgerError(w, err)
		return key, false
	}
	return key, true
}
