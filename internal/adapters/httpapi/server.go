// Package httpapi expone el ledger por HTTP/JSON.
//
// La autenticación es externa: la identidad del caller llega ya verificada en
// el header X-Fortuna-Caller. Cada caller tiene su propio token bucket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/fortuna/internal/adapters/storage"
	"github.com/alejandrodnm/fortuna/internal/application/ledger"
	"github.com/alejandrodnm/fortuna/internal/domain"
)

// CallerHeader lleva la identidad autenticada del caller.
const CallerHeader = "X-Fortuna-Caller"

const maxBodyBytes = 64 << 10

// Bank es el acceso directo a saldos que no pasa por el ledger: faucet de
// desarrollo y journal de transferencias.
type Bank interface {
	Fund(ctx context.Context, acct domain.Account, amount uint64) error
	Transfers(ctx context.Context, acct domain.Account, limit int) ([]storage.Transfer, error)
}

// Options configura el servidor.
type Options struct {
	RatePerSec     float64
	Burst          int
	AllowedOrigins []string
	Faucet         bool // habilita POST /api/faucet

	// MaxCallers acota los buckets en memoria; al llenarse se descartan los
	// inactivos por más de CallerIdleTTL y, si no alcanza, el más antiguo.
	MaxCallers    int
	CallerIdleTTL time.Duration
}

type callerLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Server sirve la API del ledger.
type Server struct {
	ledger     *ledger.Ledger
	bank       Bank
	opts       Options
	httpServer *http.Server

	mu       sync.Mutex
	limiters map[string]*callerLimiter
	now      func() time.Time
}

// NewServer crea el servidor. bank puede ser nil: faucet y journal quedan
// deshabilitados.
func NewServer(l *ledger.Ledger, bank Bank, opts Options) *Server {
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.MaxCallers <= 0 {
		opts.MaxCallers = 10_000
	}
	if opts.CallerIdleTTL <= 0 {
		opts.CallerIdleTTL = 10 * time.Minute
	}
	return &Server{
		ledger:   l,
		bank:     bank,
		opts:     opts,
		limiters: make(map[string]*callerLimiter),
		now:      time.Now,
	}
}

// Handler devuelve el router completo con CORS y rate limiting.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.rateLimit)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	api.HandleFunc("/protocol", s.handleGetProtocol).Methods("GET")
	api.HandleFunc("/protocol", s.handleUpdateProtocol).Methods("PATCH")
	api.HandleFunc("/protocol/initialize", s.handleInitializeProtocol).Methods("POST")
	api.HandleFunc("/protocol/require-license", s.handleSetRequireLicense).Methods("PUT")

	api.HandleFunc("/oracles", s.handleRegisterOracle).Methods("POST")
	api.HandleFunc("/oracles/{oracle_id}", s.handleGetOracle).Methods("GET")
	api.HandleFunc("/oracles/{oracle_id}", s.handleUpdateOracle).Methods("PATCH")
	api.HandleFunc("/oracles/{oracle_id}/categories/{category}", s.handleSetOracleCategory).Methods("PUT")

	api.HandleFunc("/markets", s.handleListMarkets).Methods("GET")
	api.HandleFunc("/markets", s.handleCreateMarket).Methods("POST")
	api.HandleFunc("/markets/{market_id}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{market_id}/oracle", s.handleAssignOracle).Methods("PUT")
	api.HandleFunc("/markets/{market_id}/resolve", s.handleResolveMarket).Methods("POST")
	api.HandleFunc("/markets/{market_id}/oracle-resolve", s.handleOracleResolveMarket).Methods("POST")
	api.HandleFunc("/markets/{market_id}/cancel", s.handleCancelMarket).Methods("POST")
	api.HandleFunc("/markets/{market_id}/bets", s.handleListBets).Methods("GET")
	api.HandleFunc("/markets/{market_id}/bets", s.handlePlaceBet).Methods("POST")
	api.HandleFunc("/markets/{market_id}/bets", s.handleWithdrawBet).Methods("DELETE")
	api.HandleFunc("/markets/{market_id}/bets/{bettor}", s.handleGetBet).Methods("GET")
	api.HandleFunc("/markets/{market_id}/bets/{bettor}/payout", s.handleQuotePayout).Methods("GET")
	api.HandleFunc("/markets/{market_id}/claim", s.handleClaimWinnings).Methods("POST")
	api.HandleFunc("/markets/{market_id}/refund", s.handleClaimRefund).Methods("POST")

	api.HandleFunc("/licenses", s.handleIssueLicense).Methods("POST")
	api.HandleFunc("/licenses/{license_key}", s.handleGetLicense).Methods("GET")
	api.HandleFunc("/licenses/{license_key}", s.handleUpdateLicense).Methods("PATCH")
	api.HandleFunc("/licenses/{license_key}/revoke", s.handleRevokeLicense).Methods("POST")
	api.HandleFunc("/licenses/{license_key}/activate", s.handleActivateLicense).Methods("POST")
	api.HandleFunc("/licenses/{license_key}/transfer", s.handleTransferLicense).Methods("POST")
	api.HandleFunc("/licenses/{license_key}/wallets", s.handleAddWallet).Methods("POST")
	api.HandleFunc("/licenses/{license_key}/wallets/{wallet}", s.handleRemoveWallet).Methods("DELETE")
	api.HandleFunc("/licenses/{license_key}/domains", s.handleAddDomain).Methods("POST")
	api.HandleFunc("/licenses/{license_key}/domains/{domain}", s.handleRemoveDomain).Methods("DELETE")

	api.HandleFunc("/balance", s.handleBalance).Methods("GET")
	api.HandleFunc("/transfers", s.handleTransfers).Methods("GET")
	api.HandleFunc("/faucet", s.handleFaucet).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", CallerHeader},
	})
	return c.Handler(router)
}

// Start escucha en addr hasta que ctx se cancela; entonces hace shutdown.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http api listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi.Start: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpapi.Start: shutdown: %w", err)
		}
		return nil
	}
}

// rateLimit aplica un token bucket por caller (o por IP si no hay caller).
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(CallerHeader)
		if key == "" {
			key, _, _ = net.SplitHostPort(r.RemoteAddr)
		}
		if !s.limiter(key).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if cl, ok := s.limiters[key]; ok {
		cl.lastSeen = now
		return cl.lim
	}
	if len(s.limiters) >= s.opts.MaxCallers {
		s.evictLimiters(now)
	}
	cl := &callerLimiter{
		lim:      rate.NewLimiter(rate.Limit(s.opts.RatePerSec), s.opts.Burst),
		lastSeen: now,
	}
	s.limiters[key] = cl
	return cl.lim
}

// evictLimiters libera los buckets inactivos; si todos están en uso
// descarta el menos reciente. Se llama con s.mu tomado.
func (s *Server) evictLimiters(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, cl := range s.limiters {
		if now.Sub(cl.lastSeen) > s.opts.CallerIdleTTL {
			delete(s.limiters, k)
			continue
		}
		if !found || cl.lastSeen.Before(oldest) {
			oldestKey, oldest, found = k, cl.lastSeen, true
		}
	}
	if len(s.limiters) >= s.opts.MaxCallers && found {
		delete(s.limiters, oldestKey)
	}
}

// --- helpers ---

// caller lee la identidad autenticada. Escribe 401 si falta.
func caller(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	c := domain.Address(r.Header.Get(CallerHeader))
	if c == "" {
		writeError(w, http.StatusUnauthorized, "missing_caller", "missing "+CallerHeader+" header")
		return "", false
	}
	return c, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("httpapi: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

// writeLedgerError traduce el kind del error a un status HTTP.
func writeLedgerError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if status == http.StatusInternalServerError {
		slog.Error("httpapi: internal error", "err", err)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  domain.CodeOf(err),
		"kind":  kind.String(),
	})
}

// StatusFor mapea un domain.Kind a su status HTTP.
func StatusFor(k domain.Kind) int {
	switch k {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindState, domain.KindTemporal, domain.KindEntitlement:
		return http.StatusConflict
	case domain.KindResource:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
