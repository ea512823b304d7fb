package storage

// sqlite.go: registros del ledger y vault en una sola base SQLite.
//
// Estrategia:
//   - Cada operación del ledger corre en UNA transacción SQL (Atomically):
//     registros y saldos del vault se confirman o se descartan juntos.
//   - Los uint64 se guardan como INTEGER con conversión bit a bit (int64(v)
//     ↔ uint64(n)). Toda la aritmética se hace en Go, nunca en SQL.
//   - `transfers`: journal append-only de cada movimiento del vault.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/fortuna/internal/domain"
	"github.com/alejandrodnm/fortuna/internal/ports"
)

const schema = `
-- Configuración singleton del protocolo
CREATE TABLE IF NOT EXISTS protocol (
    id               INTEGER PRIMARY KEY CHECK (id = 1),
    authority        TEXT    NOT NULL,
    treasury         TEXT    NOT NULL,
    protocol_fee_bps INTEGER NOT NULL,
    creator_fee_bps  INTEGER NOT NULL,
    pool_fee_bps     INTEGER NOT NULL,
    total_markets    INTEGER NOT NULL DEFAULT 0,
    total_volume_hi  INTEGER NOT NULL DEFAULT 0,
    total_volume_lo  INTEGER NOT NULL DEFAULT 0,
    total_oracles    INTEGER NOT NULL DEFAULT 0,
    total_licenses   INTEGER NOT NULL DEFAULT 0,
    require_license  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS markets (
    id                  INTEGER PRIMARY KEY,
    creator             TEXT    NOT NULL,
    creator_fee_wallet  TEXT    NOT NULL,
    token_mint          TEXT    NOT NULL DEFAULT '',
    category            INTEGER NOT NULL,
    oracle_id           INTEGER,            -- NULL = sin oráculo
    license_key         TEXT,               -- NULL = creado sin licencia
    title               TEXT    NOT NULL,
    description         TEXT    NOT NULL,
    oracle_event_id     TEXT    NOT NULL DEFAULT '',
    bet_amount          INTEGER NOT NULL,
    betting_deadline    INTEGER NOT NULL,
    resolution_deadline INTEGER NOT NULL,
    status              TEXT    NOT NULL,
    winning_outcome     INTEGER NOT NULL DEFAULT 0,
    total_pool          INTEGER NOT NULL DEFAULT 0,
    bonus_pool          INTEGER NOT NULL DEFAULT 0,
    created_at          INTEGER NOT NULL,
    resolved_at         INTEGER NOT NULL DEFAULT 0,
    resolved_by_oracle  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outcomes (
    market_id    INTEGER NOT NULL,
    idx          INTEGER NOT NULL,
    label        TEXT    NOT NULL,
    total_amount INTEGER NOT NULL DEFAULT 0,
    bettor_count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (market_id, idx)
);

-- Una apuesta por (mercado, bettor)
CREATE TABLE IF NOT EXISTS bets (
    market_id       INTEGER NOT NULL,
    bettor          TEXT    NOT NULL,
    outcome_index   INTEGER NOT NULL,
    original_amount INTEGER NOT NULL,
    pool_amount     INTEGER NOT NULL,
    claimed         INTEGER NOT NULL DEFAULT 0,
    placed_at       INTEGER NOT NULL,
    PRIMARY KEY (market_id, bettor)
);

CREATE TABLE IF NOT EXISTS licenses (
    license_key        TEXT PRIMARY KEY,    -- hex de 32 bytes
    holder             TEXT    NOT NULL,
    license_type       INTEGER NOT NULL,
    can_create_markets INTEGER NOT NULL,
    can_use_oracles    INTEGER NOT NULL,
    can_private        INTEGER NOT NULL,
    can_custom_fees    INTEGER NOT NULL,
    allowed_domains    TEXT    NOT NULL DEFAULT '[]',
    allowed_wallets    TEXT    NOT NULL DEFAULT '[]',
    max_markets        INTEGER NOT NULL,
    markets_created    INTEGER NOT NULL DEFAULT 0,
    is_active          INTEGER NOT NULL,
    is_transferable    INTEGER NOT NULL,
    issued_at          INTEGER NOT NULL,
    expires_at         INTEGER NOT NULL DEFAULT 0,
    last_used_at       INTEGER NOT NULL DEFAULT 0,
    issued_by          TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS oracles (
    id                 INTEGER PRIMARY KEY,
    authority          TEXT    NOT NULL,
    name               TEXT    NOT NULL,
    categories         INTEGER NOT NULL,    -- bitmask de MarketCategory
    data_source        TEXT    NOT NULL,
    is_active          INTEGER NOT NULL,
    markets_resolved   INTEGER NOT NULL DEFAULT 0,
    registered_at      INTEGER NOT NULL,
    last_resolution_at INTEGER NOT NULL DEFAULT 0
);

-- Saldos del vault: identidades y pools de mercado
CREATE TABLE IF NOT EXISTS balances (
    account TEXT PRIMARY KEY,
    amount  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transfers (
    id           TEXT PRIMARY KEY,          -- UUID
    kind         TEXT     NOT NULL,         -- fund / deposit / withdraw
    from_account TEXT     NOT NULL DEFAULT '',
    to_account   TEXT     NOT NULL,
    amount       INTEGER  NOT NULL,
    created_at   TEXT     NOT NULL      -- RFC3339Nano UTC
);

CREATE INDEX IF NOT EXISTS idx_markets_status ON markets(status);
CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_account);
CREATE INDEX IF NOT EXISTS idx_transfers_to   ON transfers(to_account);
`

// SQLiteStorage implementa ports.UnitOfWork usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

var _ ports.UnitOfWork = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Atomically ejecuta fn dentro de una transacción. Cualquier error de fn
// (o del commit) descarta todas las escrituras y transferencias.
func (s *SQLiteStorage) Atomically(ctx context.Context, fn func(ctx context.Context, recs ports.Records, vault ports.Vault) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Atomically: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &txRecords{tx: tx}, &txVault{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Atomically: commit: %w", err)
	}
	return nil
}

// Fund acredita amount a acct sin origen. Es el faucet de desarrollo y de
// los tests; en producción los saldos llegan por otro canal.
func (s *SQLiteStorage) Fund(ctx context.Context, acct domain.Account, amount uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Fund: begin tx: %w", err)
	}
	defer tx.Rollback()

	v := &txVault{tx: tx}
	if err := v.credit(ctx, acct, amount); err != nil {
		return fmt.Errorf("storage.Fund: %s: %w", acct, err)
	}
	if err := v.journal(ctx, "fund", "", acct, amount); err != nil {
		return fmt.Errorf("storage.Fund: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Fund: commit: %w", err)
	}
	return nil
}

// Balance devuelve el saldo confirmado de acct (0 si no existe).
func (s *SQLiteStorage) Balance(ctx context.Context, acct domain.Account) (uint64, error) {
	bal, err := readBalance(ctx, s.db, acct)
	if err != nil {
		return 0, fmt.Errorf("storage.Balance: %w", err)
	}
	return bal, nil
}

// Transfer es una fila del journal del vault.
type Transfer struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	From      domain.Account `json:"from,omitempty"`
	To        domain.Account `json:"to"`
	Amount    uint64         `json:"amount"`
	CreatedAt time.Time      `json:"created_at"`
}

// Transfers devuelve los movimientos en los que participa acct, del más
// reciente al más antiguo. limit <= 0 devuelve todos.
func (s *SQLiteStorage) Transfers(ctx context.Context, acct domain.Account, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 = sin límite
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, from_account, to_account, amount, created_at
		FROM transfers
		WHERE from_account = ? OR to_account = ?
		ORDER BY rowid DESC
		LIMIT ?
	`, string(acct), string(acct), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.Transfers: query: %w", err)
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		var t Transfer
		var from, to, createdAt string
		var amount int64
		if err := rows.Scan(&t.ID, &t.Kind, &from, &to, &amount, &createdAt); err != nil {
			return nil, fmt.Errorf("storage.Transfers: scan row: %w", err)
		}
		t.From, t.To, t.Amount = domain.Account(from), domain.Account(to), uint64(amount)
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// querier es lo común entre *sql.DB y *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readBalance(ctx context.Context, q querier, acct domain.Account) (uint64, error) {
	var n int64
	err := q.QueryRowContext(ctx, `SELECT amount FROM balances WHERE account = ?`, string(acct)).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance %s: %w", acct, err)
	}
	return uint64(n), nil
}

// newJournalID genera el id de una fila de transfers.
func newJournalID() string { return uuid.New().String() }

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
