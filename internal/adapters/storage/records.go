package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// txRecords implementa ports.Records sobre la transacción en curso.
type txRecords struct {
	tx *sql.Tx
}

// unsigned escanea un INTEGER guardado con int64(v) de vuelta a su tipo sin
// signo, preservando los bits.
type unsigned[T ~uint8 | ~uint16 | ~uint32 | ~uint64] struct{ p *T }

func (c unsigned[T]) Scan(src any) error {
	n, ok := src.(int64)
	if !ok {
		return fmt.Errorf("unsigned column: unexpected %T", src)
	}
	*c.p = T(n)
	return nil
}

func u[T ~uint8 | ~uint16 | ~uint32 | ~uint64](p *T) unsigned[T] { return unsigned[T]{p} }

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// requireRow convierte un UPDATE que no tocó filas en ErrNotFound.
func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

func (r *txRecords) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := r.tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// --- protocol ---

func (r *txRecords) Protocol(ctx context.Context) (domain.ProtocolConfig, error) {
	var p domain.ProtocolConfig
	err := r.tx.QueryRowContext(ctx, `
		SELECT authority, treasury, protocol_fee_bps, creator_fee_bps, pool_fee_bps,
		       total_markets, total_volume_hi, total_volume_lo, total_oracles,
		       total_licenses, require_license
		FROM protocol WHERE id = 1
	`).Scan(
		&p.Authority, &p.Treasury,
		u(&p.Fees.ProtocolBPS), u(&p.Fees.CreatorBPS), u(&p.Fees.PoolBPS),
		u(&p.TotalMarkets), u(&p.TotalVolume.Hi), u(&p.TotalVolume.Lo), u(&p.TotalOracles),
		u(&p.TotalLicenses), &p.RequireLicense,
	)
	if err != nil {
		return p, notFound(err, "storage.Protocol")
	}
	return p, nil
}

func (r *txRecords) SaveProtocol(ctx context.Context, p domain.ProtocolConfig) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO protocol
			(id, authority, treasury, protocol_fee_bps, creator_fee_bps, pool_fee_bps,
			 total_markets, total_volume_hi, total_volume_lo, total_oracles,
			 total_licenses, require_license)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			authority        = excluded.authority,
			treasury         = excluded.treasury,
			protocol_fee_bps = excluded.protocol_fee_bps,
			creator_fee_bps  = excluded.creator_fee_bps,
			pool_fee_bps     = excluded.pool_fee_bps,
			total_markets    = excluded.total_markets,
			total_volume_hi  = excluded.total_volume_hi,
			total_volume_lo  = excluded.total_volume_lo,
			total_oracles    = excluded.total_oracles,
			total_licenses   = excluded.total_licenses,
			require_license  = excluded.require_license
	`,
		string(p.Authority), string(p.Treasury),
		p.Fees.ProtocolBPS, p.Fees.CreatorBPS, p.Fees.PoolBPS,
		int64(p.TotalMarkets), int64(p.TotalVolume.Hi), int64(p.TotalVolume.Lo), p.TotalOracles,
		p.TotalLicenses, b2i(p.RequireLicense),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveProtocol: %w", err)
	}
	return nil
}

// --- markets ---

const marketColumns = `
	id, creator, creator_fee_wallet, token_mint, category, oracle_id, license_key,
	title, description, oracle_event_id, bet_amount, betting_deadline,
	resolution_deadline, status, winning_outcome, total_pool, bonus_pool,
	created_at, resolved_at, resolved_by_oracle`

func (r *txRecords) Market(ctx context.Context, id uint64) (domain.Market, error) {
	var m domain.Market
	var oracleID sql.NullInt64
	var licenseKey sql.NullString
	err := r.tx.QueryRowContext(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = ?`, int64(id)).Scan(
		u(&m.ID), &m.Creator, &m.CreatorFeeWallet, &m.TokenMint, u(&m.Category), &oracleID, &licenseKey,
		&m.Title, &m.Description, &m.OracleEventID, u(&m.BetAmount), &m.BettingDeadline,
		&m.ResolutionDeadline, &m.Status, u(&m.WinningOutcome), u(&m.TotalPool), u(&m.BonusPool),
		&m.CreatedAt, &m.ResolvedAt, &m.ResolvedByOracle,
	)
	if err != nil {
		return m, notFound(err, fmt.Sprintf("storage.Market %d", id))
	}
	if oracleID.Valid {
		o := uint32(oracleID.Int64)
		m.Oracle = &o
	}
	if licenseKey.Valid {
		k, err := domain.ParseLicenseKey(licenseKey.String)
		if err != nil {
			return m, fmt.Errorf("storage.Market %d: license key: %w", id, err)
		}
		m.License = &k
	}

	rows, err := r.tx.QueryContext(ctx,
		`SELECT label, total_amount, bettor_count FROM outcomes WHERE market_id = ? ORDER BY idx`, int64(id))
	if err != nil {
		return m, fmt.Errorf("storage.Market %d: outcomes: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var o domain.Outcome
		if err := rows.Scan(&o.Label, u(&o.TotalAmount), u(&o.BettorCount)); err != nil {
			return m, fmt.Errorf("storage.Market %d: scan outcome: %w", id, err)
		}
		m.Outcomes = append(m.Outcomes, o)
	}
	return m, rows.Err()
}

func (r *txRecords) InsertMarket(ctx context.Context, m domain.Market) error {
	taken, err := r.exists(ctx, `SELECT 1 FROM markets WHERE id = ?`, int64(m.ID))
	if err != nil {
		return fmt.Errorf("storage.InsertMarket: %w", err)
	}
	if taken {
		return fmt.Errorf("storage.InsertMarket %d: %w", m.ID, domain.ErrAlreadyExists)
	}
	_, err = r.tx.ExecContext(ctx, `INSERT INTO markets (`+marketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, marketArgs(m)...)
	if err != nil {
		return fmt.Errorf("storage.InsertMarket %d: %w", m.ID, err)
	}
	for i, o := range m.Outcomes {
		if _, err := r.tx.ExecContext(ctx,
			`INSERT INTO outcomes (market_id, idx, label, total_amount, bettor_count) VALUES (?, ?, ?, ?, ?)`,
			int64(m.ID), i, o.Label, int64(o.TotalAmount), o.BettorCount,
		); err != nil {
			return fmt.Errorf("storage.InsertMarket %d: outcome %d: %w", m.ID, i, err)
		}
	}
	return nil
}

func (r *txRecords) SaveMarket(ctx context.Context, m domain.Market) error {
	args := marketArgs(m)
	res, err := r.tx.ExecContext(ctx, `
		UPDATE markets SET
			creator = ?, creator_fee_wallet = ?, token_mint = ?, category = ?, oracle_id = ?,
			license_key = ?, title = ?, description = ?, oracle_event_id = ?, bet_amount = ?,
			betting_deadline = ?, resolution_deadline = ?, status = ?, winning_outcome = ?,
			total_pool = ?, bonus_pool = ?, created_at = ?, resolved_at = ?, resolved_by_oracle = ?
		WHERE id = ?
	`, append(args[1:], args[0])...)
	if err != nil {
		return fmt.Errorf("storage.SaveMarket %d: %w", m.ID, err)
	}
	if err := requireRow(res, fmt.Sprintf("storage.SaveMarket %d", m.ID)); err != nil {
		return err
	}
	for i, o := range m.Outcomes {
		if _, err := r.tx.ExecContext(ctx, `
			UPDATE outcomes SET label = ?, total_amount = ?, bettor_count = ?
			WHERE market_id = ? AND idx = ?
		`, o.Label, int64(o.TotalAmount), o.BettorCount, int64(m.ID), i); err != nil {
			return fmt.Errorf("storage.SaveMarket %d: outcome %d: %w", m.ID, i, err)
		}
	}
	return nil
}

func marketArgs(m domain.Market) []any {
	var oracleID, licenseKey any
	if m.Oracle != nil {
		oracleID = int64(*m.Oracle)
	}
	if m.License != nil {
		licenseKey = m.License.String()
	}
	return []any{
		int64(m.ID), string(m.Creator), string(m.CreatorFeeWallet), m.TokenMint, uint8(m.Category), oracleID, licenseKey,
		m.Title, m.Description, m.OracleEventID, int64(m.BetAmount), m.BettingDeadline,
		m.ResolutionDeadline, string(m.Status), m.WinningOutcome, int64(m.TotalPool), int64(m.BonusPool),
		m.CreatedAt, m.ResolvedAt, b2i(m.ResolvedByOracle),
	}
}

func (r *txRecords) ListMarkets(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT id FROM markets WHERE ? = '' OR status = ? ORDER BY id`, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("storage.ListMarkets: query: %w", err)
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(u(&id)); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage.ListMarkets: scan row: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.ListMarkets: %w", err)
	}

	markets := make([]domain.Market, 0, len(ids))
	for _, id := range ids {
		m, err := r.Market(ctx, id)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, nil
}

// --- bets ---

func (r *txRecords) Bet(ctx context.Context, marketID uint64, bettor domain.Address) (domain.Bet, error) {
	var b domain.Bet
	err := r.tx.QueryRowContext(ctx, `
		SELECT market_id, bettor, outcome_index, original_amount, pool_amount, claimed, placed_at
		FROM bets WHERE market_id = ? AND bettor = ?
	`, int64(marketID), string(bettor)).Scan(
		u(&b.MarketID), &b.Bettor, u(&b.OutcomeIndex), u(&b.OriginalAmount), u(&b.PoolAmount), &b.Claimed, &b.PlacedAt,
	)
	if err != nil {
		return b, notFound(err, fmt.Sprintf("storage.Bet %d/%s", marketID, bettor))
	}
	return b, nil
}

func (r *txRecords) InsertBet(ctx context.Context, b domain.Bet) error {
	taken, err := r.exists(ctx, `SELECT 1 FROM bets WHERE market_id = ? AND bettor = ?`, int64(b.MarketID), string(b.Bettor))
	if err != nil {
		return fmt.Errorf("storage.InsertBet: %w", err)
	}
	if taken {
		return fmt.Errorf("storage.InsertBet %d/%s: %w", b.MarketID, b.Bettor, domain.ErrBetAlreadyPlaced)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO bets (market_id, bettor, outcome_index, original_amount, pool_amount, claimed, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, int64(b.MarketID), string(b.Bettor), b.OutcomeIndex, int64(b.OriginalAmount), int64(b.PoolAmount), b2i(b.Claimed), b.PlacedAt)
	if err != nil {
		return fmt.Errorf("storage.InsertBet %d/%s: %w", b.MarketID, b.Bettor, err)
	}
	return nil
}

func (r *txRecords) SaveBet(ctx context.Context, b domain.Bet) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE bets SET outcome_index = ?, original_amount = ?, pool_amount = ?, claimed = ?, placed_at = ?
		WHERE market_id = ? AND bettor = ?
	`, b.OutcomeIndex, int64(b.OriginalAmount), int64(b.PoolAmount), b2i(b.Claimed), b.PlacedAt, int64(b.MarketID), string(b.Bettor))
	if err != nil {
		return fmt.Errorf("storage.SaveBet %d/%s: %w", b.MarketID, b.Bettor, err)
	}
	return requireRow(res, fmt.Sprintf("storage.SaveBet %d/%s", b.MarketID, b.Bettor))
}

func (r *txRecords) ListBets(ctx context.Context, marketID uint64) ([]domain.Bet, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT market_id, bettor, outcome_index, original_amount, pool_amount, claimed, placed_at
		FROM bets WHERE market_id = ? ORDER BY placed_at, bettor
	`, int64(marketID))
	if err != nil {
		return nil, fmt.Errorf("storage.ListBets: query: %w", err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		var b domain.Bet
		if err := rows.Scan(
			u(&b.MarketID), &b.Bettor, u(&b.OutcomeIndex), u(&b.OriginalAmount), u(&b.PoolAmount), &b.Claimed, &b.PlacedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.ListBets: scan row: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// --- licenses ---

func (r *txRecords) License(ctx context.Context, key domain.LicenseKey) (domain.License, error) {
	var l domain.License
	var domainsJSON, walletsJSON string
	err := r.tx.QueryRowContext(ctx, `
		SELECT holder, license_type, can_create_markets, can_use_oracles, can_private, can_custom_fees,
		       allowed_domains, allowed_wallets, max_markets, markets_created, is_active,
		       is_transferable, issued_at, expires_at, last_used_at, issued_by
		FROM licenses WHERE license_key = ?
	`, key.String()).Scan(
		&l.Holder, u(&l.Type),
		&l.Features.CanCreateMarkets, &l.Features.CanUseOracles,
		&l.Features.CanCreatePrivateMarkets, &l.Features.CanSetCustomFees,
		&domainsJSON, &walletsJSON, u(&l.MaxMarkets), u(&l.MarketsCreated), &l.IsActive,
		&l.IsTransferable, &l.IssuedAt, &l.ExpiresAt, &l.LastUsedAt, &l.IssuedBy,
	)
	if err != nil {
		return l, notFound(err, "storage.License "+key.String())
	}
	l.Key = key
	if err := json.Unmarshal([]byte(domainsJSON), &l.AllowedDomains); err != nil {
		return l, fmt.Errorf("storage.License: decode domains: %w", err)
	}
	if err := json.Unmarshal([]byte(walletsJSON), &l.AllowedWallets); err != nil {
		return l, fmt.Errorf("storage.License: decode wallets: %w", err)
	}
	return l, nil
}

func (r *txRecords) InsertLicense(ctx context.Context, l domain.License) error {
	taken, err := r.exists(ctx, `SELECT 1 FROM licenses WHERE license_key = ?`, l.Key.String())
	if err != nil {
		return fmt.Errorf("storage.InsertLicense: %w", err)
	}
	if taken {
		return fmt.Errorf("storage.InsertLicense: %w", domain.ErrLicenseAlreadyExists)
	}
	return r.upsertLicense(ctx, "storage.InsertLicense", l)
}

func (r *txRecords) SaveLicense(ctx context.Context, l domain.License) error {
	taken, err := r.exists(ctx, `SELECT 1 FROM licenses WHERE license_key = ?`, l.Key.String())
	if err != nil {
		return fmt.Errorf("storage.SaveLicense: %w", err)
	}
	if !taken {
		return fmt.Errorf("storage.SaveLicense %s: %w", l.Key, domain.ErrNotFound)
	}
	return r.upsertLicense(ctx, "storage.SaveLicense", l)
}

func (r *txRecords) upsertLicense(ctx context.Context, op string, l domain.License) error {
	domains, err := json.Marshal(nonNil(l.AllowedDomains))
	if err != nil {
		return fmt.Errorf("%s: encode domains: %w", op, err)
	}
	wallets, err := json.Marshal(nonNil(l.AllowedWallets))
	if err != nil {
		return fmt.Errorf("%s: encode wallets: %w", op, err)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO licenses
			(license_key, holder, license_type, can_create_markets, can_use_oracles, can_private,
			 can_custom_fees, allowed_domains, allowed_wallets, max_markets, markets_created,
			 is_active, is_transferable, issued_at, expires_at, last_used_at, issued_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.Key.String(), string(l.Holder), uint8(l.Type),
		b2i(l.Features.CanCreateMarkets), b2i(l.Features.CanUseOracles),
		b2i(l.Features.CanCreatePrivateMarkets), b2i(l.Features.CanSetCustomFees),
		string(domains), string(wallets), l.MaxMarkets, l.MarketsCreated,
		b2i(l.IsActive), b2i(l.IsTransferable), l.IssuedAt, l.ExpiresAt, l.LastUsedAt, string(l.IssuedBy),
	)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, l.Key, err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// --- oracles ---

func (r *txRecords) Oracle(ctx context.Context, id uint32) (domain.Oracle, error) {
	var o domain.Oracle
	var mask uint16
	err := r.tx.QueryRowContext(ctx, `
		SELECT id, authority, name, categories, data_source, is_active,
		       markets_resolved, registered_at, last_resolution_at
		FROM oracles WHERE id = ?
	`, id).Scan(
		u(&o.ID), &o.Authority, &o.Name, u(&mask), &o.DataSource, &o.IsActive,
		u(&o.MarketsResolved), &o.RegisteredAt, &o.LastResolutionAt,
	)
	if err != nil {
		return o, notFound(err, fmt.Sprintf("storage.Oracle %d", id))
	}
	o.Categories = domain.CategorySetFromMask(mask)
	return o, nil
}

func (r *txRecords) InsertOracle(ctx context.Context, o domain.Oracle) error {
	taken, err := r.exists(ctx, `SELECT 1 FROM oracles WHERE id = ?`, o.ID)
	if err != nil {
		return fmt.Errorf("storage.InsertOracle: %w", err)
	}
	if taken {
		return fmt.Errorf("storage.InsertOracle %d: %w", o.ID, domain.ErrAlreadyExists)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO oracles
			(id, authority, name, categories, data_source, is_active,
			 markets_resolved, registered_at, last_resolution_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, string(o.Authority), o.Name, o.Categories.Mask(), o.DataSource, b2i(o.IsActive),
		int64(o.MarketsResolved), o.RegisteredAt, o.LastResolutionAt)
	if err != nil {
		return fmt.Errorf("storage.InsertOracle %d: %w", o.ID, err)
	}
	return nil
}

func (r *txRecords) SaveOracle(ctx context.Context, o domain.Oracle) error {
	res, err := r.tx.ExecContext(ctx, `
		UPDATE oracles SET authority = ?, name = ?, categories = ?, data_source = ?, is_active = ?,
			markets_resolved = ?, registered_at = ?, last_resolution_at = ?
		WHERE id = ?
	`, string(o.Authority), o.Name, o.Categories.Mask(), o.DataSource, b2i(o.IsActive),
		int64(o.MarketsResolved), o.RegisteredAt, o.LastResolutionAt, o.ID)
	if err != nil {
		return fmt.Errorf("storage.SaveOracle %d: %w", o.ID, err)
	}
	return requireRow(res, fmt.Sprintf("storage.SaveOracle %d", o.ID))
}
