package ledger

import (
	"context"
	"errors"
	"strconv"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// PlaceBet stakes the market's fixed amount on outcomeIdx. The stake is split
// into four vault deposits (net, pool fee, protocol fee, creator fee) that
// commit or roll back together with the pool update and the bet record.
func (l *Ledger) PlaceBet(ctx context.Context, bettor domain.Address, marketID uint64, outcomeIdx uint8) (domain.Bet, error) {
	var placed domain.Bet
	err := l.exec(ctx, "PlaceBet", bettor, func(ctx context.Context, t *txn) error {
		p, err := t.protocol(ctx)
		if err != nil {
			return err
		}
		m, err := t.recs.Market(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketOpen {
			return domain.ErrMarketNotOpen
		}
		if !m.ValidOutcome(outcomeIdx) {
			return domain.ErrInvalidOutcome
		}
		if m.IsBettingClosed(t.now) {
			return domain.ErrBettingDeadlinePassed
		}
		if _, err := t.recs.Bet(ctx, marketID, bettor); err == nil {
			return domain.ErrBetAlreadyPlaced
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		fees, err := p.Fees.Compute(m.BetAmount)
		if err != nil {
			return err
		}

		// Pool arithmetic first so an overflow aborts before any transfer.
		if m.TotalPool, err = domain.CheckedAdd(m.TotalPool, fees.Net); err != nil {
			return err
		}
		if m.BonusPool, err = domain.CheckedAdd(m.BonusPool, fees.PoolFee); err != nil {
			return err
		}
		out := &m.Outcomes[outcomeIdx]
		if out.TotalAmount, err = domain.CheckedAdd(out.TotalAmount, fees.Net); err != nil {
			return err
		}
		if out.BettorCount == ^uint32(0) {
			return domain.ErrOverflow
		}
		out.BettorCount++
		if p.TotalVolume, err = p.TotalVolume.Add(m.BetAmount); err != nil {
			return err
		}

		from := bettor.Account()
		legs := []struct {
			to     domain.Account
			amount uint64
		}{
			{domain.MarketVault(m.ID), fees.Net},
			{domain.BonusVault(m.ID), fees.PoolFee},
			{p.Treasury.Account(), fees.ProtocolFee},
			{m.CreatorFeeWallet.Account(), fees.CreatorFee},
		}
		for _, leg := range legs {
			if leg.amount == 0 {
				continue
			}
			if err := t.vault.Deposit(ctx, from, leg.to, leg.amount); err != nil {
				return err
			}
		}

		bet := domain.Bet{
			MarketID:       m.ID,
			Bettor:         bettor,
			OutcomeIndex:   outcomeIdx,
			OriginalAmount: m.BetAmount,
			PoolAmount:     fees.Net,
			PlacedAt:       t.now,
		}
		if err := t.recs.InsertBet(ctx, bet); err != nil {
			return err
		}
		if err := t.recs.SaveMarket(ctx, m); err != nil {
			return err
		}
		if err := t.recs.SaveProtocol(ctx, p); err != nil {
			return err
		}

		t.emit(domain.EventBetPlaced, m.ID, m.BetAmount,
			"bettor", string(bettor),
			"outcome", strconv.Itoa(int(outcomeIdx)),
			"label", out.Label,
			"net", u64(fees.Net),
			"pool_fee", u64(fees.PoolFee),
		)
		placed = bet
		return nil
	})
	return placed, err
}

// WithdrawBet reverses an open bet before the betting deadline. Only the net
// stake comes back; fees stay where they were paid.
func (l *Ledger) WithdrawBet(ctx context.Context, bettor domain.Address, marketID uint64) (uint64, error) {
	var refunded uint64
	err := l.exec(ctx, "WithdrawBet", bettor, func(ctx context.Context, t *txn) error {
		m, err := t.recs.Market(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketOpen {
			return domain.ErrMarketNotOpen
		}
		bet, err := t.recs.Bet(ctx, marketID, bettor)
		if err != nil {
			return err
		}
		if bet.Claimed {
			return domain.ErrBetAlreadyWithdrawn
		}
		if m.IsBettingClosed(t.now) {
			return domain.ErrWithdrawDeadlinePassed
		}
		if !m.ValidOutcome(bet.OutcomeIndex) {
			return domain.ErrInvalidOutcome
		}

		if m.TotalPool, err = domain.CheckedSub(m.TotalPool, bet.PoolAmount); err != nil {
			return err
		}
		out := &m.Outcomes[bet.OutcomeIndex]
		if out.TotalAmount, err = domain.CheckedSub(out.TotalAmount, bet.PoolAmount); err != nil {
			return err
		}
		if out.BettorCount == 0 {
			return domain.ErrOverflow
		}
		out.BettorCount--

		if err := t.payOut(ctx, m.ID, bettor, bet.PoolAmount); err != nil {
			return err
		}
		bet.Claimed = true
		if err := t.recs.SaveBet(ctx, bet); err != nil {
			return err
		}
		if err := t.recs.SaveMarket(ctx, m); err != nil {
			return err
		}

		t.emit(domain.EventBetWithdrawn, m.ID, bet.PoolAmount, "bettor", string(bettor))
		refunded = bet.PoolAmount
		return nil
	})
	return refunded, err
}

// ClaimWinnings pays a winning bet its pari-mutuel share.
func (l *Ledger) ClaimWinnings(ctx context.Context, bettor domain.Address, marketID uint64) (uint64, error) {
	var paid uint64
	err := l.exec(ctx, "ClaimWinnings", bettor, func(ctx context.Context, t *txn) error {
		m, err := t.recs.Market(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketResolved {
			return domain.ErrMarketNotResolved
		}
		bet, err := t.recs.Bet(ctx, marketID, bettor)
		if err != nil {
			return err
		}
		if bet.Claimed {
			return domain.ErrAlreadyClaimed
		}
		if bet.OutcomeIndex != m.WinningOutcome {
			return domain.ErrLostBet
		}
		payout, err := m.CalculatePayout(bet)
		if err != nil {
			return err
		}
		if payout == 0 {
			return domain.ErrLostBet
		}

		if err := t.payOut(ctx, m.ID, bettor, payout); err != nil {
			return err
		}
		bet.Claimed = true
		if err := t.recs.SaveBet(ctx, bet); err != nil {
			return err
		}

		t.emit(domain.EventWinningsClaimed, m.ID, payout, "bettor", string(bettor))
		paid = payout
		return nil
	})
	return paid, err
}

// ClaimRefund returns the net stake of a bet on a cancelled market.
func (l *Ledger) ClaimRefund(ctx context.Context, bettor domain.Address, marketID uint64) (uint64, error) {
	var refunded uint64
	err := l.exec(ctx, "ClaimRefund", bettor, func(ctx context.Context, t *txn) error {
		m, err := t.recs.Market(ctx, marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketCancelled {
			return domain.ErrMarketNotCancelled
		}
		bet, err := t.recs.Bet(ctx, marketID, bettor)
		if err != nil {
			return err
		}
		if bet.Claimed {
			return domain.ErrAlreadyClaimed
		}

		if err := t.payOut(ctx, m.ID, bettor, bet.PoolAmount); err != nil {
			return err
		}
		bet.Claimed = true
		if err := t.recs.SaveBet(ctx, bet); err != nil {
			return err
		}

		t.emit(domain.EventRefundClaimed, m.ID, bet.PoolAmount, "bettor", string(bettor))
		refunded = bet.PoolAmount
		return nil
	})
	return refunded, err
}

// payOut moves amount from the market vault to the bettor.
func (t *txn) payOut(ctx context.Context, marketID uint64, to domain.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	auth := domain.VaultAuthority{MarketID: marketID}
	return t.vault.Withdraw(ctx, domain.MarketVault(marketID), to.Account(), amount, auth)
}

// Bet returns the bet of bettor on a market.
func (l *Ledger) Bet(ctx context.Context, marketID uint64, bettor domain.Address) (domain.Bet, error) {
	var b domain.Bet
	err := l.view(ctx, "Bet", func(ctx context.Context, t *txn) error {
		var err error
		b, err = t.recs.Bet(ctx, marketID, bettor)
		return err
	})
	return b, err
}

// ListBets returns every bet of a market.
func (l *Ledger) ListBets(ctx context.Context, marketID uint64) ([]domain.Bet, error) {
	var out []domain.Bet
	err := l.view(ctx, "ListBets", func(ctx context.Context, t *txn) error {
		if _, err := t.recs.Market(ctx, marketID); err != nil {
			return err
		}
		var err error
		out, err = t.recs.ListBets(ctx, marketID)
		return err
	})
	return out, err
}

// QuotePayout returns what ClaimWinnings would pay right now (0 for losing,
// claimed or unresolved bets).
func (l *Ledger) QuotePayout(ctx context.Context, marketID uint64, bettor domain.Address) (uint64, error) {
	var quote uint64
	err := l.view(ctx, "QuotePayout", func(ctx context.Context, t *txn) error {
		m, err := t.recs.Market(ctx, marketID)
		if err != nil {
			return err
		}
		bet, err := t.recs.Bet(ctx, marketID, bettor)
		if err != nil {
			return err
		}
		if bet.Claimed {
			return nil
		}
		quote, err = m.CalculatePayout(bet)
		return err
	})
	return quote, err
}

// Balance returns the vault balance of an account.
func (l *Ledger) Balance(ctx context.Context, acct domain.Account) (uint64, error) {
	var bal uint64
	err := l.view(ctx, "Balance", func(ctx context.Context, t *txn) error {
		var err error
		bal, err = t.vault.Balance(ctx, acct)
		return err
	})
	return bal, err
}
