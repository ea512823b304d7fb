package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// txVault implementa ports.Vault sobre la transacción en curso.
type txVault struct {
	tx *sql.Tx
}

func (v *txVault) Deposit(ctx context.Context, from, to domain.Account, amount uint64) error {
	if err := v.move(ctx, from, to, amount); err != nil {
		return fmt.Errorf("storage.Deposit: %s → %s: %w", from, to, err)
	}
	if err := v.journal(ctx, "deposit", from, to, amount); err != nil {
		return fmt.Errorf("storage.Deposit: %w", err)
	}
	return nil
}

func (v *txVault) Withdraw(ctx context.Context, from, to domain.Account, amount uint64, auth domain.VaultAuthority) error {
	if !auth.Controls(from) {
		return fmt.Errorf("storage.Withdraw: %s not controlled by market %d: %w", from, auth.MarketID, domain.ErrUnauthorized)
	}
	if err := v.move(ctx, from, to, amount); err != nil {
		return fmt.Errorf("storage.Withdraw: %s → %s: %w", from, to, err)
	}
	if err := v.journal(ctx, "withdraw", from, to, amount); err != nil {
		return fmt.Errorf("storage.Withdraw: %w", err)
	}
	return nil
}

func (v *txVault) Balance(ctx context.Context, acct domain.Account) (uint64, error) {
	bal, err := readBalance(ctx, v.tx, acct)
	if err != nil {
		return 0, fmt.Errorf("storage.Balance: %w", err)
	}
	return bal, nil
}

func (v *txVault) move(ctx context.Context, from, to domain.Account, amount uint64) error {
	if from == to {
		return nil
	}
	bal, err := readBalance(ctx, v.tx, from)
	if err != nil {
		return err
	}
	if bal < amount {
		return domain.ErrInsufficientFunds
	}
	if err := v.setBalance(ctx, from, bal-amount); err != nil {
		return err
	}
	return v.credit(ctx, to, amount)
}

func (v *txVault) credit(ctx context.Context, acct domain.Account, amount uint64) error {
	bal, err := readBalance(ctx, v.tx, acct)
	if err != nil {
		return err
	}
	next, err := domain.CheckedAdd(bal, amount)
	if err != nil {
		return err
	}
	return v.setBalance(ctx, acct, next)
}

func (v *txVault) setBalance(ctx context.Context, acct domain.Account, amount uint64) error {
	_, err := v.tx.ExecContext(ctx, `
		INSERT INTO balances (account, amount) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET amount = excluded.amount
	`, string(acct), int64(amount))
	if err != nil {
		return fmt.Errorf("set balance %s: %w", acct, err)
	}
	return nil
}

func (v *txVault) journal(ctx context.Context, kind string, from, to domain.Account, amount uint64) error {
	_, err := v.tx.ExecContext(ctx,
		`INSERT INTO transfers (id, kind, from_account, to_account, amount, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		newJournalID(), kind, string(from), string(to), int64(amount), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal %s: %w", kind, err)
	}
	return nil
}
