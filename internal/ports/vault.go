package ports

import (
	"context"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// Vault mueve fondos entre cuentas. El ledger lo invoca para cada movimiento
// de dinero pero no lo implementa.
type Vault interface {
	// Deposit debita from y acredita to. Falla con domain.ErrInsufficientFunds
	// si el saldo de from no alcanza.
	Deposit(ctx context.Context, from, to domain.Account, amount uint64) error

	// Withdraw saca fondos de un pool de mercado. auth debe controlar from,
	// si no falla con domain.ErrUnauthorized.
	Withdraw(ctx context.Context, from, to domain.Account, amount uint64, auth domain.VaultAuthority) error

	// Balance devuelve el saldo actual de la cuenta (0 si no existe).
	Balance(ctx context.Context, acct domain.Account) (uint64, error)
}
