package ports

import (
	"context"

	"github.com/alejandrodnm/fortuna/internal/domain"
)

// Records es el acceso por clave a los registros del ledger dentro de una
// unidad de trabajo. Los getters devuelven domain.ErrNotFound si no existe.
type Records interface {
	Protocol(ctx context.Context) (domain.ProtocolConfig, error)
	SaveProtocol(ctx context.Context, p domain.ProtocolConfig) error

	Market(ctx context.Context, id uint64) (domain.Market, error)
	// InsertMarket falla con domain.ErrAlreadyExists si el id está en uso.
	InsertMarket(ctx context.Context, m domain.Market) error
	SaveMarket(ctx context.Context, m domain.Market) error
	ListMarkets(ctx context.Context, status domain.MarketStatus) ([]domain.Market, error)

	// Bet busca la apuesta por (market, bettor).
	Bet(ctx context.Context, marketID uint64, bettor domain.Address) (domain.Bet, error)
	// InsertBet falla con domain.ErrBetAlreadyPlaced si el par ya existe.
	InsertBet(ctx context.Context, b domain.Bet) error
	SaveBet(ctx context.Context, b domain.Bet) error
	ListBets(ctx context.Context, marketID uint64) ([]domain.Bet, error)

	License(ctx context.Context, key domain.LicenseKey) (domain.License, error)
	// InsertLicense falla con domain.ErrLicenseAlreadyExists si la clave existe.
	InsertLicense(ctx context.Context, l domain.License) error
	SaveLicense(ctx context.Context, l domain.License) error

	Oracle(ctx context.Context, id uint32) (domain.Oracle, error)
	// InsertOracle falla con domain.ErrAlreadyExists si el id está en uso.
	InsertOracle(ctx context.Context, o domain.Oracle) error
	SaveOracle(ctx context.Context, o domain.Oracle) error
}

// UnitOfWork ejecuta fn de forma atómica: si fn devuelve error no queda
// ninguna escritura de registros ni ninguna transferencia del vault.
type UnitOfWork interface {
	Atomically(ctx context.Context, fn func(ctx context.Context, recs Records, vault Vault) error) error
}
