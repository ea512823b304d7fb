package domain

import (
	"fmt"
	"math/big"
	"math/bits"
	"strings"

	"github.com/shopspring/decimal"
)

// Address identifica a un caller ya autenticado (wallet, authority, holder).
type Address string

// MaxAddressLen acota la longitud de una identidad.
const MaxAddressLen = 64

// Validate rechaza identidades vacías, demasiado largas o con '/' (reservado
// para las cuentas de pool del vault).
func (a Address) Validate() error {
	if a == "" || len(a) > MaxAddressLen || strings.ContainsAny(string(a), "/ \t\n") {
		return ErrInvalidAddress
	}
	return nil
}

// Account es la cuenta del vault asociada a esta identidad.
func (a Address) Account() Account { return Account(a) }

// Account es una cuenta del vault: una identidad o un pool de mercado.
type Account string

// MarketVault es el pool que guarda los stakes netos del mercado.
func MarketVault(marketID uint64) Account {
	return Account(fmt.Sprintf("market/%d/vault", marketID))
}

// BonusVault es el pool que acumula las pool fees del mercado.
func BonusVault(marketID uint64) Account {
	return Account(fmt.Sprintf("market/%d/bonus", marketID))
}

// VaultAuthority autoriza retiros desde los pools de un mercado.
type VaultAuthority struct {
	MarketID uint64
}

// Controls indica si la autoridad controla la cuenta dada.
func (va VaultAuthority) Controls(acct Account) bool {
	return acct == MarketVault(va.MarketID) || acct == BonusVault(va.MarketID)
}

// Uint128 es un contador de 128 bits (volumen total del protocolo).
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// Add suma un uint64. Devuelve ErrOverflow si se superan los 128 bits.
func (u Uint128) Add(v uint64) (Uint128, error) {
	lo, carry := bits.Add64(u.Lo, v, 0)
	hi, carry := bits.Add64(u.Hi, 0, carry)
	if carry != 0 {
		return u, ErrOverflow
	}
	return Uint128{Hi: hi, Lo: lo}, nil
}

// Big devuelve el valor como *big.Int.
func (u Uint128) Big() *big.Int {
	n := new(big.Int).SetUint64(u.Hi)
	n.Lsh(n, 64)
	return n.Or(n, new(big.Int).SetUint64(u.Lo))
}

func (u Uint128) String() string { return u.Big().String() }

// MarshalText serializa el valor en decimal para JSON.
func (u Uint128) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

// FormatAmount muestra una cantidad en la unidad mínima con los decimales del token.
// FormatAmount(1500000, 6) → "1.5".
func FormatAmount(amount uint64, decimals int32) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals)
	return d.String()
}

// ParseAmount convierte "1.5" con 6 decimales en 1500000. Rechaza valores
// negativos, con más precisión que la del token o que no caben en uint64.
func ParseAmount(s string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("domain.ParseAmount: %q: %w", s, ErrInvalidBetAmount)
	}
	scaled := d.Shift(decimals)
	if scaled.IsNegative() || !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("domain.ParseAmount: %q: %w", s, ErrInvalidBetAmount)
	}
	n := scaled.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("domain.ParseAmount: %q: %w", s, ErrOverflow)
	}
	return n.Uint64(), nil
}
