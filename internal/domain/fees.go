package domain

import "math/bits"

const (
	// BPSDenominator es el denominador fijo de los basis points.
	BPSDenominator = 10000

	DefaultProtocolFeeBPS uint16 = 50  // 0.5%
	DefaultCreatorFeeBPS  uint16 = 50  // 0.5%
	DefaultPoolFeeBPS     uint16 = 500 // 5%

	// MaxTotalFeeBPS es el techo de la suma de las tres fees (10%).
	MaxTotalFeeBPS = 1000
)

// FeeRates agrupa las tres tasas en basis points.
type FeeRates struct {
	ProtocolBPS uint16 `json:"protocol_fee_bps" yaml:"protocol_fee_bps"`
	CreatorBPS  uint16 `json:"creator_fee_bps" yaml:"creator_fee_bps"`
	PoolBPS     uint16 `json:"pool_fee_bps" yaml:"pool_fee_bps"`
}

// DefaultFeeRates devuelve las tasas por defecto del protocolo.
func DefaultFeeRates() FeeRates {
	return FeeRates{
		ProtocolBPS: DefaultProtocolFeeBPS,
		CreatorBPS:  DefaultCreatorFeeBPS,
		PoolBPS:     DefaultPoolFeeBPS,
	}
}

// Total devuelve la suma de las tres tasas sin riesgo de overflow en uint16.
func (r FeeRates) Total() uint32 {
	return uint32(r.ProtocolBPS) + uint32(r.CreatorBPS) + uint32(r.PoolBPS)
}

// Validate comprueba el techo de MaxTotalFeeBPS.
func (r FeeRates) Validate() error {
	if r.Total() > MaxTotalFeeBPS {
		return ErrInvalidFeeConfig
	}
	return nil
}

// FeeBreakdown es el reparto de un stake fijo.
type FeeBreakdown struct {
	PoolFee     uint64 `json:"pool_fee"`
	CreatorFee  uint64 `json:"creator_fee"`
	ProtocolFee uint64 `json:"protocol_fee"`
	Net         uint64 `json:"net_amount"`
}

// Fees devuelve la suma de las tres fees.
func (b FeeBreakdown) Fees() uint64 {
	return b.PoolFee + b.CreatorFee + b.ProtocolFee
}

// ComputeFees reparte amount en fees y neto. Cada fee es floor(amount*bps/10000)
// con intermedio de 128 bits; el residuo del truncado queda en el neto.
func ComputeFees(amount uint64, poolBPS, creatorBPS, protocolBPS uint16) (FeeBreakdown, error) {
	pool, err := bpsOf(amount, poolBPS)
	if err != nil {
		return FeeBreakdown{}, err
	}
	creator, err := bpsOf(amount, creatorBPS)
	if err != nil {
		return FeeBreakdown{}, err
	}
	protocol, err := bpsOf(amount, protocolBPS)
	if err != nil {
		return FeeBreakdown{}, err
	}

	fees, carry := bits.Add64(pool, creator, 0)
	fees, carry2 := bits.Add64(fees, protocol, 0)
	if carry != 0 || carry2 != 0 || fees > amount {
		return FeeBreakdown{}, ErrOverflow
	}

	return FeeBreakdown{
		PoolFee:     pool,
		CreatorFee:  creator,
		ProtocolFee: protocol,
		Net:         amount - fees,
	}, nil
}

// Compute aplica ComputeFees con las tasas dadas.
func (r FeeRates) Compute(amount uint64) (FeeBreakdown, error) {
	return ComputeFees(amount, r.PoolBPS, r.CreatorBPS, r.ProtocolBPS)
}

func bpsOf(amount uint64, bps uint16) (uint64, error) {
	if bps > BPSDenominator {
		return 0, ErrOverflow
	}
	return MulDiv(amount, uint64(bps), BPSDenominator)
}

// MulDiv calcula floor(a*b/d) con producto de 128 bits.
// Falla con ErrOverflow si d es 0 o si el cociente no cabe en 64 bits.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// CheckedAdd suma dos uint64 devolviendo ErrOverflow si desborda.
func CheckedAdd(a, b uint64) (uint64, error) {
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return s, nil
}

// CheckedSub resta b de a devolviendo ErrOverflow si a < b.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}
