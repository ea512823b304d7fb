package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFees_Defaults(t *testing.T) {
	b, err := DefaultFeeRates().Compute(10_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), b.PoolFee)
	assert.Equal(t, uint64(50_000), b.CreatorFee)
	assert.Equal(t, uint64(50_000), b.ProtocolFee)
	assert.Equal(t, uint64(9_400_000), b.Net)
}

func TestComputeFees_Conserves(t *testing.T) {
	amounts := []uint64{1, 7, 199, 10_001, 123_456_789, math.MaxUint64}
	rates := []FeeRates{
		DefaultFeeRates(),
		{ProtocolBPS: 333, CreatorBPS: 333, PoolBPS: 334},
		{},
	}
	for _, r := range rates {
		for _, a := range amounts {
			b, err := r.Compute(a)
			require.NoError(t, err)
			assert.Equal(t, a, b.Net+b.Fees(), "amount %d rates %+v", a, r)
		}
	}
}

func TestComputeFees_TruncatesIntoNet(t *testing.T) {
	// 199 * 50 / 10000 = 0.995 → 0
	b, err := ComputeFees(199, 0, 50, 50)
	require.NoError(t, err)
	assert.Zero(t, b.CreatorFee)
	assert.Zero(t, b.ProtocolFee)
	assert.Equal(t, uint64(199), b.Net)
}

func TestComputeFees_RejectsBPSAboveDenominator(t *testing.T) {
	_, err := ComputeFees(100, BPSDenominator+1, 0, 0)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestFeeRates_Validate(t *testing.T) {
	assert.NoError(t, FeeRates{ProtocolBPS: 500, CreatorBPS: 250, PoolBPS: 250}.Validate())
	assert.ErrorIs(t, FeeRates{ProtocolBPS: 500, CreatorBPS: 250, PoolBPS: 251}.Validate(), ErrInvalidFeeConfig)
	// la suma no desborda uint16
	assert.ErrorIs(t, FeeRates{ProtocolBPS: math.MaxUint16, CreatorBPS: 1}.Validate(), ErrInvalidFeeConfig)
}

func TestMulDiv(t *testing.T) {
	q, err := MulDiv(math.MaxUint64, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/2), q)

	_, err = MulDiv(math.MaxUint64, 2, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulDiv(1, 1, 0)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = CheckedSub(1, 2)
	assert.ErrorIs(t, err, ErrOverflow)

	v, err := CheckedSub(5, 5)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestUint128_Add(t *testing.T) {
	u, err := Uint128{Lo: math.MaxUint64}.Add(1)
	require.NoError(t, err)
	assert.Equal(t, Uint128{Hi: 1, Lo: 0}, u)
	assert.Equal(t, "18446744073709551616", u.String())

	_, err = Uint128{Hi: math.MaxUint64, Lo: math.MaxUint64}.Add(1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestAmountFormatting(t *testing.T) {
	assert.Equal(t, "1.5", FormatAmount(1_500_000, 6))
	assert.Equal(t, "0", FormatAmount(0, 6))

	v, err := ParseAmount("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), v)

	_, err = ParseAmount("0.0000001", 6)
	assert.ErrorIs(t, err, ErrInvalidBetAmount)

	_, err = ParseAmount("-1", 6)
	assert.ErrorIs(t, err, ErrInvalidBetAmount)

	_, err = ParseAmount("99999999999999999999", 6)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, KindTemporal, KindOf(ErrBettingDeadlinePassed))
	assert.Equal(t, "lost_bet", CodeOf(ErrLostBet))
	assert.Equal(t, KindUnknown, KindOf(assert.AnError))
	assert.Equal(t, "internal", CodeOf(assert.AnError))
}
