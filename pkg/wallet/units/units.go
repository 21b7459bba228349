package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayPrecision 是展示金额时保留的小数位数
const DisplayPrecision = 5

var (
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrTooManyDecimals = errors.New("amount has more fractional digits than the chain supports")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// ToMinimal 将人类可读金额 (例如 "1.2345") 精确转换为链上最小单位 (Planck)
// decimals: 链的精度 (DOT = 10, KSM = 12)
// 只做一次 decimal shift，不经过 float
func ToMinimal(amount string, decimals int32) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}

	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, ErrTooManyDecimals
	}
	return shifted.BigInt(), nil
}

// FromMinimal 将最小单位转换回人类可读金额，截断 (不四舍五入) 到 precision 位小数
// 例如 FromMinimal(1234500000000, 12, 5) = "1.23450"
func FromMinimal(value *big.Int, decimals int32, precision int32) string {
	if value == nil {
		value = new(big.Int)
	}
	return decimal.NewFromBigInt(value, -decimals).Truncate(precision).StringFixed(precision)
}

// Format 使用默认展示精度并附加币种符号
func Format(value *big.Int, decimals int32, symbol string) string {
	s := FromMinimal(value, decimals, DisplayPrecision)
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}
