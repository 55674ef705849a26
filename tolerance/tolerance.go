// Package tolerance 判定单个测量值相对标准值与公差带的状态。
package tolerance

import (
	"github.com/shopspring/decimal"
)

// Status 测量值判定结果
type Status int

const (
	Unmeasured Status = iota
	WithinTolerance
	OutOfTolerance
)

func (s Status) String() string {
	switch s {
	case WithinTolerance:
		return "WithinTolerance"
	case OutOfTolerance:
		return "OutOfTolerance"
	default:
		return "Unmeasured"
	}
}

// Evaluate 无测量值返回 Unmeasured；标准值与公差齐备且 |value-standard| > tolerance
// 时返回 OutOfTolerance；其余情况（含缺标准值或缺公差）一律 WithinTolerance。
func Evaluate(value, standard, tol decimal.NullDecimal) Status {
	if !value.Valid {
		return Unmeasured
	}
	if standard.Valid && tol.Valid && value.Decimal.Sub(standard.Decimal).Abs().GreaterThan(tol.Decimal) {
		return OutOfTolerance
	}
	return WithinTolerance
}

// Value 构造有效的可空十进制数
func Value(f float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(f))
}

// Parse 解析文本测量值，空串或非法数值视为缺失
func Parse(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// Missing 缺失值
var Missing = decimal.NullDecimal{}
