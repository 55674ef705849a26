package audit

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"qcaudit/tolerance"
	"qcaudit/validation"
)

// SizeCheck 尺码装箱核对行
type SizeCheck struct {
	ID         string `json:"id"`
	Size       string `json:"size"`
	OrderedQty int    `json:"order_qty"`
	PackedQty  int    `json:"packed_qty"`
}

// NewSizeCheck 创建尺码核对行
func NewSizeCheck(size string, ordered, packed int) (SizeCheck, error) {
	sc := SizeCheck{ID: uuid.NewString(), Size: size, OrderedQty: ordered, PackedQty: packed}
	return sc, sc.Validate()
}

func (s SizeCheck) Validate() error {
	return validation.All(
		validation.ValidateNonNegative(s.OrderedQty, "订单数量"),
		validation.ValidateNonNegative(s.PackedQty, "装箱数量"),
	)
}

// Difference 装箱数 - 订单数
func (s SizeCheck) Difference() int {
	return s.PackedQty - s.OrderedQty
}

// DeviationPercent 差异占订单数的百分比，保留两位小数；订单数为 0 时为 0
func (s SizeCheck) DeviationPercent() decimal.Decimal {
	if s.OrderedQty == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.Difference())).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(s.OrderedQty))).
		Round(2)
}

// Measurement 终检测量行
type Measurement struct {
	ID string `json:"id"`
	tolerance.Row
}

// NewMeasurement 创建测量行
func NewMeasurement(row tolerance.Row) Measurement {
	return Measurement{ID: uuid.NewString(), Row: row}
}

// ImageRef 图片引用，内容由外部存储负责
type ImageRef struct {
	ID       string `json:"id"`
	Ref      string `json:"image"`
	Caption  string `json:"caption"`
	Category string `json:"category,omitempty"`
	Order    int    `json:"order"`
}
