package tolerance

import "github.com/shopspring/decimal"

// ReadingsPerRow 每个测量点最多六个读数（s1..s6）
const ReadingsPerRow = 6

// Row 一个测量点（POM）的一行读数
type Row struct {
	POM      string                              `json:"pom_name"`
	Tol      decimal.NullDecimal                 `json:"tol"`
	Std      decimal.NullDecimal                 `json:"std"`
	SizeName string                              `json:"size_name,omitempty"`
	Readings [ReadingsPerRow]decimal.NullDecimal `json:"readings"`
}

// Graded 行判定结果
type Graded struct {
	Cells    [ReadingsPerRow]Status
	Measured int
	OutCount int
}

// Failed 任一读数超差即整行不合格
func (g Graded) Failed() bool { return g.OutCount > 0 }

// EvaluateRow 逐读数判定
func EvaluateRow(r Row) Graded {
	var g Graded
	for i, v := range r.Readings {
		st := Evaluate(v, r.Std, r.Tol)
		g.Cells[i] = st
		switch st {
		case OutOfTolerance:
			g.OutCount++
			g.Measured++
		case WithinTolerance:
			g.Measured++
		}
	}
	return g
}

// AnyFailed 任一行超差
func AnyFailed(rows []Row) bool {
	for _, r := range rows {
		if EvaluateRow(r).Failed() {
			return true
		}
	}
	return false
}
