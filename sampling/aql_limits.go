package sampling

import (
	"sort"

	"github.com/shopspring/decimal"
)

// 常用 AQL 百分比
var (
	AQL0  = decimal.Zero
	AQL15 = decimal.RequireFromString("1.5")
	AQL25 = decimal.RequireFromString("2.5")
	AQL40 = decimal.RequireFromString("4.0")
)

type limitColumn struct {
	aql decimal.Decimal
	ac  [len(SampleSizes)]int // 与 SampleSizes 一一对应
}

// 允收数 Ac。1.5% 未制表，查询视为未命中。
var limitTable = [...]limitColumn{
	{aql: AQL0, ac: [len(SampleSizes)]int{0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 2}},
	{aql: AQL25, ac: [len(SampleSizes)]int{0, 1, 1, 1, 2, 3, 5, 7, 10, 14, 21, 21}},
	{aql: AQL40, ac: [len(SampleSizes)]int{1, 1, 2, 3, 5, 7, 10, 14, 21, 21, 21, 21}},
}

// Lookup 查询允收数；ok=false 表示表中无此组合
func Lookup(sampleSize int, aql decimal.Decimal) (maxAllowed int, ok bool) {
	row := sort.SearchInts(SampleSizes[:], sampleSize)
	if row == len(SampleSizes) || SampleSizes[row] != sampleSize {
		return 0, false
	}
	for i := range limitTable {
		if limitTable[i].aql.Equal(aql) {
			return limitTable[i].ac[row], true
		}
	}
	return 0, false
}

// MaxAllowed 查询允收数，未命中返回 0（放行默认值）
func MaxAllowed(sampleSize int, aql decimal.Decimal) int {
	n, _ := Lookup(sampleSize, aql)
	return n
}

// TabulatedAQLs 返回已制表的 AQL 百分比（升序）
func TabulatedAQLs() []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(limitTable))
	for _, col := range limitTable {
		out = append(out, col.aql)
	}
	return out
}
