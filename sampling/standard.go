package sampling

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Standard AQL 标准名
type Standard string

const (
	StandardNormal Standard = "standard"
	StandardStrict Standard = "strict"
)

// ParseStandard 解析标准名，未知值一律按 standard 处理
func ParseStandard(s string) Standard {
	if Standard(strings.ToLower(strings.TrimSpace(s))) == StandardStrict {
		return StandardStrict
	}
	return StandardNormal
}

// Levels 三类缺陷的 AQL 百分比
type Levels struct {
	Critical decimal.Decimal `json:"critical"`
	Major    decimal.Decimal `json:"major"`
	Minor    decimal.Decimal `json:"minor"`
}

// Resolve 标准到 AQL 三元组的全映射，不会报错
func Resolve(s Standard) Levels {
	if s == StandardStrict {
		return Levels{Critical: AQL0, Major: AQL15, Minor: AQL25}
	}
	return Levels{Critical: AQL0, Major: AQL25, Minor: AQL40}
}

// Limits 三类缺陷的允收数
type Limits struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
}

// Misses 记录查表未命中的严重度（按 0 处理）
type Misses []string

// LimitsFor 按样本量与 AQL 三元组查出允收数
func LimitsFor(sampleSize int, levels Levels) (Limits, Misses) {
	var misses Misses
	get := func(name string, aql decimal.Decimal) int {
		n, ok := Lookup(sampleSize, aql)
		if !ok {
			misses = append(misses, name)
		}
		return n
	}
	return Limits{
		Critical: get("critical", levels.Critical),
		Major:    get("major", levels.Major),
		Minor:    get("minor", levels.Minor),
	}, misses
}
