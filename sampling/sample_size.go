// Package sampling 实现 ISO 2859-1 一般检验水平 II 的单次抽样查表：
// 批量到样本量、(样本量, AQL) 到允收数，以及标准名到三类 AQL 的解析。
package sampling

import "sort"

type sizeBucket struct {
	upTo int // 含上界
	size int
}

// 严格升序，首个命中即返回；最后一档无上界
var sizeBuckets = [...]sizeBucket{
	{8, 8}, {15, 8}, {25, 8}, {50, 8},
	{90, 13}, {150, 20}, {280, 32}, {500, 50},
	{1200, 80}, {3200, 125}, {10000, 200}, {35000, 315},
	{150000, 500}, {500000, 800},
}

const unboundedSampleSize = 1250

// SampleSizes 全部样本量档位（升序，去重）
var SampleSizes = [...]int{8, 13, 20, 32, 50, 80, 125, 200, 315, 500, 800, 1250}

// SampleSize 返回批量 lotQty 对应的样本量。
// 负数属于调用方契约违反，应在调用前拒绝；这里按 0 处理。
func SampleSize(lotQty int) int {
	i := sort.Search(len(sizeBuckets), func(i int) bool {
		return lotQty <= sizeBuckets[i].upTo
	})
	if i == len(sizeBuckets) {
		return unboundedSampleSize
	}
	return sizeBuckets[i].size
}

// IsSampleSize 判断 n 是否为标准档位之一
func IsSampleSize(n int) bool {
	i := sort.SearchInts(SampleSizes[:], n)
	return i < len(SampleSizes) && SampleSizes[i] == n
}

// LotBasis 抽样基数：送检数量大于 0 时取送检数量，否则取订单总数
func LotBasis(totalOrderQty, presentedQty int) int {
	if presentedQty > 0 {
		return presentedQty
	}
	return totalOrderQty
}

// LotRange 一档批量区间，To 为 0 表示无上界
type LotRange struct {
	From       int `json:"from"`
	To         int `json:"to"`
	SampleSize int `json:"sample_size"`
}

// LotRanges 按升序列出全部批量区间
func LotRanges() []LotRange {
	out := make([]LotRange, 0, len(sizeBuckets)+1)
	from := 0
	for _, b := range sizeBuckets {
		out = append(out, LotRange{From: from, To: b.upTo, SampleSize: b.size})
		from = b.upTo + 1
	}
	return append(out, LotRange{From: from, SampleSize: unboundedSampleSize})
}
