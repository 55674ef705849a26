package repository

import (
	"sort"
	"strings"
	"time"

	"qcaudit/domain/audit"
)

// Filter 审核记录查询条件，零值表示不过滤
type Filter struct {
	Results    []audit.Result
	CustomerID string

	// 检验日期闭区间，按日比较
	From time.Time
	To   time.Time

	// Search 在订单号、款号、客户名、创建人中做不区分大小写的子串匹配
	Search string

	Offset int
	Limit  int
}

// Match 判断快照是否满足条件（不含分页）
func (f Filter) Match(s audit.Snapshot) bool {
	if len(f.Results) > 0 && !containsResult(f.Results, s.Derived.Result) {
		return false
	}
	if f.CustomerID != "" && s.Header.Customer.ID != f.CustomerID {
		return false
	}
	day := truncateDay(s.Header.InspectionDate)
	if !f.From.IsZero() && day.Before(truncateDay(f.From)) {
		return false
	}
	if !f.To.IsZero() && day.After(truncateDay(f.To)) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		h := s.Header
		fields := []string{h.OrderNo, h.StyleNo, h.Customer.Name, h.CreatedBy}
		hit := false
		for _, v := range fields {
			if strings.Contains(strings.ToLower(v), q) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Apply 过滤、排序并分页，供内存型存储复用
func (f Filter) Apply(snaps []audit.Snapshot) []audit.Snapshot {
	out := make([]audit.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	SortNewestFirst(out)
	return f.Page(out)
}

// Page 按 Offset/Limit 截取
func (f Filter) Page(snaps []audit.Snapshot) []audit.Snapshot {
	if f.Offset > 0 {
		if f.Offset >= len(snaps) {
			return nil
		}
		snaps = snaps[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(snaps) {
		snaps = snaps[:f.Limit]
	}
	return snaps
}

// SortNewestFirst 检验日期倒序，同日按 ID 倒序
func SortNewestFirst(snaps []audit.Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool {
		di, dj := snaps[i].Header.InspectionDate, snaps[j].Header.InspectionDate
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return snaps[i].ID > snaps[j].ID
	})
}

func containsResult(set []audit.Result, r audit.Result) bool {
	for _, v := range set {
		if v == r {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
