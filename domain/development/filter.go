package development

import (
	"sort"
	"strings"
	"time"
)

// Filter 开发检验查询条件，零值表示不过滤
type Filter struct {
	Decisions  []Decision
	Stages     []Stage
	CustomerID string

	// 创建日期闭区间，按日比较
	From time.Time
	To   time.Time

	// Search 款号、PO、客户名、创建人的不区分大小写子串匹配
	Search string
}

// Match 判断单条检验单
func (f Filter) Match(in *Inspection) bool {
	if len(f.Decisions) > 0 && !contains(f.Decisions, in.Decision) {
		return false
	}
	if len(f.Stages) > 0 && !contains(f.Stages, in.Stage) {
		return false
	}
	if f.CustomerID != "" && in.Customer.ID != f.CustomerID {
		return false
	}
	day := truncateDay(in.CreatedAt)
	if !f.From.IsZero() && day.Before(truncateDay(f.From)) {
		return false
	}
	if !f.To.IsZero() && day.After(truncateDay(f.To)) {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	for _, v := range []string{in.Style, in.PONumber, in.Customer.Name, in.CreatedBy} {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

// Apply 过滤后按创建时间倒序
func (f Filter) Apply(list []*Inspection) []*Inspection {
	out := make([]*Inspection, 0, len(list))
	for _, in := range list {
		if f.Match(in) {
			out = append(out, in)
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(list []*Inspection) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
