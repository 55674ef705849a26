package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"qcaudit/domain/audit"
)

// RecentLimit 看板最近记录条数
const RecentLimit = 5

// Dashboard 终检看板统计
type Dashboard struct {
	Total     int             `json:"total_inspections"`
	PassCount int             `json:"pass_count"`
	FailCount int             `json:"fail_count"`
	Pending   int             `json:"pending_count"`
	PassRate  decimal.Decimal `json:"pass_rate"`
	Recent    []RecentItem    `json:"recent_inspections"`
}

// RecentItem 看板列表项
type RecentItem struct {
	ID             int64        `json:"id"`
	OrderNo        string       `json:"order_no"`
	StyleNo        string       `json:"style_no"`
	CustomerName   string       `json:"customer_name"`
	InspectionDate time.Time    `json:"inspection_date"`
	Result         audit.Result `json:"result"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Summarize 统计通过率（占全部记录，保留一位小数）与最近创建的 5 条
func Summarize(records []*audit.Record) Dashboard {
	d := Dashboard{Total: len(records)}
	for _, r := range records {
		switch r.Result() {
		case audit.Pass:
			d.PassCount++
		case audit.Fail:
			d.FailCount++
		default:
			d.Pending++
		}
	}
	d.PassRate = PassRate(d.PassCount, d.Total)

	sorted := append([]*audit.Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})
	if len(sorted) > RecentLimit {
		sorted = sorted[:RecentLimit]
	}
	d.Recent = make([]RecentItem, 0, len(sorted))
	for _, r := range sorted {
		d.Recent = append(d.Recent, RecentItem{
			ID:             r.ID,
			OrderNo:        r.Header.OrderNo,
			StyleNo:        r.Header.StyleNo,
			CustomerName:   r.Header.Customer.Name,
			InspectionDate: r.Header.InspectionDate,
			Result:         r.Result(),
			CreatedAt:      r.CreatedAt,
		})
	}
	return d
}

// PassRate pass/total 的百分比，保留一位小数；total 为 0 时为 0
func PassRate(pass, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(pass)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(1)
}
