package development

import "github.com/shopspring/decimal"

const recentLimit = 5

// Dashboard 开发检验看板
type Dashboard struct {
	Total    int             `json:"total_inspections"`
	Passed   int             `json:"pass_count"`
	Failed   int             `json:"fail_count"`
	PassRate decimal.Decimal `json:"pass_rate"`
	Recent   []*Inspection   `json:"recent_inspections"`
}

// Summarize Accepted 计为通过，Rejected 计为不通过；Represent 与未下结论只计入总数
func Summarize(list []*Inspection) Dashboard {
	d := Dashboard{Total: len(list)}
	for _, in := range list {
		switch in.Decision {
		case Accepted:
			d.Passed++
		case Rejected:
			d.Failed++
		}
	}
	if d.Total > 0 {
		d.PassRate = decimal.NewFromInt(int64(d.Passed)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(d.Total))).
			Round(1)
	}

	recent := append([]*Inspection(nil), list...)
	sortNewestFirst(recent)
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	d.Recent = recent
	return d
}
