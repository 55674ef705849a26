package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"qcaudit/domain/audit"
	"qcaudit/sampling"
	"qcaudit/tolerance"
)

// View 终检报告只读视图
type View struct {
	RecordID  int64
	Title     string
	FileName  string
	Header    audit.Header
	Inputs    audit.Inputs
	Derived   audit.Derived
	Decision  string
	Checklist []ChecklistItem
	Defects   []DefectLine
	Sizes     []SizeLine
	SizeTotal SizeLine
	Rows      []MeasurementLine
	Images    []audit.ImageRef
}

type ChecklistItem struct {
	Label  string
	Status audit.CheckStatus
}

// DefectLine 缺陷按严重度分组后的一行
type DefectLine struct {
	Severity    audit.Severity
	Description string
	Count       int
	PhotoRef    string
}

type SizeLine struct {
	Size             string
	Ordered          int
	Packed           int
	Difference       int
	DeviationPercent decimal.Decimal
}

// Cell 一个读数格
type Cell struct {
	Value  decimal.NullDecimal
	Status tolerance.Status
}

type MeasurementLine struct {
	POM      string
	SizeName string
	Tol      decimal.NullDecimal
	Std      decimal.NullDecimal
	Cells    [tolerance.ReadingsPerRow]Cell
	Failed   bool
}

// Build 由记录生成报告视图；不修改记录
func Build(rec *audit.Record) View {
	v := View{
		RecordID: rec.ID,
		Title:    "FINAL INSPECTION REPORT",
		FileName: FileName(rec),
		Header:   rec.Header,
		Inputs:   rec.Inputs(),
		Derived:  rec.Derived(),
		Decision: decisionLabel(rec.Result()),
	}
	v.Checklist = checklist(rec.Header.Checklist)
	v.Defects = defectLines(rec.Entries())
	v.Sizes, v.SizeTotal = sizeLines(rec.SizeChecks())
	for _, m := range rec.Measurements() {
		v.Rows = append(v.Rows, measurementLine(m.Row))
	}
	v.Images = rec.Images()
	sort.SliceStable(v.Images, func(i, j int) bool { return v.Images[i].Order < v.Images[j].Order })
	return v
}

// LimitSummary 报告页眉上的 AQL 说明行
func (v View) LimitSummary() []LimitLine {
	d := v.Derived
	return []LimitLine{
		{Severity: audit.Critical, AQL: d.AQL.Critical, MaxAllowed: d.Limits.Critical, Found: d.Found.Critical},
		{Severity: audit.Major, AQL: d.AQL.Major, MaxAllowed: d.Limits.Major, Found: d.Found.Major},
		{Severity: audit.Minor, AQL: d.AQL.Minor, MaxAllowed: d.Limits.Minor, Found: d.Found.Minor},
	}
}

type LimitLine struct {
	Severity   audit.Severity
	AQL        decimal.Decimal
	MaxAllowed int
	Found      int
}

// Exceeded 本严重度是否超出允收数
func (l LimitLine) Exceeded() bool { return l.Found > l.MaxAllowed }

// StandardLabel 标准名的展示文本
func (v View) StandardLabel() string {
	if v.Inputs.Standard == sampling.StandardStrict {
		return "Strict"
	}
	return "Standard"
}

func decisionLabel(r audit.Result) string {
	switch r {
	case audit.Pass:
		return "PASS"
	case audit.Fail:
		return "FAIL"
	default:
		return "PENDING"
	}
}

func checklist(c audit.Checklist) []ChecklistItem {
	items := []ChecklistItem{
		{"Quantity Check", c.QuantityCheck},
		{"Workmanship", c.Workmanship},
		{"Packing Method", c.PackingMethod},
		{"Marking & Label", c.MarkingLabel},
		{"Data Measurement", c.DataMeasurement},
		{"Hand Feel", c.HandFeel},
	}
	for i := range items {
		if items[i].Status == "" {
			items[i].Status = audit.CheckNA
		}
	}
	return items
}

// defectLines 致命、严重、轻微依次排列，组内保持录入顺序
func defectLines(entries []audit.DefectEntry) []DefectLine {
	out := make([]DefectLine, 0, len(entries))
	for _, sev := range audit.Severities {
		for _, e := range entries {
			if e.Severity == sev {
				out = append(out, DefectLine{Severity: e.Severity, Description: e.Description, Count: e.Count, PhotoRef: e.PhotoRef})
			}
		}
	}
	return out
}

func sizeLines(rows []audit.SizeCheck) ([]SizeLine, SizeLine) {
	out := make([]SizeLine, 0, len(rows))
	total := audit.SizeCheck{Size: "Total"}
	for _, r := range rows {
		out = append(out, sizeLine(r))
		total.OrderedQty += r.OrderedQty
		total.PackedQty += r.PackedQty
	}
	return out, sizeLine(total)
}

func sizeLine(r audit.SizeCheck) SizeLine {
	return SizeLine{
		Size:             r.Size,
		Ordered:          r.OrderedQty,
		Packed:           r.PackedQty,
		Difference:       r.Difference(),
		DeviationPercent: r.DeviationPercent(),
	}
}

func measurementLine(r tolerance.Row) MeasurementLine {
	g := tolerance.EvaluateRow(r)
	line := MeasurementLine{POM: r.POM, SizeName: r.SizeName, Tol: r.Tol, Std: r.Std, Failed: g.Failed()}
	for i := range r.Readings {
		line.Cells[i] = Cell{Value: r.Readings[i], Status: g.Cells[i]}
	}
	return line
}
