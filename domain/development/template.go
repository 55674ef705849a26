package development

import (
	"sort"

	"github.com/shopspring/decimal"

	"qcaudit/errors"
	"qcaudit/tolerance"
	"qcaudit/validation"
)

// POM 模板测量点
type POM struct {
	Name       string              `json:"name"`
	DefaultTol decimal.Decimal     `json:"default_tol"`
	DefaultStd decimal.NullDecimal `json:"default_std"`
	Order      int                 `json:"order"`
}

// Template 测量模板，可按客户归属
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CustomerID  string `json:"customer,omitempty"`
	POMs        []POM  `json:"poms"`
}

// NewTemplate 按给定顺序编号测量点
func NewTemplate(id, name string, poms []POM) (*Template, error) {
	if err := validation.ValidateRequired(name, "name"); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(poms))
	t := &Template{ID: id, Name: name, POMs: make([]POM, 0, len(poms))}
	for i, p := range poms {
		if err := validation.ValidateRequired(p.Name, "pom_name"); err != nil {
			return nil, err
		}
		if seen[p.Name] {
			return nil, errors.NewErrorf(errors.ErrCodeValidation, "测量点重复: %s", p.Name).
				WithContext("field", "poms")
		}
		seen[p.Name] = true
		p.Order = i
		t.POMs = append(t.POMs, p)
	}
	return t, nil
}

// Seed 按测量点顺序生成空读数的测量行
func (t *Template) Seed() []tolerance.Row {
	poms := append([]POM(nil), t.POMs...)
	sort.SliceStable(poms, func(i, j int) bool { return poms[i].Order < poms[j].Order })
	rows := make([]tolerance.Row, 0, len(poms))
	for _, p := range poms {
		rows = append(rows, tolerance.Row{
			POM: p.Name,
			Tol: decimal.NewNullDecimal(p.DefaultTol),
			Std: p.DefaultStd,
		})
	}
	return rows
}

// Apply 以模板覆盖检验单的测量行
func (t *Template) Apply(in *Inspection) {
	in.TemplateID = t.ID
	in.SetMeasurements(t.Seed())
}
