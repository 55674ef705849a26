package audit

import (
	"qcaudit/errors"
	"qcaudit/sampling"
	"qcaudit/validation"
)

// Inputs 调用方可设置的推导输入
type Inputs struct {
	TotalOrderQty int               `json:"total_order_qty"`
	PresentedQty  int               `json:"presented_qty"`
	Standard      sampling.Standard `json:"aql_standard"`
	Attempt       Attempt           `json:"inspection_attempt"`

	// SampleSizeOverride 大于 0 表示人工指定样本量，推导时保持不变
	SampleSizeOverride int `json:"sample_size_override,omitempty"`
}

// Validate 推导前的契约校验：数量非负、轮次合法
func (in Inputs) Validate() error {
	if err := validation.All(
		validation.ValidateNonNegative(in.TotalOrderQty, "订单总数"),
		validation.ValidateNonNegative(in.PresentedQty, "送检数量"),
		validation.ValidateNonNegative(in.SampleSizeOverride, "样本量"),
	); err != nil {
		return err
	}
	if _, err := ParseAttempt(string(in.Attempt)); err != nil {
		return err
	}
	return nil
}

func (in Inputs) normalized() Inputs {
	in.Standard = sampling.ParseStandard(string(in.Standard))
	if in.Attempt == "" {
		in.Attempt = FirstAttempt
	}
	return in
}

// Derived 推导字段，调用方不可直接设置
type Derived struct {
	SampleSize int             `json:"sample_size"`
	AQL        sampling.Levels `json:"aql"`
	Limits     sampling.Limits `json:"max_allowed"`
	Found      Tally           `json:"found"`
	Result     Result          `json:"result"`

	// LimitMisses 查表未命中、按 0 处理的严重度
	LimitMisses sampling.Misses `json:"limit_misses,omitempty"`
}

// Exceeds 任一严重度的计数超过允收数
func (d Derived) Exceeds() bool {
	return d.Found.Critical > d.Limits.Critical ||
		d.Found.Major > d.Limits.Major ||
		d.Found.Minor > d.Limits.Minor
}

// Derive 纯函数：标准 → 样本量 → 允收数 → 判定。
// 输入违反契约时在推导前返回验证错误。
func Derive(in Inputs, entries []DefectEntry) (Derived, error) {
	if err := in.Validate(); err != nil {
		return Derived{}, err
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return Derived{}, err
		}
	}
	in = in.normalized()
	return derive(in, TallyOf(entries)), nil
}

func derive(in Inputs, found Tally) Derived {
	d := Derived{
		AQL:   sampling.Resolve(in.Standard),
		Found: found,
	}
	if in.SampleSizeOverride > 0 {
		d.SampleSize = in.SampleSizeOverride
	} else {
		d.SampleSize = sampling.SampleSize(sampling.LotBasis(in.TotalOrderQty, in.PresentedQty))
	}
	d.Limits, d.LimitMisses = sampling.LimitsFor(d.SampleSize, d.AQL)
	d.Result = Pass
	if d.Exceeds() {
		d.Result = Fail
	}
	return d
}

// Preview 预览结果
type Preview struct {
	SampleSize   int               `json:"sample_size"`
	Limits       sampling.Limits   `json:"limits"`
	Result       Result            `json:"result"`
	StandardUsed sampling.Standard `json:"standard_used"`
	Levels       sampling.Levels   `json:"aql"`
	LimitMisses  sampling.Misses   `json:"limit_misses,omitempty"`
}

// ComputeAudit 无状态预览：不需要持久化的台账即可得到样本量、允收数与判定
func ComputeAudit(qty int, standard string, criticalFound, majorFound, minorFound int) (Preview, error) {
	if err := validation.All(
		validation.ValidateNonNegative(qty, "批量"),
		validation.ValidateNonNegative(criticalFound, "致命缺陷数"),
		validation.ValidateNonNegative(majorFound, "严重缺陷数"),
		validation.ValidateNonNegative(minorFound, "轻微缺陷数"),
	); err != nil {
		return Preview{}, err
	}
	in := Inputs{TotalOrderQty: qty, Standard: sampling.Standard(standard)}.normalized()
	d := derive(in, Tally{Critical: criticalFound, Major: majorFound, Minor: minorFound})
	return Preview{
		SampleSize:   d.SampleSize,
		Limits:       d.Limits,
		Result:       d.Result,
		StandardUsed: in.Standard,
		Levels:       d.AQL,
		LimitMisses:  d.LimitMisses,
	}, nil
}

// checkLedger 重新求和并与已存计数比对；不一致说明漏掉了重新推导
func checkLedger(found Tally, entries []DefectEntry) errors.IError {
	if actual := TallyOf(entries); actual != found {
		return errors.NewErrorf(errors.ErrCodeInternal,
			"缺陷台账不一致: 记录 %s, 条目求和 %s", found, actual)
	}
	return nil
}
