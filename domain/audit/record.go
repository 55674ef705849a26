package audit

import (
	"time"

	"github.com/shopspring/decimal"

	"qcaudit/domain/entity"
	"qcaudit/errors"
	"qcaudit/validation"
)

// AggregateType 审核记录聚合类型名
const AggregateType = "FinalInspection"

// Customer 客户引用
type Customer struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Cartons 装箱信息
type Cartons struct {
	Total       int                 `json:"total_cartons"`
	Selected    int                 `json:"selected_cartons"`
	Length      decimal.NullDecimal `json:"carton_length"`
	Width       decimal.NullDecimal `json:"carton_width"`
	Height      decimal.NullDecimal `json:"carton_height"`
	GrossWeight decimal.NullDecimal `json:"gross_weight"`
	NetWeight   decimal.NullDecimal `json:"net_weight"`
}

// Checklist 终检检查项
type Checklist struct {
	QuantityCheck   CheckStatus `json:"quantity_check"`
	Workmanship     CheckStatus `json:"workmanship"`
	PackingMethod   CheckStatus `json:"packing_method"`
	MarkingLabel    CheckStatus `json:"marking_label"`
	DataMeasurement CheckStatus `json:"data_measurement"`
	HandFeel        CheckStatus `json:"hand_feel"`
}

// Header 描述性字段，不参与推导
type Header struct {
	Customer       Customer  `json:"customer"`
	Supplier       string    `json:"supplier"`
	Factory        string    `json:"factory"`
	InspectionDate time.Time `json:"inspection_date"`
	OrderNo        string    `json:"order_no"`
	StyleNo        string    `json:"style_no"`
	Color          string    `json:"color"`
	Cartons        Cartons   `json:"cartons"`
	Checklist      Checklist `json:"checklist"`
	Remarks        string    `json:"remarks"`
	CreatedBy      string    `json:"created_by"`
}

// Validate 校验装箱数量
func (h Header) Validate() error {
	return validation.All(
		validation.ValidateNonNegative(h.Cartons.Total, "总箱数"),
		validation.ValidateNonNegative(h.Cartons.Selected, "抽箱数"),
	)
}

// Record 审核记录聚合根
//
// 所有输入与缺陷条目的修改都在返回前完成完整的重新推导，
// 推导字段只读。Record 本身不加锁，同一记录的并发修改由调用方串行化。
type Record struct {
	entity.Aggregate[int64]
	Header Header

	inputs       Inputs
	derived      Derived
	ledger       Ledger
	sizeChecks   []SizeCheck
	measurements []Measurement
	images       []ImageRef
}

// NewRecord 创建审核记录，结果为 Pending，直到首次推导
func NewRecord(id int64, header Header, in Inputs) (*Record, error) {
	if err := header.Validate(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	r := &Record{Header: header, inputs: in.normalized()}
	r.ID = id
	r.derived.Result = Pending
	return r, nil
}

func (r *Record) GetAggregateType() string { return AggregateType }

func (r *Record) Inputs() Inputs   { return r.inputs }
func (r *Record) Derived() Derived { return r.derived }
func (r *Record) Result() Result   { return r.derived.Result }

// Entries 缺陷条目副本
func (r *Record) Entries() []DefectEntry { return r.ledger.Entries() }

// Entry 按 ID 取缺陷条目
func (r *Record) Entry(id string) (DefectEntry, bool) { return r.ledger.Find(id) }

func (r *Record) SizeChecks() []SizeCheck {
	return append([]SizeCheck(nil), r.sizeChecks...)
}

func (r *Record) Measurements() []Measurement {
	return append([]Measurement(nil), r.measurements...)
}

func (r *Record) Images() []ImageRef {
	return append([]ImageRef(nil), r.images...)
}

// SetInputs 替换推导输入并重新推导
func (r *Record) SetInputs(in Inputs) error {
	if err := in.Validate(); err != nil {
		return err
	}
	r.inputs = in.normalized()
	return r.OnInputChanged()
}

// OnInputChanged 输入变化钩子：完整重新推导
func (r *Record) OnInputChanged() error {
	r.rederive(OpInputs, "")
	return nil
}

// OnDefectEntryChanged 缺陷条目变化钩子：重新汇总并推导。
// 条目须已在台账中完成对应的插入、更新或删除。
func (r *Record) OnDefectEntryChanged(entry DefectEntry, op Op) error {
	switch op {
	case OpInsert, OpUpdate, OpDelete, OpReplace:
	default:
		return errors.NewErrorf(errors.ErrCodeValidation, "未知的缺陷操作: %q", op)
	}
	r.rederive(op, entry.ID)
	return nil
}

// AddDefect 插入缺陷条目
func (r *Record) AddDefect(e DefectEntry) (DefectEntry, error) {
	if err := r.ledger.insert(e); err != nil {
		return DefectEntry{}, err
	}
	added := r.ledger.entries[len(r.ledger.entries)-1]
	return added, r.OnDefectEntryChanged(added, OpInsert)
}

// UpdateDefect 部分更新缺陷条目
func (r *Record) UpdateDefect(id string, patch DefectPatch) (DefectEntry, error) {
	updated, err := r.ledger.update(id, patch)
	if err != nil {
		return DefectEntry{}, err
	}
	return updated, r.OnDefectEntryChanged(updated, OpUpdate)
}

// RemoveDefect 删除缺陷条目
func (r *Record) RemoveDefect(id string) (DefectEntry, error) {
	removed, err := r.ledger.remove(id)
	if err != nil {
		return DefectEntry{}, err
	}
	return removed, r.OnDefectEntryChanged(removed, OpDelete)
}

// ReplaceDefects 整体替换缺陷集合，只推导一次；任一条目非法则不做修改
func (r *Record) ReplaceDefects(entries []DefectEntry) ([]DefectEntry, error) {
	replaced, err := r.ledger.replace(entries)
	if err != nil {
		return nil, err
	}
	return replaced, r.OnDefectEntryChanged(DefectEntry{}, OpReplace)
}

// SetSizeChecks 替换尺码核对行
func (r *Record) SetSizeChecks(rows []SizeCheck) error {
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return err
		}
	}
	r.sizeChecks = append([]SizeCheck(nil), rows...)
	return nil
}

// SetMeasurements 替换测量行
func (r *Record) SetMeasurements(rows []Measurement) {
	r.measurements = append([]Measurement(nil), rows...)
}

// SetImages 替换图片引用
func (r *Record) SetImages(images []ImageRef) {
	r.images = append([]ImageRef(nil), images...)
}

// Rederive 强制重新推导（如新建后首次推导）
func (r *Record) Rederive(op Op) {
	r.rederive(op, "")
}

func (r *Record) rederive(op Op, entryID string) {
	prev := r.derived.Result
	r.derived = derive(r.inputs, r.ledger.Tally())
	r.AddDomainEvent(DerivedEvent{
		RecordID:       r.ID,
		Op:             op,
		EntryID:        entryID,
		SampleSize:     r.derived.SampleSize,
		Limits:         r.derived.Limits,
		Found:          r.derived.Found,
		Result:         r.derived.Result,
		PreviousResult: prev,
	})
}

// Verify 复核台账计数；不一致属于程序不变量被破坏
func (r *Record) Verify() error {
	if r.derived.Result == Pending {
		return nil
	}
	if err := checkLedger(r.derived.Found, r.ledger.entries); err != nil {
		return err.WithContext("record_id", r.ID)
	}
	return nil
}
