package audit

import "time"

// Snapshot 审核记录的可序列化形态，供存储层读写
type Snapshot struct {
	ID           int64         `json:"id"`
	Version      int64         `json:"version"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Header       Header        `json:"header"`
	Inputs       Inputs        `json:"inputs"`
	Derived      Derived       `json:"derived"`
	Defects      []DefectEntry `json:"defects"`
	SizeChecks   []SizeCheck   `json:"size_checks"`
	Measurements []Measurement `json:"measurements"`
	Images       []ImageRef    `json:"images"`
}

// Snapshot 导出快照（深拷贝集合）
func (r *Record) Snapshot() Snapshot {
	return Snapshot{
		ID:           r.ID,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Header:       r.Header,
		Inputs:       r.inputs,
		Derived:      r.derived,
		Defects:      r.ledger.Entries(),
		SizeChecks:   r.SizeChecks(),
		Measurements: r.Measurements(),
		Images:       r.Images(),
	}
}

// FromSnapshot 从快照重建记录。
// 推导字段不直接信任存储值：已推导过的记录会按输入与条目重新推导，
// 结果与存储值不一致时返回 ErrCodeInternal。
func FromSnapshot(s Snapshot) (*Record, error) {
	r, err := NewRecord(s.ID, s.Header, s.Inputs)
	if err != nil {
		return nil, err
	}
	r.Version = s.Version
	r.CreatedAt = s.CreatedAt
	r.UpdatedAt = s.UpdatedAt
	r.ledger = NewLedger(s.Defects)
	for _, e := range r.ledger.entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	if err := r.SetSizeChecks(s.SizeChecks); err != nil {
		return nil, err
	}
	r.SetMeasurements(s.Measurements)
	r.SetImages(s.Images)

	if s.Derived.Result == Pending || s.Derived.Result == "" {
		return r, nil
	}
	r.derived = s.Derived
	if err := r.Verify(); err != nil {
		return nil, err
	}
	r.derived = derive(r.inputs, r.ledger.Tally())
	return r, nil
}
