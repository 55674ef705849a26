package audit

import "qcaudit/sampling"

const (
	EventDerived = "audit.derived"
	EventDeleted = "audit.deleted"
)

// DerivedEvent 每次重新推导完成后产生
type DerivedEvent struct {
	RecordID       int64           `json:"record_id"`
	Op             Op              `json:"op"`
	EntryID        string          `json:"entry_id,omitempty"`
	SampleSize     int             `json:"sample_size"`
	Limits         sampling.Limits `json:"limits"`
	Found          Tally           `json:"found"`
	Result         Result          `json:"result"`
	PreviousResult Result          `json:"previous_result"`
}

func (DerivedEvent) EventType() string { return EventDerived }

// VerdictChanged 判定结果是否发生变化
func (e DerivedEvent) VerdictChanged() bool { return e.Result != e.PreviousResult }

// DeletedEvent 审核记录被删除
type DeletedEvent struct {
	RecordID int64  `json:"record_id"`
	OrderNo  string `json:"order_no"`
	StyleNo  string `json:"style_no"`
}

func (DeletedEvent) EventType() string { return EventDeleted }
