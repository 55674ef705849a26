package audit

import (
	"github.com/google/uuid"

	"qcaudit/errors"
	"qcaudit/validation"
)

// DefectEntry 一条缺陷记录，生命周期从属于所在审核记录
type DefectEntry struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Count       int      `json:"count"`
	PhotoRef    string   `json:"photo,omitempty"`
}

// NewDefectEntry 创建缺陷条目；count 为 0 时取默认值 1
func NewDefectEntry(description string, severity Severity, count int, photoRef string) (DefectEntry, error) {
	if count == 0 {
		count = 1
	}
	e := DefectEntry{
		ID:          uuid.NewString(),
		Description: description,
		Severity:    severity,
		Count:       count,
		PhotoRef:    photoRef,
	}
	if err := e.Validate(); err != nil {
		return DefectEntry{}, err
	}
	return e, nil
}

// Validate 校验严重度与数量
func (e DefectEntry) Validate() error {
	if !e.Severity.Valid() {
		return errors.NewErrorf(errors.ErrCodeValidation, "未知的缺陷严重度: %q", e.Severity).
			WithContext("field", "severity")
	}
	return validation.ValidatePositive(e.Count, "缺陷数量")
}

// DefectPatch 缺陷部分更新，nil 字段保持不变
type DefectPatch struct {
	Description *string
	Severity    *Severity
	Count       *int
	PhotoRef    *string
}

func (p DefectPatch) apply(e DefectEntry) DefectEntry {
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Severity != nil {
		e.Severity = *p.Severity
	}
	if p.Count != nil {
		e.Count = *p.Count
	}
	if p.PhotoRef != nil {
		e.PhotoRef = *p.PhotoRef
	}
	return e
}

// Ledger 缺陷台账：有序条目集合，汇总计数总是由条目重新求和得出
type Ledger struct {
	entries []DefectEntry
}

// NewLedger 复制传入条目
func NewLedger(entries []DefectEntry) Ledger {
	return Ledger{entries: append([]DefectEntry(nil), entries...)}
}

// Entries 返回条目副本
func (l *Ledger) Entries() []DefectEntry {
	return append([]DefectEntry(nil), l.entries...)
}

// Len 条目数
func (l *Ledger) Len() int { return len(l.entries) }

// Find 按 ID 查找
func (l *Ledger) Find(id string) (DefectEntry, bool) {
	if i := l.index(id); i >= 0 {
		return l.entries[i], true
	}
	return DefectEntry{}, false
}

func (l *Ledger) index(id string) int {
	for i := range l.entries {
		if l.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Tally 按严重度汇总数量，缺失的严重度为 0
func (l *Ledger) Tally() Tally {
	return TallyOf(l.entries)
}

// TallyOf 对任意条目集合求和
func TallyOf(entries []DefectEntry) Tally {
	var t Tally
	for _, e := range entries {
		t.add(e.Severity, e.Count)
	}
	return t
}

// insert 追加条目；未填写数量时取默认值 1
func (l *Ledger) insert(e DefectEntry) error {
	if e.Count == 0 {
		e.Count = 1
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if l.index(e.ID) >= 0 {
		return errors.NewErrorf(errors.ErrCodeConflict, "缺陷条目 %s 已存在", e.ID)
	}
	l.entries = append(l.entries, e)
	return nil
}

func (l *Ledger) update(id string, patch DefectPatch) (DefectEntry, error) {
	i := l.index(id)
	if i < 0 {
		return DefectEntry{}, errors.NewErrorf(errors.ErrCodeNotFound, "缺陷条目 %s 不存在", id)
	}
	next := patch.apply(l.entries[i])
	if err := next.Validate(); err != nil {
		return DefectEntry{}, err
	}
	l.entries[i] = next
	return next, nil
}

func (l *Ledger) remove(id string) (DefectEntry, error) {
	i := l.index(id)
	if i < 0 {
		return DefectEntry{}, errors.NewErrorf(errors.ErrCodeNotFound, "缺陷条目 %s 不存在", id)
	}
	removed := l.entries[i]
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	return removed, nil
}

func (l *Ledger) replace(entries []DefectEntry) ([]DefectEntry, error) {
	next := Ledger{}
	for _, e := range entries {
		if err := next.insert(e); err != nil {
			return nil, err
		}
	}
	l.entries = next.entries
	return l.Entries(), nil
}
