// Package development 开发阶段样衣检验：阶段、结论、模板测量点与客户反馈。
// 与终检不同，开发检验不做抽样推导，结论由 QA 人工给出。
package development

import (
	"time"

	"github.com/google/uuid"

	"qcaudit/errors"
	"qcaudit/tolerance"
	"qcaudit/validation"
)

// Stage 开发阶段
type Stage string

const (
	StageDev      Stage = "Dev"
	StageProto    Stage = "Proto"
	StageFit      Stage = "Fit"
	StageSMS      Stage = "SMS"
	StageSizeSet  Stage = "Size Set"
	StagePPS      Stage = "PPS"
	StageShipment Stage = "Shipment Sample"
)

// Stages 全部阶段，按流程顺序
var Stages = []Stage{StageDev, StageProto, StageFit, StageSMS, StageSizeSet, StagePPS, StageShipment}

// Decision QA 结论；空值表示未下结论
type Decision string

const (
	Accepted  Decision = "Accepted"
	Rejected  Decision = "Rejected"
	Represent Decision = "Represent"
)

var decisions = []string{string(Accepted), string(Rejected), string(Represent)}

// ParseStage 空串取默认阶段 Proto
func ParseStage(s string) (Stage, error) {
	if s == "" {
		return StageProto, nil
	}
	for _, st := range Stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", errors.NewErrorf(errors.ErrCodeValidation, "未知的开发阶段: %q", s).
		WithContext("field", "stage")
}

// ParseDecision 空串表示未下结论
func ParseDecision(s string) (Decision, error) {
	if s == "" {
		return "", nil
	}
	if err := validation.ValidateEnum(s, "decision", decisions); err != nil {
		return "", err
	}
	return Decision(s), nil
}

// Comments QA 分项意见
type Comments struct {
	Fit         string `json:"qa_fit_comments"`
	Workmanship string `json:"qa_workmanship_comments"`
	Wash        string `json:"qa_wash_comments"`
	Fabric      string `json:"qa_fabric_comments"`
	Accessories string `json:"qa_accessories_comments"`
}

// Feedback 客户反馈
type Feedback struct {
	Remarks  string    `json:"customer_remarks"`
	Decision Decision  `json:"customer_decision,omitempty"`
	Comments string    `json:"customer_feedback_comments"`
	Date     time.Time `json:"customer_feedback_date"`
}

// Measurement 开发检验测量行，Status 由读数推出
type Measurement struct {
	ID string `json:"id"`
	tolerance.Row
	Status MeasurementStatus `json:"status"`
}

// MeasurementStatus 测量行结论
type MeasurementStatus string

const (
	StatusOK   MeasurementStatus = "OK"
	StatusFail MeasurementStatus = "FAIL"
)

// NewMeasurement 创建测量行并判定状态
func NewMeasurement(row tolerance.Row) Measurement {
	m := Measurement{ID: uuid.NewString(), Row: row}
	m.Regrade()
	return m
}

// Regrade 重新判定：任一读数超差为 FAIL
func (m *Measurement) Regrade() {
	if tolerance.EvaluateRow(m.Row).Failed() {
		m.Status = StatusFail
		return
	}
	m.Status = StatusOK
}

// CustomerRef 客户引用
type CustomerRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Inspection 开发阶段检验单
type Inspection struct {
	ID           string        `json:"id"`
	Style        string        `json:"style"`
	Color        string        `json:"color"`
	PONumber     string        `json:"po_number"`
	Stage        Stage         `json:"stage"`
	TemplateID   string        `json:"template,omitempty"`
	Customer     CustomerRef   `json:"customer"`
	QA           Comments      `json:"qa"`
	Remarks      string        `json:"remarks"`
	Feedback     Feedback      `json:"feedback"`
	Decision     Decision      `json:"decision,omitempty"`
	Measurements []Measurement `json:"measurements"`
	CreatedAt    time.Time     `json:"created_at"`
	CreatedBy    string        `json:"created_by_username"`
}

// NewInspection 创建检验单；款号必填，阶段为空时取 Proto
func NewInspection(style string, stage Stage, createdBy string, now time.Time) (*Inspection, error) {
	if err := validation.ValidateRequired(style, "style"); err != nil {
		return nil, err
	}
	st, err := ParseStage(string(stage))
	if err != nil {
		return nil, err
	}
	return &Inspection{
		ID:        uuid.NewString(),
		Style:     style,
		Stage:     st,
		CreatedAt: now,
		CreatedBy: createdBy,
	}, nil
}

// Validate 校验阶段与结论取值
func (in *Inspection) Validate() error {
	if err := validation.ValidateRequired(in.Style, "style"); err != nil {
		return err
	}
	if _, err := ParseStage(string(in.Stage)); err != nil {
		return err
	}
	if _, err := ParseDecision(string(in.Decision)); err != nil {
		return err
	}
	_, err := ParseDecision(string(in.Feedback.Decision))
	return err
}

// Decide 设置 QA 结论，空串清除结论
func (in *Inspection) Decide(d Decision) error {
	parsed, err := ParseDecision(string(d))
	if err != nil {
		return err
	}
	in.Decision = parsed
	return nil
}

// SetMeasurements 整体替换测量行并逐行重新判定
func (in *Inspection) SetMeasurements(rows []tolerance.Row) {
	in.Measurements = make([]Measurement, 0, len(rows))
	for _, r := range rows {
		in.Measurements = append(in.Measurements, NewMeasurement(r))
	}
}

// RecordFeedback 录入客户反馈；结论或意见有变化时刷新反馈日期
func (in *Inspection) RecordFeedback(decision Decision, comments string, now time.Time) error {
	parsed, err := ParseDecision(string(decision))
	if err != nil {
		return err
	}
	if parsed != in.Feedback.Decision || comments != in.Feedback.Comments {
		in.Feedback.Date = now
	}
	in.Feedback.Decision = parsed
	in.Feedback.Comments = comments
	return nil
}

// Failed 任一测量行 FAIL
func (in *Inspection) Failed() bool {
	for _, m := range in.Measurements {
		if m.Status == StatusFail {
			return true
		}
	}
	return false
}

// Copy 复制为新检验单：新 ID 与创建信息，保留测量标准但清空读数、结论与客户反馈
func (in *Inspection) Copy(createdBy string, now time.Time) *Inspection {
	cp := *in
	cp.ID = uuid.NewString()
	cp.CreatedAt = now
	cp.CreatedBy = createdBy
	cp.Decision = ""
	cp.Feedback = Feedback{}
	cp.Measurements = make([]Measurement, 0, len(in.Measurements))
	for _, m := range in.Measurements {
		row := m.Row
		for i := range row.Readings {
			row.Readings[i] = tolerance.Missing
		}
		cp.Measurements = append(cp.Measurements, NewMeasurement(row))
	}
	return &cp
}
