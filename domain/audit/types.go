// Package audit 实现出货终检（AQL 抽样审核）聚合：
// 样本量与允收数推导、缺陷台账汇总以及合格/不合格判定。
package audit

import (
	"fmt"
	"strings"

	"qcaudit/errors"
)

// Severity 缺陷严重度
type Severity string

const (
	Critical Severity = "Critical"
	Major    Severity = "Major"
	Minor    Severity = "Minor"
)

// Severities 全部严重度，按判定顺序
var Severities = [...]Severity{Critical, Major, Minor}

// ParseSeverity 大小写不敏感；未知值返回验证错误
func ParseSeverity(s string) (Severity, error) {
	for _, sev := range Severities {
		if strings.EqualFold(strings.TrimSpace(s), string(sev)) {
			return sev, nil
		}
	}
	return "", errors.NewErrorf(errors.ErrCodeValidation, "未知的缺陷严重度: %q", s).
		WithContext("field", "severity")
}

// Valid 是否为已知严重度
func (s Severity) Valid() bool {
	return s == Critical || s == Major || s == Minor
}

// Attempt 检验轮次
type Attempt string

const (
	FirstAttempt  Attempt = "1st"
	SecondAttempt Attempt = "2nd"
	ThirdAttempt  Attempt = "3rd"
)

// ParseAttempt 空串默认首检
func ParseAttempt(s string) (Attempt, error) {
	switch Attempt(strings.TrimSpace(s)) {
	case "", FirstAttempt:
		return FirstAttempt, nil
	case SecondAttempt:
		return SecondAttempt, nil
	case ThirdAttempt:
		return ThirdAttempt, nil
	}
	return "", errors.NewErrorf(errors.ErrCodeValidation, "未知的检验轮次: %q", s).
		WithContext("field", "inspection_attempt")
}

// Result 判定结果
type Result string

const (
	Pending Result = "Pending"
	Pass    Result = "Pass"
	Fail    Result = "Fail"
)

// Op 触发重新推导的操作
type Op string

const (
	OpCreate  Op = "create"
	OpInputs  Op = "inputs"
	OpInsert  Op = "insert"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpReplace Op = "replace"
)

// CheckStatus 检查项结论
type CheckStatus string

const (
	CheckNA   CheckStatus = "N/A"
	CheckPass CheckStatus = "Pass"
	CheckFail CheckStatus = "Fail"
)

// Tally 三类缺陷计数
type Tally struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
}

// Of 按严重度取值
func (t Tally) Of(s Severity) int {
	switch s {
	case Critical:
		return t.Critical
	case Major:
		return t.Major
	case Minor:
		return t.Minor
	}
	return 0
}

// Total 三类之和
func (t Tally) Total() int { return t.Critical + t.Major + t.Minor }

func (t Tally) String() string {
	return fmt.Sprintf("critical=%d major=%d minor=%d", t.Critical, t.Major, t.Minor)
}

func (t *Tally) add(s Severity, n int) {
	switch s {
	case Critical:
		t.Critical += n
	case Major:
		t.Major += n
	case Minor:
		t.Minor += n
	}
}
