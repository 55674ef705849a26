// Package report 组装终检报告的只读视图、邮件要素与看板统计。
// 渲染与发送不在本包范围内。
package report

import (
	"strings"

	"qcaudit/errors"
	"qcaudit/validation"
)

// ContactType 收件类型
type ContactType string

const (
	ContactTo ContactType = "to"
	ContactCc ContactType = "cc"
)

// Contact 客户联系人
type Contact struct {
	Name  string      `json:"contact_name,omitempty"`
	Email string      `json:"email"`
	Type  ContactType `json:"email_type"`
}

// Recipients 已分拣的收件人
type Recipients struct {
	To []string `json:"to"`
	Cc []string `json:"cc,omitempty"`
}

// Partition 按类型分拣联系人；类型为空视为 to，重复地址只保留第一次。
// 没有任何 to 收件人时返回验证错误。
func Partition(contacts []Contact) (Recipients, error) {
	var r Recipients
	seen := make(map[string]bool, len(contacts))
	for _, c := range contacts {
		addr := strings.TrimSpace(c.Email)
		if err := validation.ValidateEmail(addr); err != nil {
			return Recipients{}, err
		}
		key := strings.ToLower(addr)
		if seen[key] {
			continue
		}
		seen[key] = true

		switch ContactType(strings.ToLower(string(c.Type))) {
		case ContactTo, "":
			r.To = append(r.To, addr)
		case ContactCc:
			r.Cc = append(r.Cc, addr)
		default:
			return Recipients{}, errors.NewErrorf(errors.ErrCodeValidation, "未知的收件类型: %q", c.Type).
				WithContext("field", "email_type")
		}
	}
	if len(r.To) == 0 {
		return Recipients{}, errors.NewError(errors.ErrCodeValidation, "至少需要一个 To 收件人")
	}
	return r, nil
}
