// Package validation 提供输入契约校验辅助函数，失败统一返回 ErrCodeValidation
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"qcaudit/errors"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// IValidatable 可自校验的对象
type IValidatable interface {
	Validate() error
}

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不能为空", fieldName))
	}
	return nil
}

// ValidateNonNegative 验证非负整数（数量类字段）
func ValidateNonNegative(value int, fieldName string) error {
	if value < 0 {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s不能为负数（当前%d）", fieldName, value)).
			WithContext("field", fieldName)
	}
	return nil
}

// ValidatePositive 验证正数
func ValidatePositive(value int, fieldName string) error {
	if value <= 0 {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("%s必须为正数（当前%d）", fieldName, value)).
			WithContext("field", fieldName)
	}
	return nil
}

// ValidateEmail 验证邮箱格式
func ValidateEmail(email string) error {
	if email == "" {
		return errors.NewError(errors.ErrCodeValidation, "邮箱不能为空")
	}
	if !emailRegex.MatchString(email) {
		return errors.NewError(errors.ErrCodeValidation,
			fmt.Sprintf("邮箱格式不正确: %s", email))
	}
	return nil
}

// ValidateEnum 验证枚举值
func ValidateEnum(value, fieldName string, validValues []string) error {
	for _, valid := range validValues {
		if value == valid {
			return nil
		}
	}
	return errors.NewError(errors.ErrCodeValidation,
		fmt.Sprintf("%s的值无效，必须是以下之一: %v", fieldName, validValues)).
		WithContext("field", fieldName)
}

// All 依次执行校验，返回第一个错误
func All(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
