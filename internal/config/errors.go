package config

import (
	"errors"
	"fmt"
)

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// newFieldError 创建包含字段路径与原因的 error，便于 CLI 定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// indexedField 用于拼接列表项字段路径，方便输出 Directory[public].Path 形式。
func indexedField(section, name string, idx int, field string) string {
	if name == "" {
		return fmt.Sprintf("%s[#%d].%s", section, idx, field)
	}
	return fmt.Sprintf("%s[%s].%s", section, name, field)
}

// FieldErrors 将 Validate 返回的合并错误展开为字段错误列表。
func FieldErrors(err error) []FieldError {
	if err == nil {
		return nil
	}
	var out []FieldError
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, inner := range joined.Unwrap() {
			out = append(out, FieldErrors(inner)...)
		}
		return out
	}
	var fe FieldError
	if errors.As(err, &fe) {
		out = append(out, fe)
	}
	return out
}
