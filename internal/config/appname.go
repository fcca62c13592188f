package config

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// DefaultAppName 生成 app-#<uuid>-<yyyymd> 形式的默认应用名，月与日不补零。
func DefaultAppName(now time.Time) string {
	return fmt.Sprintf("app-#%s-%d%d%d", uuid.NewString(), now.Year(), int(now.Month()), now.Day())
}

// NormalizeAppName 将名称转为小写并按非字母数字切词，再以 - 连接。
func NormalizeAppName(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, "-")
}
