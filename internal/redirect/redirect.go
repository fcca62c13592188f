// Package redirect 维护路径级跳转规则：精确匹配请求路径，并把原始查询串
// 合并到目标地址上。
package redirect

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultCode 在规则未指定状态码时使用。
const DefaultCode = http.StatusMovedPermanently

var allowedCodes = map[int]struct{}{
	http.StatusMovedPermanently:  {},
	http.StatusFound:             {},
	http.StatusSeeOther:          {},
	http.StatusTemporaryRedirect: {},
	http.StatusPermanentRedirect: {},
}

// ErrDuplicateRule 表示两条规则拥有相同的 From 路径。
var ErrDuplicateRule = errors.New("duplicate redirect rule")

// Rule 是一条 From → To 的跳转规则。
type Rule struct {
	From string
	To   string
	Code int
}

// Validate 检查规则的结构是否合法。
func (r Rule) Validate() error {
	if !strings.HasPrefix(r.From, "/") {
		return fmt.Errorf("from %q must start with /", r.From)
	}
	if strings.ContainsAny(r.From, "?#") {
		return fmt.Errorf("from %q must not contain query or fragment", r.From)
	}
	if strings.TrimSpace(r.To) == "" {
		return fmt.Errorf("to is required for %s", r.From)
	}
	if _, err := url.Parse(r.To); err != nil {
		return fmt.Errorf("to %q: %w", r.To, err)
	}
	if r.Code != 0 {
		if _, ok := allowedCodes[r.Code]; !ok {
			return fmt.Errorf("code %d is not a redirect status", r.Code)
		}
	}
	return nil
}

// StatusCode 返回生效的状态码。
func (r Rule) StatusCode() int {
	if r.Code == 0 {
		return DefaultCode
	}
	return r.Code
}

// Validate 校验整组规则，返回所有问题的合并错误。
func Validate(rules []Rule) error {
	var errs []error
	seen := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		if err := rule.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rule #%d: %w", i, err))
			continue
		}
		key := normalizePath(rule.From)
		if _, exists := seen[key]; exists {
			errs = append(errs, fmt.Errorf("rule #%d: %w: %s", i, ErrDuplicateRule, rule.From))
			continue
		}
		seen[key] = struct{}{}
	}
	return errors.Join(errs...)
}

// Matcher 以规范化后的路径为键做精确查找。
type Matcher struct {
	rules   map[string]Rule
	ordered []Rule
}

// NewMatcher 校验规则并构建查找表。
func NewMatcher(rules []Rule) (*Matcher, error) {
	if err := Validate(rules); err != nil {
		return nil, err
	}
	m := &Matcher{rules: make(map[string]Rule, len(rules))}
	for _, rule := range rules {
		if rule.Code == 0 {
			rule.Code = DefaultCode
		}
		m.rules[normalizePath(rule.From)] = rule
		m.ordered = append(m.ordered, rule)
	}
	return m, nil
}

// Match 返回与 path 精确匹配的规则，末尾斜杠不参与比较。
func (m *Matcher) Match(path string) (Rule, bool) {
	if m == nil || len(m.rules) == 0 {
		return Rule{}, false
	}
	rule, ok := m.rules[normalizePath(path)]
	return rule, ok
}

// Rules 按配置顺序返回全部规则。
func (m *Matcher) Rules() []Rule {
	if m == nil {
		return nil
	}
	return append([]Rule(nil), m.ordered...)
}

// Len 返回规则数量。
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.ordered)
}

// Target 把请求的查询串合并进规则目标；目标上已有的参数优先。
func Target(rule Rule, rawQuery string) string {
	if rawQuery == "" {
		return rule.To
	}
	target, err := url.Parse(rule.To)
	if err != nil {
		return rule.To
	}
	// 无法解析的参数对（如 ; 分隔或非法转义）被丢弃，其余参数照常合并。
	incoming, _ := url.ParseQuery(rawQuery)
	if len(incoming) == 0 {
		return rule.To
	}

	merged := target.Query()
	for key, values := range incoming {
		if _, exists := merged[key]; exists {
			continue
		}
		merged[key] = values
	}
	target.RawQuery = merged.Encode()
	return target.String()
}

func normalizePath(path string) string {
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}
