package config

import (
	"fmt"

	"github.com/goccy/go-yaml"
)

const redactedValue = "[redacted]"

// Printable 返回脱敏后的 YAML 配置，供 --print-config 输出。
func Printable(cfg *Config) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置为空")
	}

	printable := *cfg
	if printable.CookieParser.Secret != "" {
		printable.CookieParser.Secret = redactedValue
	}
	if printable.JWT.Key != "" {
		printable.JWT.Key = redactedValue
	}
	if printable.Prerender.Token != "" {
		printable.Prerender.Token = redactedValue
	}
	if printable.Session.RedisURL != "" {
		printable.Session.RedisURL = redactedValue
	}

	out, err := yaml.Marshal(printable)
	if err != nil {
		return nil, fmt.Errorf("序列化配置失败: %w", err)
	}
	return out, nil
}
