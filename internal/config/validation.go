package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/any-hub/trame/internal/redirect"
	"github.com/any-hub/trame/internal/token"
)

var supportedViewEngines = map[string]struct{}{
	"html":       {},
	"django":     {},
	"handlebars": {},
	"mustache":   {},
	"pug":        {},
}

const supportedViewEngineList = "html|django|handlebars|mustache|pug"

var supportedSameSite = map[string]struct{}{
	"":       {},
	"lax":    {},
	"strict": {},
	"none":   {},
}

// Validate 针对语义级别做进一步校验。与逐项失败不同，这里收集全部问题，
// 以便 CLI 一次性输出完整的错误列表。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(c.validateGlobal())
	add(c.validateDirectories())
	add(c.validateCompression())
	add(c.validateCookieParser())
	add(c.validateSession())
	add(c.validateSecurity())
	add(c.validateCORS())
	add(c.validateJWT())
	add(c.validateRedirects())
	add(c.validateVHost())
	add(c.validatePrerender())
	add(c.validateLimiter())
	add(c.validateMetrics())

	return errors.Join(errs...)
}

func (c *Config) validateGlobal() error {
	var errs []error
	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		errs = append(errs, newFieldError("Global.ListenPort", "必须在 1-65535"))
	}
	switch strings.ToLower(g.Protocol) {
	case "http":
	case "https":
		if g.CertFile == "" || g.KeyFile == "" {
			errs = append(errs, newFieldError("Global.CertFile/KeyFile", "https 需要同时提供证书与私钥"))
		}
	default:
		errs = append(errs, newFieldError("Global.Protocol", "仅支持 http|https"))
	}
	if g.ShutdownTimeout.DurationValue() < 0 {
		errs = append(errs, newFieldError("Global.ShutdownTimeout", "不能为负数"))
	}
	if g.StoragePath == "" {
		errs = append(errs, newFieldError("Global.StoragePath", "不能为空"))
	}
	if _, ok := supportedViewEngines[strings.ToLower(g.ViewEngine)]; !ok {
		errs = append(errs, newFieldError("Global.ViewEngine", "仅支持 "+supportedViewEngineList))
	}
	return errors.Join(errs...)
}

func (c *Config) validateDirectories() error {
	var errs []error
	seen := map[string]struct{}{}
	for i, dir := range c.Directories {
		if strings.TrimSpace(dir.Name) == "" {
			errs = append(errs, newFieldError(indexedField("Directory", "", i, "Name"), "不能为空"))
			continue
		}
		if _, exists := seen[dir.Name]; exists {
			errs = append(errs, newFieldError(indexedField("Directory", dir.Name, i, "Name"), "重复"))
		}
		seen[dir.Name] = struct{}{}
		if dir.Prefix != "" && !strings.HasPrefix(dir.Prefix, "/") {
			errs = append(errs, newFieldError(indexedField("Directory", dir.Name, i, "Prefix"), "必须以 / 开头"))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateCompression() error {
	comp := c.Compression
	if comp.Rules == "" && comp.By == "" {
		return nil
	}
	var errs []error
	if comp.Rules == "" {
		errs = append(errs, newFieldError("Compression.Rules", "不能为空"))
	} else if _, err := regexp.Compile(comp.Rules); err != nil {
		errs = append(errs, newFieldError("Compression.Rules", fmt.Sprintf("正则无效: %v", err)))
	}
	if comp.By == "" {
		errs = append(errs, newFieldError("Compression.By", "不能为空"))
	}
	if comp.Level < -1 || comp.Level > 2 {
		errs = append(errs, newFieldError("Compression.Level", "必须在 -1..2"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateCookieParser() error {
	cp := c.CookieParser
	if !cp.Enable || cp.Secret == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(cp.Secret)
	if err != nil {
		return newFieldError("CookieParser.Secret", "必须是 base64 编码")
	}
	switch len(key) {
	case 16, 24, 32:
		return nil
	default:
		return newFieldError("CookieParser.Secret", "解码后长度必须为 16/24/32 字节")
	}
}

func (c *Config) validateSession() error {
	s := c.Session
	if !s.Enable {
		return nil
	}
	var errs []error
	if _, ok := supportedSameSite[strings.ToLower(s.SameSite)]; !ok {
		errs = append(errs, newFieldError("Session.SameSite", "仅支持 Lax|Strict|None"))
	}
	if s.IdleTimeout.DurationValue() < 0 {
		errs = append(errs, newFieldError("Session.IdleTimeout", "不能为负数"))
	}
	switch strings.ToLower(s.Store) {
	case "", "memory":
	case "redis":
		if s.RedisURL == "" {
			errs = append(errs, newFieldError("Session.RedisURL", "redis 存储需要提供 RedisURL"))
		} else if _, err := redis.ParseURL(s.RedisURL); err != nil {
			errs = append(errs, newFieldError("Session.RedisURL", err.Error()))
		}
	default:
		errs = append(errs, newFieldError("Session.Store", "仅支持 memory|redis"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateSecurity() error {
	if c.Security.Enable && c.Security.HSTSMaxAge < 0 {
		return newFieldError("Security.HSTSMaxAge", "不能为负数")
	}
	return nil
}

func (c *Config) validateCORS() error {
	cors := c.CORS
	if !cors.Enable {
		return nil
	}
	var errs []error
	for _, origin := range cors.Origins {
		if origin == "*" {
			if cors.Credentials {
				errs = append(errs, newFieldError("CORS.Origins", "Credentials 开启时不能使用 *"))
			}
			continue
		}
		if err := validateAbsoluteURL(origin); err != nil {
			errs = append(errs, newFieldError("CORS.Origins", err.Error()))
		}
	}
	if cors.MaxAge < 0 {
		errs = append(errs, newFieldError("CORS.MaxAge", "不能为负数"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateJWT() error {
	j := c.JWT
	if !j.Enable {
		return nil
	}
	var errs []error
	if !token.Supported(j.Algorithm) {
		errs = append(errs, newFieldError("JWT.Algorithm", "仅支持 "+strings.Join(token.Algorithms, "|")))
	}
	if !strings.HasPrefix(j.Algorithm, "HS") && j.Key == "" && j.KeyFile == "" {
		errs = append(errs, newFieldError("JWT.Key/KeyFile", "非对称算法需要提供 PEM 密钥"))
	}
	if j.Key != "" && j.KeyFile != "" {
		errs = append(errs, newFieldError("JWT.Key/KeyFile", "只能二选一"))
	}
	if j.Expiration.DurationValue() < 0 {
		errs = append(errs, newFieldError("JWT.Expiration", "不能为负数"))
	}
	for i, prefix := range j.Ignore {
		if !strings.HasPrefix(prefix, "/") {
			errs = append(errs, newFieldError(indexedField("JWT.Ignore", "", i, "Prefix"), "必须以 / 开头"))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateRedirects() error {
	if len(c.Redirects) == 0 {
		return nil
	}
	if err := redirect.Validate(c.RedirectRules()); err != nil {
		return newFieldError("Redirect", err.Error())
	}
	return nil
}

// RedirectRules 将配置中的跳转规则转换为 redirect.Rule。
func (c *Config) RedirectRules() []redirect.Rule {
	if len(c.Redirects) == 0 {
		return nil
	}
	rules := make([]redirect.Rule, len(c.Redirects))
	for i, r := range c.Redirects {
		rules[i] = redirect.Rule{From: r.From, To: r.To, Code: r.Code}
	}
	return rules
}

func (c *Config) validateVHost() error {
	vh := c.VHost
	if !vh.Enable {
		return nil
	}
	var errs []error
	if err := validateDomain(vh.URL); err != nil {
		errs = append(errs, newFieldError("VHost.URL", err.Error()))
	}
	for i, alias := range vh.Aliases {
		if err := validateDomain(alias); err != nil {
			errs = append(errs, newFieldError(indexedField("VHost.Aliases", alias, i, "URL"), err.Error()))
		}
	}
	if vh.RedirectURL != "" {
		if err := validateDomain(vh.RedirectURL); err != nil {
			errs = append(errs, newFieldError("VHost.RedirectURL", err.Error()))
		}
	}
	switch vh.RedirectCode {
	case 0, http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		errs = append(errs, newFieldError("VHost.RedirectCode", "仅支持 301/302/307/308"))
	}
	return errors.Join(errs...)
}

func (c *Config) validatePrerender() error {
	p := c.Prerender
	if !p.Enable {
		return nil
	}
	var errs []error
	if err := validateAbsoluteURL(p.ServiceURL); err != nil {
		errs = append(errs, newFieldError("Prerender.ServiceURL", err.Error()))
	}
	for i, pattern := range p.Blacklist {
		if _, err := regexp.Compile(pattern); err != nil {
			errs = append(errs, newFieldError(indexedField("Prerender.Blacklist", "", i, "Pattern"), err.Error()))
		}
	}
	if p.CacheTTL.DurationValue() < 0 {
		errs = append(errs, newFieldError("Prerender.CacheTTL", "不能为负数"))
	}
	if p.Timeout.DurationValue() <= 0 {
		errs = append(errs, newFieldError("Prerender.Timeout", "必须大于 0"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateLimiter() error {
	l := c.Limiter
	if !l.Enable {
		return nil
	}
	var errs []error
	if l.Max <= 0 {
		errs = append(errs, newFieldError("Limiter.Max", "必须大于 0"))
	}
	if l.Expiration.DurationValue() <= 0 {
		errs = append(errs, newFieldError("Limiter.Expiration", "必须大于 0"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enable && !strings.HasPrefix(c.Metrics.Path, "/") {
		return newFieldError("Metrics.Path", "必须以 / 开头")
	}
	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("域名不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("域名不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("域名不允许包含空格")
	}
	if strings.Contains(domain, "://") {
		return errors.New("域名不应包含协议头")
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
