package server

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/any-hub/trame/internal/config"
	"github.com/any-hub/trame/internal/redirect"
)

// compressionLevelDisabled 对应配置中的 Level=-1。
const compressionLevelDisabled = -1

// vhostMiddleware 识别主域名、别名（含 www.）以及开启 Subdomains 时的子域名，
// 命中的域名写入 Locals，可通过 VHost 读取。配置了 RedirectURL 时，除该域名外的
// 所有请求统一跳转过去；否则未命中的 Host 原样放行。
func vhostMiddleware(cfg config.VHostConfig, logger *logrus.Logger) fiber.Handler {
	domains := []string{strings.ToLower(cfg.URL)}
	for _, alias := range cfg.Aliases {
		domains = append(domains, strings.ToLower(alias))
	}

	canonical := strings.ToLower(cfg.RedirectURL)
	canonicalHost := hostWithoutPort(canonical)
	code := cfg.RedirectCode
	if code == 0 {
		code = fiber.StatusMovedPermanently
	}

	match := func(host string) (string, bool) {
		for _, d := range domains {
			if host == d || host == "www."+d {
				return d, true
			}
		}
		if cfg.Subdomains {
			for _, d := range domains {
				if strings.HasSuffix(host, "."+d) {
					return d, true
				}
			}
		}
		return "", false
	}

	return func(c fiber.Ctx) error {
		host := hostWithoutPort(c.Hostname())
		if domain, ok := match(host); ok {
			c.Locals(contextKeyVHost, domain)
		} else {
			logger.WithFields(logrus.Fields{
				"action": "host_lookup",
				"host":   host,
			}).Debug("host 未匹配虚拟主机")
		}
		if canonical != "" && host != canonicalHost {
			return c.Redirect().Status(code).To(c.Scheme() + "://" + canonical + requestURI(c))
		}
		return c.Next()
	}
}

// VHost 返回当前请求命中的虚拟主机域名。
func VHost(c fiber.Ctx) (string, bool) {
	domain, ok := c.Locals(contextKeyVHost).(string)
	return domain, ok && domain != ""
}

func redirectMiddleware(matcher *redirect.Matcher) fiber.Handler {
	return func(c fiber.Ctx) error {
		rule, ok := matcher.Match(c.Path())
		if !ok {
			return c.Next()
		}
		target := redirect.Target(rule, string(c.Request().URI().QueryString()))
		return c.Redirect().Status(rule.StatusCode()).To(target)
	}
}

// compressionMiddleware 在处理链执行完后，根据响应头 by 是否匹配 rules 决定是否压缩。
// 请求携带 X-No-Compression 时跳过。
func compressionMiddleware(rules *regexp.Regexp, by string, level int) fiber.Handler {
	brLevel, otherLevel := compressionLevels(level)
	compress := fasthttp.CompressHandlerBrotliLevel(func(*fasthttp.RequestCtx) {}, brLevel, otherLevel)

	return func(c fiber.Ctx) error {
		if c.Get("X-No-Compression") != "" {
			return c.Next()
		}
		if err := c.Next(); err != nil {
			return err
		}
		if !rules.Match(c.Response().Header.Peek(by)) {
			return nil
		}
		compress(c.RequestCtx())
		return nil
	}
}

func compressionLevels(level int) (int, int) {
	switch level {
	case 1:
		return fasthttp.CompressBrotliBestSpeed, fasthttp.CompressBestSpeed
	case 2:
		return fasthttp.CompressBrotliBestCompression, fasthttp.CompressBestCompression
	default:
		return fasthttp.CompressBrotliDefaultCompression, fasthttp.CompressDefaultCompression
	}
}

var overridableMethods = map[string]struct{}{
	fiber.MethodPut:    {},
	fiber.MethodPatch:  {},
	fiber.MethodDelete: {},
}

// methodOverrideMiddleware 允许 POST 请求通过 X-HTTP-Method-Override 头或 _method 查询参数
// 改写为 PUT/PATCH/DELETE。
func methodOverrideMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Method() == fiber.MethodPost {
			method := strings.ToUpper(strings.TrimSpace(c.Get("X-HTTP-Method-Override")))
			if method == "" {
				method = strings.ToUpper(strings.TrimSpace(c.Query("_method")))
			}
			if _, ok := overridableMethods[method]; ok {
				c.Method(method)
			}
		}
		return c.Next()
	}
}

// jwtMiddleware 校验 Authorization: Bearer 令牌，ignore 中的路径前缀直接放行。
func (s *Server) jwtMiddleware(ignore []string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if pathIgnored(c.Path(), ignore) || isDiagnosticsPath(c.Path()) {
			return c.Next()
		}
		auth := c.Get(fiber.HeaderAuthorization)
		raw, found := strings.CutPrefix(auth, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}
		claims, err := s.tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		c.Locals(contextKeyClaims, claims)
		return c.Next()
	}
}

func pathIgnored(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		trimmed := strings.TrimSuffix(prefix, "/")
		if trimmed == "" || path == trimmed || strings.HasPrefix(path, trimmed+"/") {
			return true
		}
	}
	return false
}

// Claims 返回 JWT 中间件校验通过后写入的声明。
func Claims(c fiber.Ctx) (jwt.MapClaims, bool) {
	claims, ok := c.Locals(contextKeyClaims).(jwt.MapClaims)
	return claims, ok
}
