package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/encryptcookie"
	"github.com/gofiber/fiber/v3/middleware/etag"
	"github.com/gofiber/fiber/v3/middleware/favicon"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/trame/internal/cache"
	"github.com/any-hub/trame/internal/config"
	"github.com/any-hub/trame/internal/prerender"
	"github.com/any-hub/trame/internal/redirect"
	sessionstore "github.com/any-hub/trame/internal/session"
)

const limiterKeyPrefix = "trame:limiter:"

func enabledWord(state bool) string {
	if state {
		return "启用"
	}
	return "停用"
}

func (s *Server) setupBase() error {
	g := s.cfg.Global
	s.Set(SettingPort, g.ListenPort).
		Set(SettingHost, g.Host).
		Set(SettingProtocol, g.Protocol).
		Set(SettingAppName, g.AppName).
		Set(SettingEnv, g.Env)

	s.stepLogger("base").WithFields(logrus.Fields{
		"port":     g.ListenPort,
		"app_name": g.AppName,
		"env":      g.Env,
	}).Info("基础设置完成")
	return nil
}

func (s *Server) setupStackError() error {
	state := s.cfg.Global.ShowStackError
	s.Set(SettingShowStackError, state)
	s.stepLogger("stack_error").Info(enabledWord(state) + " showStackError")
	return nil
}

func (s *Server) setupPrettyHTML() error {
	state := s.cfg.Global.PrettyHTML
	s.Set(SettingPrettyHTML, state)
	s.stepLogger("pretty_html").Info(enabledWord(state) + " pretty 输出")
	return nil
}

func (s *Server) setupViewEngine() error {
	name := strings.ToLower(s.cfg.Global.ViewEngine)
	if _, ok := viewExtensions[name]; !ok {
		return fmt.Errorf("unsupported view engine %q", name)
	}
	s.Set(SettingViewEngine, name)
	s.stepLogger("view_engine").WithField("engine", name).Info("模板引擎已设置")
	return nil
}

func (s *Server) setupRequestContext() error {
	s.use("request_context", requestContextMiddleware(s.logger))
	return nil
}

func (s *Server) setupMetrics() error {
	if s.metrics == nil {
		return nil
	}
	s.use("metrics", s.metrics.Middleware())
	s.app.Get(s.cfg.Metrics.Path, s.metrics.Handler())
	s.stepLogger("metrics").WithField("path", s.cfg.Metrics.Path).Info("指标接口已启用")
	return nil
}

func (s *Server) setupVHost() error {
	vh := s.cfg.VHost
	if !vh.Enable {
		return nil
	}
	s.use("vhost", vhostMiddleware(vh, s.logger))
	s.stepLogger("vhost").WithFields(logrus.Fields{
		"url":        vh.URL,
		"aliases":    vh.Aliases,
		"subdomains": vh.Subdomains,
		"redirect":   vh.RedirectURL,
	}).Info("虚拟主机已启用")
	return nil
}

func (s *Server) setupRedirect() error {
	rules := s.cfg.RedirectRules()
	if len(rules) == 0 {
		return nil
	}
	matcher, err := redirect.NewMatcher(rules)
	if err != nil {
		return err
	}
	s.use("redirect", redirectMiddleware(matcher))
	s.stepLogger("redirect").WithField("rules", matcher.Len()).Info("跳转规则已加载")
	return nil
}

func (s *Server) setupSecurity() error {
	sec := s.cfg.Security
	if !sec.Enable {
		s.stepLogger("security").Warn("安全响应头未启用")
		return nil
	}
	s.use("security", helmet.New(helmet.Config{
		ContentSecurityPolicy: sec.ContentSecurityPolicy,
		XFrameOptions:         sec.XFrameOptions,
		ReferrerPolicy:        sec.ReferrerPolicy,
		HSTSMaxAge:            sec.HSTSMaxAge,
		HSTSPreloadEnabled:    sec.HSTSPreload,
		PermissionPolicy:      sec.PermissionPolicy,
	}))
	s.stepLogger("security").Info("安全响应头已启用")
	return nil
}

func (s *Server) setupCORS() error {
	c := s.cfg.CORS
	if !c.Enable {
		return nil
	}
	s.use("cors", cors.New(cors.Config{
		AllowOrigins:     c.Origins,
		AllowMethods:     c.Methods,
		AllowHeaders:     c.Headers,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.Credentials,
		MaxAge:           c.MaxAge,
	}))
	s.stepLogger("cors").WithField("origins", c.Origins).Info("CORS 已启用")
	return nil
}

func (s *Server) setupCompression() error {
	comp := s.cfg.Compression
	if !comp.Enabled() {
		return nil
	}
	if comp.Level == compressionLevelDisabled {
		s.stepLogger("compression").Info("压缩级别为 -1，跳过压缩")
		return nil
	}
	rules, err := regexp.Compile(comp.Rules)
	if err != nil {
		return fmt.Errorf("invalid compression rules: %w", err)
	}
	s.use("compression", compressionMiddleware(rules, comp.By, comp.Level))
	s.stepLogger("compression").WithFields(logrus.Fields{
		"rules": comp.Rules,
		"by":    comp.By,
		"level": comp.Level,
	}).Info("响应压缩已启用")
	return nil
}

func (s *Server) setupETag() error {
	if !s.cfg.Global.ETag {
		return nil
	}
	s.use("etag", etag.New())
	return nil
}

func (s *Server) setupFavicon() error {
	dir := s.cfg.Global.IconsDirectory
	if dir == "" {
		return nil
	}
	file, err := filepath.Abs(filepath.Join(dir, "favicon.ico"))
	if err != nil {
		return err
	}
	logger := s.stepLogger("favicon").WithField("path", file)
	if info, err := os.Stat(file); err != nil || info.IsDir() {
		logger.Warn("favicon 不存在，已跳过")
		return nil
	}
	s.use("favicon", favicon.New(favicon.Config{
		File:         file,
		URL:          "/favicon.ico",
		CacheControl: "public, max-age=2592000",
	}))
	logger.Info("favicon 已挂载")
	return nil
}

func (s *Server) setupJSONP() error {
	state := s.cfg.Global.JSONP
	s.Set(SettingJSONP, state)
	logger := s.stepLogger("jsonp")
	if state {
		logger.Info("JSONP 已启用")
	} else {
		logger.Warn("JSONP 未启用")
	}
	return nil
}

func (s *Server) setupCookieParser() error {
	cp := s.cfg.CookieParser
	logger := s.stepLogger("cookie_parser")
	if !cp.Enable {
		logger.Warn("cookie 解析未启用")
		return nil
	}
	if cp.Secret == "" {
		logger.Info("cookie 解析由 Fiber 内置提供，未配置加密密钥")
		return nil
	}
	s.use("cookie_parser", encryptcookie.New(encryptcookie.Config{
		Key:    cp.Secret,
		Except: cp.Except,
	}))
	logger.WithField("except", cp.Except).Info("cookie 加密已启用")
	return nil
}

func (s *Server) setupMethodOverride() error {
	if !s.cfg.Global.MethodOverride {
		return nil
	}
	s.use("method_override", methodOverrideMiddleware())
	return nil
}

func (s *Server) setupSession() error {
	sc := s.cfg.Session
	if !sc.Enable {
		return nil
	}
	storage, err := sessionstore.NewStorage(context.Background(), sc)
	if err != nil {
		return err
	}
	if storage != nil {
		s.addCloser(storage.Close)
	}

	cfg := session.Config{
		Storage:        storage,
		CookieSecure:   sc.Secure,
		CookieHTTPOnly: sc.HTTPOnly,
		CookieSameSite: canonicalSameSite(sc.SameSite),
		IdleTimeout:    sc.IdleTimeout.DurationValue(),
	}
	if sc.GenUUID {
		cfg.KeyGenerator = uuid.NewString
	}
	s.use("session", session.New(cfg))

	store := sc.Store
	if store == "" {
		store = "memory"
	}
	s.stepLogger("session").WithFields(logrus.Fields{
		"store":    store,
		"secure":   sc.Secure,
		"sameSite": cfg.CookieSameSite,
	}).Info("会话已启用")
	return nil
}

func (s *Server) setupLimiter() error {
	lc := s.cfg.Limiter
	if !lc.Enable {
		return nil
	}
	cfg := limiter.Config{
		Max:        lc.Max,
		Expiration: lc.Expiration.DurationValue(),
	}
	// 会话使用 Redis 时，限流计数也放到同一 Redis，保证多实例共享额度。
	if s.cfg.Session.Enable && strings.EqualFold(s.cfg.Session.Store, "redis") {
		storage, err := sessionstore.NewStorage(context.Background(), config.SessionConfig{
			Store:     "redis",
			RedisURL:  s.cfg.Session.RedisURL,
			KeyPrefix: limiterKeyPrefix,
		})
		if err != nil {
			return err
		}
		s.addCloser(storage.Close)
		cfg.Storage = storage
	}
	s.use("limiter", limiter.New(cfg))
	s.stepLogger("limiter").WithFields(logrus.Fields{
		"max":        lc.Max,
		"expiration": lc.Expiration.DurationValue().String(),
	}).Info("限流已启用")
	return nil
}

func (s *Server) setupPrerender() error {
	pc := s.cfg.Prerender
	if !pc.Enable {
		return nil
	}
	decider, err := prerender.NewDecider(pc.Blacklist, pc.CrawlerUserAgents)
	if err != nil {
		return err
	}
	var store cache.Store
	if pc.CacheTTL.DurationValue() > 0 {
		store, err = cache.NewStore(s.cfg.Global.StoragePath)
		if err != nil {
			return fmt.Errorf("初始化快照缓存失败: %w", err)
		}
	}
	s.use("prerender", prerender.Middleware(decider, prerender.NewRenderer(pc, store, s.logger)))
	s.stepLogger("prerender").WithFields(logrus.Fields{
		"service":   pc.ServiceURL,
		"cache_ttl": pc.CacheTTL.DurationValue().String(),
	}).Info("预渲染已启用")
	return nil
}

func (s *Server) setupJWT() error {
	jc := s.cfg.JWT
	if !jc.Enable {
		return nil
	}
	if got := s.tokens.SetAlgorithm(jc.Algorithm); got != jc.Algorithm {
		return fmt.Errorf("unsupported jwt algorithm %q", jc.Algorithm)
	}
	switch {
	case jc.KeyFile != "":
		if err := s.tokens.SetKey(jc.KeyFile, true); err != nil {
			return err
		}
	case jc.Key != "":
		if err := s.tokens.SetKey(jc.Key, false); err != nil {
			return err
		}
	}
	if err := s.tokens.CheckKey(); err != nil {
		return err
	}
	s.tokens.SetExpiration(jc.Expiration.DurationValue())
	s.use("jwt", s.jwtMiddleware(jc.Ignore))
	s.stepLogger("jwt").WithFields(logrus.Fields{
		"algorithm": jc.Algorithm,
		"ignore":    jc.Ignore,
	}).Info("JWT 校验已启用")
	return nil
}

func (s *Server) setupDirectories() error {
	for _, dir := range s.cfg.Directories {
		s.UseDirectory(dir.Name, dir.Path)
	}
	return nil
}

func canonicalSameSite(value string) string {
	switch strings.ToLower(value) {
	case "strict":
		return fiber.CookieSameSiteStrictMode
	case "none":
		return fiber.CookieSameSiteNoneMode
	default:
		return fiber.CookieSameSiteLaxMode
	}
}
