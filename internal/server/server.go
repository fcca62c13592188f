package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/trame/internal/config"
	"github.com/any-hub/trame/internal/metrics"
	"github.com/any-hub/trame/internal/token"
)

// State 描述 Server 的配置生命周期。
type State int32

const (
	StateNotConfigured State = iota
	StateConfiguring
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotConfigured:
		return "not_configured"
	case StateConfiguring:
		return "configuring"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrAlreadyConfigured 表示 Configure 已经执行过。
	ErrAlreadyConfigured = errors.New("server already configured")
	// ErrNotReady 表示配置缺失或校验失败，无法执行配置步骤。
	ErrNotReady = errors.New("server is not ready")
)

// 常用设置项名称。
const (
	SettingPort           = "port"
	SettingHost           = "host"
	SettingProtocol       = "protocol"
	SettingAppName        = "app_name"
	SettingEnv            = "env"
	SettingShowStackError = "showStackError"
	SettingPrettyHTML     = "prettyHTML"
	SettingViewEngine     = "view engine"
	SettingViews          = "views"
	SettingJSONP          = "jsonp callback"
)

// Options 为 New 提供可选依赖。
type Options struct {
	Logger     *logrus.Logger
	ConfigPath string
}

// Server 持有 Fiber 应用及其配置状态。
type Server struct {
	cfg        *config.Config
	logger     *logrus.Logger
	configPath string

	app     *fiber.App
	views   *viewAdapter
	tokens  *token.Signer
	metrics *metrics.Recorder

	ready atomic.Bool
	state atomic.Int32

	settingsMu sync.RWMutex
	settings   map[string]any

	mwMu        sync.RWMutex
	middlewares []*namedMiddleware

	closersMu sync.Mutex
	closers   []func() error

	addrMu sync.RWMutex
	addr   net.Addr
}

// New 基于配置构建 Server。配置校验失败时 Server 仍会返回，但处于未就绪状态，
// 之后的 Configure/UseDirectory 均会被拒绝。
func New(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		configPath: opts.ConfigPath,
		views:      &viewAdapter{},
		tokens:     token.NewSigner(logger),
		settings:   make(map[string]any),
	}

	if cfg.Metrics.Enable {
		s.metrics = metrics.NewRecorder()
	}

	if err := cfg.Validate(); err != nil {
		logger.WithFields(logrus.Fields{
			"action":     "configure",
			"configPath": opts.ConfigPath,
		}).Errorf("配置无效，Server 未就绪: %v", err)
	} else {
		s.ready.Store(true)
	}

	appCfg := fiber.Config{
		AppName:      cfg.Global.AppName,
		ErrorHandler: s.errorHandler,
		Views:        s.views,
		JSONEncoder:  s.encodeJSON,
	}
	if cfg.Session.Proxy {
		appCfg.TrustProxy = true
		appCfg.TrustProxyConfig = fiber.TrustProxyConfig{Loopback: true, Private: true}
		appCfg.ProxyHeader = fiber.HeaderXForwardedFor
	}
	s.app = fiber.New(appCfg)

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace:  true,
		StackTraceHandler: s.logPanic,
	}))

	return s, nil
}

// App 返回底层 Fiber 应用，用于注册业务路由。
func (s *Server) App() *fiber.App {
	return s.app
}

// Tokens 返回 JWT 签名器。
func (s *Server) Tokens() *token.Signer {
	return s.tokens
}

// Config 返回当前使用的配置。
func (s *Server) Config() *config.Config {
	return s.cfg
}

// Ready 表示配置已通过校验。
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// State 返回当前生命周期状态。
func (s *Server) State() State {
	return State(s.state.Load())
}

// Set 写入一个设置项；name 为空时记录警告并忽略。返回 s 便于链式调用。
func (s *Server) Set(name string, value any) *Server {
	if name == "" {
		s.logger.WithField("action", "set").Warn("设置项名称不能为空，已忽略")
		return s
	}
	s.settingsMu.Lock()
	s.settings[name] = value
	s.settingsMu.Unlock()
	return s
}

// Setting 读取设置项。
func (s *Server) Setting(name string) (any, bool) {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	v, ok := s.settings[name]
	return v, ok
}

// Settings 返回全部设置项的快照。
func (s *Server) Settings() map[string]any {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	out := make(map[string]any, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}

func (s *Server) settingBool(name string) bool {
	v, ok := s.Setting(name)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (s *Server) settingString(name string) string {
	v, ok := s.Setting(name)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

func (s *Server) encodeJSON(v any) ([]byte, error) {
	if s.settingBool(SettingPrettyHTML) {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

var jsonpCallbackPattern = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)*$`)

// JSON 输出 JSON 响应；开启 JSONP 且请求携带合法的 callback 参数时输出 JSONP。
func (s *Server) JSON(c fiber.Ctx, v any) error {
	if s.settingBool(SettingJSONP) {
		if cb := c.Query("callback"); cb != "" && jsonpCallbackPattern.MatchString(cb) {
			return c.JSONP(v, cb)
		}
	}
	return c.JSON(v)
}

// Addr 返回 Listen 实际绑定的地址，未监听时为 nil。
func (s *Server) Addr() net.Addr {
	s.addrMu.RLock()
	defer s.addrMu.RUnlock()
	return s.addr
}

func (s *Server) addCloser(fn func() error) {
	s.closersMu.Lock()
	s.closers = append(s.closers, fn)
	s.closersMu.Unlock()
}

// Close 释放会话存储等外部资源。
func (s *Server) Close() error {
	s.closersMu.Lock()
	closers := s.closers
	s.closers = nil
	s.closersMu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
