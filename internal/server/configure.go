package server

import (
	"github.com/sirupsen/logrus"

	"github.com/any-hub/trame/internal/logging"
	"github.com/any-hub/trame/internal/server/routes"
)

type setupStep struct {
	name string
	run  func() error
}

// setupSteps 的顺序即中间件在 Fiber 栈中的顺序。
func (s *Server) setupSteps() []setupStep {
	return []setupStep{
		{"base", s.setupBase},
		{"stack_error", s.setupStackError},
		{"pretty_html", s.setupPrettyHTML},
		{"view_engine", s.setupViewEngine},
		{"request_context", s.setupRequestContext},
		{"metrics", s.setupMetrics},
		{"vhost", s.setupVHost},
		{"redirect", s.setupRedirect},
		{"security", s.setupSecurity},
		{"cors", s.setupCORS},
		{"compression", s.setupCompression},
		{"etag", s.setupETag},
		{"favicon", s.setupFavicon},
		{"jsonp", s.setupJSONP},
		{"cookie_parser", s.setupCookieParser},
		{"method_override", s.setupMethodOverride},
		{"session", s.setupSession},
		{"limiter", s.setupLimiter},
		{"prerender", s.setupPrerender},
		{"jwt", s.setupJWT},
		{"directory", s.setupDirectories},
	}
}

// Configure 依次执行全部配置步骤，只能调用一次。任一步骤失败即中止，
// Server 进入 failed 状态并返回 *StepError。
func (s *Server) Configure() error {
	if !s.state.CompareAndSwap(int32(StateNotConfigured), int32(StateConfiguring)) {
		return ErrAlreadyConfigured
	}

	base := s.logger.WithFields(logging.BaseFields("configure", s.configPath))
	if !s.Ready() {
		s.state.Store(int32(StateFailed))
		base.Error("配置未就绪，跳过全部配置步骤")
		return ErrNotReady
	}

	base.Info("开始配置 Fiber 应用")
	for _, step := range s.setupSteps() {
		if err := step.run(); err != nil {
			s.metrics.ObserveStep(step.name, false)
			s.state.Store(int32(StateFailed))
			stepErr := &StepError{Step: step.name, Err: err}
			s.logger.WithFields(logging.StepFields(step.name)).
				WithField("configPath", s.configPath).
				Errorf("配置中止: %v", err)
			return stepErr
		}
		s.metrics.ObserveStep(step.name, true)
	}

	s.registerDiagnostics()
	s.state.Store(int32(StateReady))
	base.WithField("middleware", len(s.Middlewares())).Info("Fiber 应用配置完成")
	return nil
}

func (s *Server) stepLogger(step string) *logrus.Entry {
	return s.logger.WithFields(logging.StepFields(step))
}

func (s *Server) registerDiagnostics() {
	routes.RegisterDiagnostics(s.app, routes.Source{
		State:    func() string { return s.State().String() },
		Settings: s.Settings,
		Middlewares: func() []routes.Middleware {
			states := s.Middlewares()
			out := make([]routes.Middleware, 0, len(states))
			for _, st := range states {
				out = append(out, routes.Middleware{Name: st.Name, Prefix: st.Prefix, Enabled: st.Enabled})
			}
			return out
		},
	})
}
