package server

import (
	"sync/atomic"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// MiddlewareState 描述一个已注册中间件的名称与启用状态。
type MiddlewareState struct {
	Name    string `json:"name"`
	Prefix  string `json:"prefix,omitempty"`
	Enabled bool   `json:"enabled"`
}

// namedMiddleware 包装注册到 Fiber 的处理器；Fiber 无法从栈中移除中间件，
// 因此通过 enabled 开关让被移除的中间件直接放行。
type namedMiddleware struct {
	name    string
	prefix  string
	enabled atomic.Bool
}

func (s *Server) use(name string, handler fiber.Handler, prefix ...string) {
	entry := &namedMiddleware{name: name}
	entry.enabled.Store(true)

	var wrapped fiber.Handler = func(c fiber.Ctx) error {
		if !entry.enabled.Load() {
			return c.Next()
		}
		return handler(c)
	}

	if len(prefix) > 0 && prefix[0] != "" && prefix[0] != "/" {
		entry.prefix = prefix[0]
		s.app.Use(entry.prefix, wrapped)
	} else {
		s.app.Use(wrapped)
	}

	s.mwMu.Lock()
	s.middlewares = append(s.middlewares, entry)
	s.mwMu.Unlock()
}

// RemoveMiddleware 停用指定名称的中间件（同名的全部停用），后续请求将跳过它。
// 名称不存在或已停用时记录警告并返回 false。
func (s *Server) RemoveMiddleware(name string) bool {
	removed := false
	s.mwMu.RLock()
	for _, entry := range s.middlewares {
		if entry.name == name && entry.enabled.CompareAndSwap(true, false) {
			removed = true
		}
	}
	s.mwMu.RUnlock()

	fields := logrus.Fields{"action": "remove_middleware", "middleware": name}
	if !removed {
		s.logger.WithFields(fields).Warn("中间件不存在，移除失败")
		return false
	}
	s.logger.WithFields(fields).Info("中间件已移除")
	return true
}

// Middlewares 按注册顺序返回中间件列表。
func (s *Server) Middlewares() []MiddlewareState {
	s.mwMu.RLock()
	defer s.mwMu.RUnlock()
	out := make([]MiddlewareState, 0, len(s.middlewares))
	for _, entry := range s.middlewares {
		out = append(out, MiddlewareState{
			Name:    entry.name,
			Prefix:  entry.prefix,
			Enabled: entry.enabled.Load(),
		})
	}
	return out
}

func (s *Server) hasMiddleware(name string) bool {
	s.mwMu.RLock()
	defer s.mwMu.RUnlock()
	for _, entry := range s.middlewares {
		if entry.name == name && entry.enabled.Load() {
			return true
		}
	}
	return false
}
