package server

import (
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/trame/internal/logging"
)

const (
	contextKeyRequestID = "_trame_request_id"
	contextKeyClaims    = "_trame_jwt_claims"
	contextKeyVHost     = "_trame_vhost"

	headerRequestID = "X-Request-ID"
)

// requestContextMiddleware 负责生成请求 ID 并在请求结束后输出访问日志。
// 上游已携带合法 X-Request-ID 时沿用该值。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		reqID := strings.TrimSpace(c.Get(headerRequestID))
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set(headerRequestID, reqID)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusFromError(err)
		}
		entry := logger.WithFields(logging.RequestFields(c.Method(), c.Path(), status, time.Since(start), reqID))
		if isDiagnosticsPath(c.Path()) {
			entry.Debug("request")
		} else {
			entry.Info("request")
		}
		return err
	}
}

// RequestID returns the request identifier stored by the request context middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// requestURI 返回 origin-form 的路径与查询串；请求行为绝对 URI 时也不会带上 scheme 与 host。
func requestURI(c fiber.Ctx) string {
	return string(c.Request().URI().RequestURI())
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}

// hostWithoutPort 去掉 Host 中的端口，兼容 IPv6 字面量。
func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.ToLower(h)
	}
	return strings.ToLower(strings.Trim(host, "[]"))
}
