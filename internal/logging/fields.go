package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// StepFields 描述 Configure 中单个步骤的日志字段。
func StepFields(step string) logrus.Fields {
	return logrus.Fields{
		"action": "configure",
		"step":   step,
	}
}

// RequestFields 提供访问日志字段。
func RequestFields(method, path string, status int, latency time.Duration, requestID string) logrus.Fields {
	return logrus.Fields{
		"action":     "request",
		"method":     method,
		"path":       path,
		"status":     status,
		"latency_ms": latency.Milliseconds(),
		"request_id": requestID,
	}
}
