package server

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// StepError 记录 Configure 中失败的步骤及原因。
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("configure step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// errorHandler 统一输出 JSON 错误；showStackError 开启时附带错误链。
func (s *Server) errorHandler(c fiber.Ctx, err error) error {
	code := statusFromError(err)
	message := fiber.ErrInternalServerError.Message
	var fe *fiber.Error
	if errors.As(err, &fe) {
		message = fe.Message
	}

	payload := fiber.Map{
		"error":  message,
		"status": code,
	}
	if reqID := RequestID(c); reqID != "" {
		payload["request_id"] = reqID
	}
	if s.settingBool(SettingShowStackError) {
		payload["stack"] = errorChain(err)
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.WithFields(logrus.Fields{
			"action":     "request_error",
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     code,
			"request_id": RequestID(c),
		}).Error(err.Error())
	}

	return c.Status(code).JSON(payload)
}

func (s *Server) logPanic(c fiber.Ctx, e any) {
	if !s.settingBool(SettingShowStackError) {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"action":     "panic",
		"path":       c.Path(),
		"request_id": RequestID(c),
		"stack":      string(debug.Stack()),
	}).Errorf("panic recovered: %v", e)
}

func statusFromError(err error) int {
	if err == nil {
		return fiber.StatusOK
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

func errorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return chain
}
