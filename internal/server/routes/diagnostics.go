package routes

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gofiber/fiber/v3"
)

// Middleware 是 /-/middleware 输出的单个条目。
type Middleware struct {
	Name    string `json:"name"`
	Prefix  string `json:"prefix,omitempty"`
	Enabled bool   `json:"enabled"`
}

// Source 提供诊断接口所需的数据，避免 routes 反向依赖 server 包。
type Source struct {
	State       func() string
	Settings    func() map[string]any
	Middlewares func() []Middleware
}

// RegisterDiagnostics 暴露 /-/settings 与 /-/middleware 诊断接口，供运维查询当前生效的配置。
func RegisterDiagnostics(app *fiber.App, src Source) {
	if app == nil {
		return
	}

	app.Get("/-/settings", func(c fiber.Ctx) error {
		payload := fiber.Map{"settings": encodeSettings(call(src.Settings))}
		if src.State != nil {
			payload["state"] = src.State()
		}
		return c.JSON(payload)
	})

	app.Get("/-/middleware", func(c fiber.Ctx) error {
		var list []Middleware
		if src.Middlewares != nil {
			list = src.Middlewares()
		}
		if list == nil {
			list = []Middleware{}
		}
		return c.JSON(fiber.Map{"middleware": list})
	})

	app.Get("/-/middleware/:name", func(c fiber.Ctx) error {
		name := c.Params("name")
		if src.Middlewares != nil {
			for _, mw := range src.Middlewares() {
				if mw.Name == name {
					return c.JSON(mw)
				}
			}
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "middleware_not_found"})
	})
}

func call(fn func() map[string]any) map[string]any {
	if fn == nil {
		return nil
	}
	return fn()
}

type settingPayload struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// encodeSettings 按名称排序，无法序列化的值以字符串形式输出。
func encodeSettings(settings map[string]any) []settingPayload {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]settingPayload, 0, len(names))
	for _, name := range names {
		value := settings[name]
		if _, err := json.Marshal(value); err != nil {
			value = fmt.Sprintf("%v", value)
		}
		result = append(result, settingPayload{Name: name, Value: value})
	}
	return result
}
