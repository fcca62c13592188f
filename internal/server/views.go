package server

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/template/django/v3"
	"github.com/gofiber/template/handlebars/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/gofiber/template/mustache/v2"
	"github.com/gofiber/template/pug/v2"
)

// errNoViewEngine 在模板目录尚未配置时渲染返回。
var errNoViewEngine = errors.New("view engine not configured")

// viewAdapter 实现 fiber.Views。Fiber 只在 New 时接受 Views，
// 模板引擎与目录则要等 Configure/UseDirectory 之后才能确定，所以这里做一层可替换的转发。
type viewAdapter struct {
	mu     sync.RWMutex
	engine fiber.Views
	name   string
	dir    string
}

func (v *viewAdapter) Load() error {
	v.mu.RLock()
	engine := v.engine
	v.mu.RUnlock()
	if engine == nil {
		return nil
	}
	return engine.Load()
}

func (v *viewAdapter) Render(w io.Writer, name string, binding any, layout ...string) error {
	v.mu.RLock()
	engine := v.engine
	v.mu.RUnlock()
	if engine == nil {
		return errNoViewEngine
	}
	return engine.Render(w, name, binding, layout...)
}

// configure 以给定引擎与目录重建模板引擎并立即加载，加载失败时保留旧引擎。
func (v *viewAdapter) configure(name, dir string) error {
	engine, err := newViewEngine(name, dir)
	if err != nil {
		return err
	}
	if err := engine.Load(); err != nil {
		return fmt.Errorf("加载模板失败: %w", err)
	}
	v.mu.Lock()
	v.engine = engine
	v.name = name
	v.dir = dir
	v.mu.Unlock()
	return nil
}

func (v *viewAdapter) current() (string, string) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.name, v.dir
}

// viewExtensions 记录各引擎使用的模板后缀。
var viewExtensions = map[string]string{
	"html":       ".html",
	"django":     ".django",
	"handlebars": ".hbs",
	"mustache":   ".mustache",
	"pug":        ".pug",
}

func newViewEngine(name, dir string) (fiber.Views, error) {
	ext, ok := viewExtensions[name]
	if !ok {
		return nil, fmt.Errorf("unsupported view engine %q", name)
	}
	switch name {
	case "html":
		return html.New(dir, ext), nil
	case "django":
		return django.New(dir, ext), nil
	case "handlebars":
		return handlebars.New(dir, ext), nil
	case "mustache":
		return mustache.New(dir, ext), nil
	default:
		return pug.New(dir, ext), nil
	}
}
