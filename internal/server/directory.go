package server

import (
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v3/middleware/static"
	"github.com/sirupsen/logrus"
)

// ViewsDirectory 是作为模板目录处理的目录名。
const ViewsDirectory = "views"

// UseDirectory 挂载一个目录：name 为 views 时作为模板目录，其余作为静态资源目录。
// path 为空时取配置中同名目录的 Path，仍为空则使用 name 本身；相对路径基于工作目录解析。
// 目录不存在或模板加载失败时记录警告并返回 false。
func (s *Server) UseDirectory(name, path string) bool {
	logger := s.logger.WithFields(logrus.Fields{"action": "use_directory", "directory": name})
	if name == "" {
		logger.Warn("目录名称不能为空")
		return false
	}
	if !s.Ready() {
		logger.Warn("Server 未就绪，无法挂载目录")
		return false
	}

	prefix := "/"
	if dir, ok := s.cfg.Directory(name); ok {
		if path == "" {
			path = dir.Path
		}
		if dir.Prefix != "" {
			prefix = dir.Prefix
		}
	}
	if path == "" {
		path = name
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		logger.WithField("path", path).Warnf("无法解析目录: %v", err)
		return false
	}
	logger = logger.WithField("path", abs)

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		logger.Warn("目录不存在，挂载失败")
		return false
	}

	if name == ViewsDirectory {
		engine := s.settingString(SettingViewEngine)
		if engine == "" {
			engine = s.cfg.Global.ViewEngine
		}
		if err := s.views.configure(engine, abs); err != nil {
			logger.WithField("engine", engine).Warnf("模板目录加载失败: %v", err)
			return false
		}
		s.Set(SettingViews, abs)
		logger.WithField("engine", engine).Info("模板目录已设置")
		return true
	}

	s.use("directory:"+name, static.New(abs), prefix)
	logger.WithField("prefix", prefix).Info("静态目录已挂载")
	return true
}
