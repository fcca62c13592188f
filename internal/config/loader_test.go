package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFailsWithInvalidFields(t *testing.T) {
	_, err := Load(testConfigPath(t, "invalid.toml"))
	if err == nil {
		t.Fatalf("非法配置应返回错误")
	}
	fields := FieldErrors(err)
	if len(fields) < 4 {
		t.Fatalf("应一次性收集全部字段错误，得到 %d: %v", len(fields), err)
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
ShutdownTimeout = "boom"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsYAML(t *testing.T) {
	path := writeTempFile(t, "config.yaml", strings.TrimSpace(`
ListenPort: 4000
ViewEngine: django
Limiter:
  Enable: true
  Max: 5
  Expiration: 30s
`))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.ListenPort != 4000 || cfg.Global.ViewEngine != "django" {
		t.Fatalf("YAML 字段未生效: %+v", cfg.Global)
	}
	if cfg.Limiter.Expiration.DurationValue() != 30*time.Second {
		t.Fatalf("Limiter.Expiration 解析错误: %s", cfg.Limiter.Expiration.DurationValue())
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("TRAME_LISTENPORT", "4500")
	t.Setenv("TRAME_SESSION_ENABLE", "true")

	path := writeTempConfig(t, `Env = "production"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.ListenPort != 4500 {
		t.Fatalf("环境变量应覆盖端口，得到 %d", cfg.Global.ListenPort)
	}
	if !cfg.Session.Enable {
		t.Fatalf("环境变量应开启 Session")
	}
}

func TestLoadReadsDotEnvNextToConfig(t *testing.T) {
	path := writeTempConfig(t, `Env = "production"`)
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envPath, []byte("TRAME_ENV=staging\n"), 0o600); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("TRAME_ENV") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.Env != "staging" {
		t.Fatalf(".env 中的值应覆盖配置文件，得到 %s", cfg.Global.Env)
	}
}
