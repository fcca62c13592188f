package server

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/trame/internal/config"
)

// testConfig 返回通过校验的最小配置，所有目录均位于临时目录。
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      3000,
			Host:            "127.0.0.1",
			Protocol:        "http",
			ShutdownTimeout: config.Duration(2 * time.Second),
			AppName:         "trame-test",
			Env:             "test",
			StoragePath:     filepath.Join(dir, "storage"),
			ShowStackError:  true,
			ViewEngine:      "html",
			IconsDirectory:  filepath.Join(dir, "icons"),
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv, err := New(cfg, Options{Logger: logger, ConfigPath: "test.toml"})
	if err != nil {
		t.Fatalf("New 返回错误: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// configuredServer 构建并执行 Configure，失败即终止测试。
func configuredServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	srv := newTestServer(t, cfg)
	if err := srv.Configure(); err != nil {
		t.Fatalf("Configure 失败: %v", err)
	}
	return srv
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, string(body)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}
