package server

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/trame/internal/config"
)

func TestUseDirectoryMountsStaticFiles(t *testing.T) {
	public := t.TempDir()
	writeFile(t, filepath.Join(public, "hello.txt"), "hello static")

	srv := configuredServer(t, nil)
	if !srv.UseDirectory("public", public) {
		t.Fatalf("UseDirectory should succeed for existing directory")
	}

	resp, body := doRequest(t, srv.App(), httptest.NewRequest("GET", "/hello.txt", nil))
	if resp.StatusCode != fiber.StatusOK || body != "hello static" {
		t.Fatalf("static file not served: %d %q", resp.StatusCode, body)
	}

	if !srv.RemoveMiddleware("directory:public") {
		t.Fatalf("static mount should be removable by name")
	}
	resp, _ = doRequest(t, srv.App(), httptest.NewRequest("GET", "/hello.txt", nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("removed static mount should 404, got %d", resp.StatusCode)
	}
}

func TestUseDirectoryFromConfigWithPrefix(t *testing.T) {
	assets := t.TempDir()
	writeFile(t, filepath.Join(assets, "app.css"), "body{}")

	srv := configuredServer(t, func(cfg *config.Config) {
		cfg.Directories = []config.DirectoryConfig{{Name: "assets", Path: assets, Prefix: "/static"}}
	})

	resp, body := doRequest(t, srv.App(), httptest.NewRequest("GET", "/static/app.css", nil))
	if resp.StatusCode != fiber.StatusOK || body != "body{}" {
		t.Fatalf("prefixed static file not served: %d %q", resp.StatusCode, body)
	}

	found := false
	for _, mw := range srv.Middlewares() {
		if mw.Name == "directory:assets" && mw.Prefix == "/static" {
			found = true
		}
	}
	if !found {
		t.Fatalf("directory mount missing from middleware list: %+v", srv.Middlewares())
	}
}

func TestUseDirectoryRejectsMissingPath(t *testing.T) {
	srv := configuredServer(t, nil)
	if srv.UseDirectory("public", filepath.Join(t.TempDir(), "missing")) {
		t.Fatalf("missing directory should be rejected")
	}
	if srv.UseDirectory("", t.TempDir()) {
		t.Fatalf("empty name should be rejected")
	}
}

func TestUseDirectoryDefaultsToName(t *testing.T) {
	wd := t.TempDir()
	writeFile(t, filepath.Join(wd, "media", "clip.txt"), "clip")
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(wd); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })

	srv := configuredServer(t, nil)
	if !srv.UseDirectory("media", "") {
		t.Fatalf("directory named after the mount should be resolved against cwd")
	}
	_, body := doRequest(t, srv.App(), httptest.NewRequest("GET", "/clip.txt", nil))
	if body != "clip" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestViewsDirectoryRendersTemplates(t *testing.T) {
	cases := []struct {
		engine   string
		file     string
		template string
	}{
		{"html", "index.html", "<h1>{{.Title}}</h1>"},
		{"handlebars", "index.hbs", "<h1>{{Title}}</h1>"},
		{"mustache", "index.mustache", "<h1>{{Title}}</h1>"},
	}
	for _, tc := range cases {
		t.Run(tc.engine, func(t *testing.T) {
			views := t.TempDir()
			writeFile(t, filepath.Join(views, tc.file), tc.template)

			srv := configuredServer(t, func(cfg *config.Config) {
				cfg.Global.ViewEngine = tc.engine
				cfg.Directories = []config.DirectoryConfig{{Name: ViewsDirectory, Path: views}}
			})
			srv.App().Get("/", func(c fiber.Ctx) error {
				return c.Render("index", fiber.Map{"Title": "Hello"})
			})

			_, body := doRequest(t, srv.App(), httptest.NewRequest("GET", "/", nil))
			if !strings.Contains(body, "<h1>Hello</h1>") {
				t.Fatalf("unexpected render output %q", body)
			}
			if dir, _ := srv.Setting(SettingViews); dir != views {
				t.Fatalf("views setting should hold the directory, got %v", dir)
			}
		})
	}
}

func TestRenderWithoutViewsFails(t *testing.T) {
	srv := configuredServer(t, nil)
	srv.App().Get("/", func(c fiber.Ctx) error {
		return c.Render("index", nil)
	})
	resp, _ := doRequest(t, srv.App(), httptest.NewRequest("GET", "/", nil))
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("render without views should fail, got %d", resp.StatusCode)
	}
}
