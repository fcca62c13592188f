// Package prerender serves pre-rendered HTML snapshots to crawlers. Requests
// from known bots are forwarded to a prerender service and the 200 responses
// are kept on disk for a configurable TTL.
package prerender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/trame/internal/cache"
	"github.com/any-hub/trame/internal/config"
)

const (
	cacheNamespace = "prerender"

	// HeaderToken 携带预渲染服务的访问令牌。
	HeaderToken = "X-Prerender-Token"
	// HeaderCache 标记快照是否来自本地缓存（hit|miss）。
	HeaderCache = "X-Prerender-Cache"
)

// CrawlerUserAgents 为默认识别的爬虫 UA 片段（小写匹配）。
var CrawlerUserAgents = []string{
	"googlebot", "yahoo! slurp", "bingbot", "yandex", "baiduspider",
	"facebookexternalhit", "twitterbot", "rogerbot", "linkedinbot", "embedly",
	"quora link preview", "showyoubot", "outbrain", "pinterest/0.",
	"developers.google.com/+/web/snippet", "slackbot", "vkshare",
	"w3c_validator", "redditbot", "applebot", "whatsapp", "flipboard",
	"tumblr", "bitlybot", "skypeuripreview", "nuzzel", "discordbot",
	"google page speed", "qwantify", "pinterestbot", "bitrix link preview",
	"xing-contenttabreceiver", "chrome-lighthouse", "telegrambot",
}

// IgnoredExtensions 为静态资源后缀，命中时直接放行。
var IgnoredExtensions = map[string]struct{}{
	".js": {}, ".css": {}, ".xml": {}, ".less": {}, ".png": {}, ".jpg": {},
	".jpeg": {}, ".gif": {}, ".pdf": {}, ".doc": {}, ".txt": {}, ".ico": {},
	".rss": {}, ".zip": {}, ".mp3": {}, ".rar": {}, ".exe": {}, ".wmv": {},
	".avi": {}, ".ppt": {}, ".mpg": {}, ".mpeg": {}, ".tif": {}, ".wav": {},
	".mov": {}, ".psd": {}, ".ai": {}, ".xls": {}, ".mp4": {}, ".m4a": {},
	".swf": {}, ".dat": {}, ".dmg": {}, ".iso": {}, ".flv": {}, ".m4v": {},
	".torrent": {}, ".woff": {}, ".woff2": {}, ".ttf": {}, ".svg": {},
	".webmanifest": {},
}

// Request 是判定所需的最小请求视图，与具体框架解耦。
type Request struct {
	Method    string
	Path      string
	URL       string // path + query
	UserAgent string
	Referer   string
	Bufferbot bool
	Escaped   bool
}

// Decider 根据 UA、后缀与黑名单判断请求是否需要预渲染。
type Decider struct {
	agents    []string
	blacklist []*regexp.Regexp
}

// NewDecider 编译黑名单并合并额外的爬虫 UA。
func NewDecider(blacklist, extraAgents []string) (*Decider, error) {
	d := &Decider{agents: append([]string(nil), CrawlerUserAgents...)}
	for _, ua := range extraAgents {
		if ua = strings.ToLower(strings.TrimSpace(ua)); ua != "" {
			d.agents = append(d.agents, ua)
		}
	}
	for _, pattern := range blacklist {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("无效的黑名单规则 %q: %w", pattern, err)
		}
		d.blacklist = append(d.blacklist, re)
	}
	return d, nil
}

// ShouldRender 判定请求是否交给预渲染服务。
func (d *Decider) ShouldRender(r Request) bool {
	if r.UserAgent == "" || r.Method != http.MethodGet {
		return false
	}

	crawler := r.Escaped || r.Bufferbot
	if !crawler {
		ua := strings.ToLower(r.UserAgent)
		for _, agent := range d.agents {
			if strings.Contains(ua, agent) {
				crawler = true
				break
			}
		}
	}
	if !crawler {
		return false
	}

	if _, ignored := IgnoredExtensions[strings.ToLower(path.Ext(r.Path))]; ignored {
		return false
	}

	for _, re := range d.blacklist {
		if re.MatchString(r.URL) {
			return false
		}
		if r.Referer != "" && re.MatchString(r.Referer) {
			return false
		}
	}
	return true
}

// Snapshot 是一次预渲染结果。
type Snapshot struct {
	Status int
	Header http.Header
	Body   []byte
	Cached bool
}

// Renderer 负责访问预渲染服务并维护磁盘快照。
type Renderer struct {
	serviceURL string
	token      string
	ttl        time.Duration
	client     *http.Client
	store      cache.Store
	logger     *logrus.Logger
	now        func() time.Time
}

// NewRenderer 构造 Renderer；store 为 nil 或 CacheTTL<=0 时不缓存。
func NewRenderer(cfg config.PrerenderConfig, store cache.Store, logger *logrus.Logger) *Renderer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Renderer{
		serviceURL: strings.TrimRight(cfg.ServiceURL, "/"),
		token:      cfg.Token,
		ttl:        cfg.CacheTTL.DurationValue(),
		client:     NewClient(cfg.Timeout.DurationValue()),
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

func (r *Renderer) cacheEnabled() bool {
	return r.store != nil && r.ttl > 0
}

// Render 返回 fullURL 对应的快照，优先使用未过期的磁盘缓存。
func (r *Renderer) Render(ctx context.Context, fullURL, userAgent string) (*Snapshot, error) {
	locator := cache.Locator{Namespace: cacheNamespace, Key: fullURL}
	if r.cacheEnabled() {
		if snap := r.readCache(ctx, locator); snap != nil {
			return snap, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.serviceURL+"/"+fullURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if r.token != "" {
		req.Header.Set(HeaderToken, r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求预渲染服务失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取预渲染响应失败: %w", err)
	}

	header := http.Header{}
	CopyHeaders(header, resp.Header)
	snap := &Snapshot{Status: resp.StatusCode, Header: header, Body: body}

	if resp.StatusCode == http.StatusOK && r.cacheEnabled() {
		if _, err := r.store.Put(ctx, locator, bytes.NewReader(body), cache.PutOptions{ModTime: r.now()}); err != nil {
			r.logger.WithFields(logrus.Fields{"action": "prerender_cache", "url": fullURL}).
				Warnf("写入快照失败: %v", err)
		}
	}
	return snap, nil
}

// readCache 读取未过期的快照；过期条目会被顺手删除，避免旧快照长期占用磁盘。
func (r *Renderer) readCache(ctx context.Context, locator cache.Locator) *Snapshot {
	result, err := r.store.Get(ctx, locator)
	if err != nil {
		return nil
	}
	if !cache.Fresh(result.Entry, r.ttl, r.now()) {
		_ = result.Reader.Close()
		if err := r.store.Remove(ctx, locator); err != nil {
			r.logger.WithFields(logrus.Fields{"action": "prerender_cache", "url": locator.Key}).
				Warnf("清理过期快照失败: %v", err)
		}
		return nil
	}
	body, err := io.ReadAll(result.Reader)
	_ = result.Reader.Close()
	if err != nil {
		return nil
	}
	header := http.Header{}
	header.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return &Snapshot{Status: http.StatusOK, Header: header, Body: body, Cached: true}
}

// Middleware 对爬虫请求返回预渲染结果；服务不可用时回落到正常处理链。
func Middleware(decider *Decider, renderer *Renderer) fiber.Handler {
	return func(c fiber.Ctx) error {
		req := Request{
			Method:    c.Method(),
			Path:      c.Path(),
			URL:       string(c.Request().URI().RequestURI()),
			UserAgent: c.Get(fiber.HeaderUserAgent),
			Referer:   c.Get(fiber.HeaderReferer),
			Bufferbot: c.Get("X-Bufferbot") != "",
			Escaped:   c.Request().URI().QueryArgs().Has("_escaped_fragment_"),
		}
		if !decider.ShouldRender(req) {
			return c.Next()
		}

		fullURL := c.BaseURL() + req.URL
		ctx, cancel := context.WithTimeout(c.Context(), renderer.client.Timeout)
		defer cancel()

		snap, err := renderer.Render(ctx, fullURL, req.UserAgent)
		if err != nil {
			renderer.logger.WithFields(logrus.Fields{"action": "prerender", "url": fullURL}).Warn(err.Error())
			return c.Next()
		}

		for key, values := range snap.Header {
			for _, value := range values {
				c.Response().Header.Add(key, value)
			}
		}
		if snap.Cached {
			c.Set(HeaderCache, "hit")
		} else {
			c.Set(HeaderCache, "miss")
		}
		return c.Status(snap.Status).Send(snap.Body)
	}
}
