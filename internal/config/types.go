package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// MarshalText 以 Go Duration 字符串输出，便于 --print-config 可读。
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述监听、日志以及应用级开关，位于配置文件顶层。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	Host            string   `mapstructure:"Host"`
	Protocol        string   `mapstructure:"Protocol"`
	CertFile        string   `mapstructure:"CertFile"`
	KeyFile         string   `mapstructure:"KeyFile"`
	ShutdownTimeout Duration `mapstructure:"ShutdownTimeout"`

	AppName string `mapstructure:"AppName"`
	Env     string `mapstructure:"Env"`

	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// StoragePath 存放预渲染快照等磁盘缓存。
	StoragePath string `mapstructure:"StoragePath"`

	ShowStackError bool   `mapstructure:"ShowStackError"`
	PrettyHTML     bool   `mapstructure:"PrettyHTML"`
	ViewEngine     string `mapstructure:"ViewEngine"`
	JSONP          bool   `mapstructure:"JSONP"`
	MethodOverride bool   `mapstructure:"MethodOverride"`
	ETag           bool   `mapstructure:"ETag"`
	IconsDirectory string `mapstructure:"IconsDirectory"`
}

// DirectoryConfig 声明一个需要挂载的目录；Name 为 views 时作为模板目录。
type DirectoryConfig struct {
	Name   string `mapstructure:"Name"`
	Path   string `mapstructure:"Path"`
	Prefix string `mapstructure:"Prefix"`
}

// CompressionConfig 对应响应压缩过滤规则：By 指定的响应头匹配 Rules 时才压缩。
type CompressionConfig struct {
	Rules string `mapstructure:"Rules"`
	By    string `mapstructure:"By"`
	Level int    `mapstructure:"Level"`
}

// Enabled 要求 Rules 与 By 同时给出；Level 缺省为 0（默认压缩级别），-1 表示关闭。
func (c CompressionConfig) Enabled() bool {
	return strings.TrimSpace(c.Rules) != "" && strings.TrimSpace(c.By) != ""
}

type CookieParserConfig struct {
	Enable bool     `mapstructure:"Enable"`
	Secret string   `mapstructure:"Secret"`
	Except []string `mapstructure:"Except"`
}

// SessionConfig 控制会话中间件与其存储后端。
type SessionConfig struct {
	Enable      bool     `mapstructure:"Enable"`
	Secure      bool     `mapstructure:"Secure"`
	HTTPOnly    bool     `mapstructure:"HTTPOnly"`
	SameSite    string   `mapstructure:"SameSite"`
	GenUUID     bool     `mapstructure:"GenUUID"`
	Proxy       bool     `mapstructure:"Proxy"`
	IdleTimeout Duration `mapstructure:"IdleTimeout"`
	Store       string   `mapstructure:"Store"`
	RedisURL    string   `mapstructure:"RedisURL"`
	KeyPrefix   string   `mapstructure:"KeyPrefix"`
}

type SecurityConfig struct {
	Enable                bool   `mapstructure:"Enable"`
	ContentSecurityPolicy string `mapstructure:"ContentSecurityPolicy"`
	XFrameOptions         string `mapstructure:"XFrameOptions"`
	ReferrerPolicy        string `mapstructure:"ReferrerPolicy"`
	HSTSMaxAge            int    `mapstructure:"HSTSMaxAge"`
	HSTSPreload           bool   `mapstructure:"HSTSPreload"`
	PermissionPolicy      string `mapstructure:"PermissionPolicy"`
}

type CORSConfig struct {
	Enable        bool     `mapstructure:"Enable"`
	Origins       []string `mapstructure:"Origins"`
	Methods       []string `mapstructure:"Methods"`
	Headers       []string `mapstructure:"Headers"`
	ExposeHeaders []string `mapstructure:"ExposeHeaders"`
	Credentials   bool     `mapstructure:"Credentials"`
	MaxAge        int      `mapstructure:"MaxAge"`
}

// JWTConfig 描述令牌签名算法与密钥来源，Ignore 中的路径前缀不做校验。
type JWTConfig struct {
	Enable     bool     `mapstructure:"Enable"`
	Algorithm  string   `mapstructure:"Algorithm"`
	Key        string   `mapstructure:"Key"`
	KeyFile    string   `mapstructure:"KeyFile"`
	Ignore     []string `mapstructure:"Ignore"`
	Expiration Duration `mapstructure:"Expiration"`
}

type RedirectConfig struct {
	From string `mapstructure:"From"`
	To   string `mapstructure:"To"`
	Code int    `mapstructure:"Code"`
}

// VHostConfig 描述主域名、别名以及跳转到主域名的规则。
type VHostConfig struct {
	Enable       bool     `mapstructure:"Enable"`
	URL          string   `mapstructure:"URL"`
	Aliases      []string `mapstructure:"Aliases"`
	Subdomains   bool     `mapstructure:"Subdomains"`
	RedirectURL  string   `mapstructure:"RedirectURL"`
	RedirectCode int      `mapstructure:"RedirectCode"`
}

type PrerenderConfig struct {
	Enable            bool     `mapstructure:"Enable"`
	ServiceURL        string   `mapstructure:"ServiceURL"`
	Token             string   `mapstructure:"Token"`
	Blacklist         []string `mapstructure:"Blacklist"`
	CrawlerUserAgents []string `mapstructure:"CrawlerUserAgents"`
	CacheTTL          Duration `mapstructure:"CacheTTL"`
	Timeout           Duration `mapstructure:"Timeout"`
}

type LimiterConfig struct {
	Enable     bool     `mapstructure:"Enable"`
	Max        int      `mapstructure:"Max"`
	Expiration Duration `mapstructure:"Expiration"`
}

type MetricsConfig struct {
	Enable bool   `mapstructure:"Enable"`
	Path   string `mapstructure:"Path"`
}

// Config 是配置文件映射的整体结构。
type Config struct {
	Global       GlobalConfig       `mapstructure:",squash" yaml:",inline"`
	Directories  []DirectoryConfig  `mapstructure:"Directory"`
	Compression  CompressionConfig  `mapstructure:"Compression"`
	CookieParser CookieParserConfig `mapstructure:"CookieParser"`
	Session      SessionConfig      `mapstructure:"Session"`
	Security     SecurityConfig     `mapstructure:"Security"`
	CORS         CORSConfig         `mapstructure:"CORS"`
	JWT          JWTConfig          `mapstructure:"JWT"`
	Redirects    []RedirectConfig   `mapstructure:"Redirect"`
	VHost        VHostConfig        `mapstructure:"VHost"`
	Prerender    PrerenderConfig    `mapstructure:"Prerender"`
	Limiter      LimiterConfig      `mapstructure:"Limiter"`
	Metrics      MetricsConfig      `mapstructure:"Metrics"`
}

// Directory 按名称查找目录配置。
func (c *Config) Directory(name string) (DirectoryConfig, bool) {
	if c == nil {
		return DirectoryConfig{}, false
	}
	for _, dir := range c.Directories {
		if dir.Name == name {
			return dir, true
		}
	}
	return DirectoryConfig{}, false
}

// Address 返回 Host:Port 形式的监听地址。
func (g GlobalConfig) Address() string {
	return fmt.Sprintf("%s:%d", g.Host, g.ListenPort)
}

// TLSEnabled 表示是否以 https 方式监听。
func (g GlobalConfig) TLSEnabled() bool {
	return strings.EqualFold(g.Protocol, "https")
}
