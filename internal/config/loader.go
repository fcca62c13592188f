package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 是覆盖配置项所用环境变量的前缀，例如 TRAME_LISTENPORT。
const EnvPrefix = "TRAME"

// Load 读取并解析配置文件（TOML/YAML/JSON 由扩展名决定），同时注入默认值、
// 环境变量覆盖与校验逻辑。配置文件同目录下的 .env 会先被载入。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

// loadDotEnv 载入配置文件旁的 .env；文件不存在时跳过，已有环境变量不会被覆盖。
func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("读取 .env 失败: %w", err)
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("解析 .env 失败: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 3000)
	v.SetDefault("Host", "0.0.0.0")
	v.SetDefault("Protocol", "http")
	v.SetDefault("CertFile", "")
	v.SetDefault("KeyFile", "")
	v.SetDefault("ShutdownTimeout", "10s")
	v.SetDefault("AppName", "")
	v.SetDefault("Env", "development")
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("ShowStackError", true)
	v.SetDefault("PrettyHTML", true)
	v.SetDefault("ViewEngine", "html")
	v.SetDefault("JSONP", false)
	v.SetDefault("MethodOverride", true)
	v.SetDefault("ETag", false)
	v.SetDefault("IconsDirectory", "./public/icons")

	v.SetDefault("CookieParser.Enable", false)
	v.SetDefault("Session.Enable", false)
	v.SetDefault("Session.HTTPOnly", true)
	v.SetDefault("Session.SameSite", "Lax")
	v.SetDefault("Session.IdleTimeout", "30m")
	v.SetDefault("Session.Store", "memory")
	v.SetDefault("Session.KeyPrefix", "trame:session:")
	v.SetDefault("Security.Enable", false)
	v.SetDefault("CORS.Enable", false)
	v.SetDefault("JWT.Enable", false)
	v.SetDefault("JWT.Algorithm", "HS256")
	v.SetDefault("VHost.Enable", false)
	v.SetDefault("VHost.RedirectCode", 301)
	v.SetDefault("Prerender.Enable", false)
	v.SetDefault("Prerender.ServiceURL", "https://service.prerender.io")
	v.SetDefault("Prerender.Timeout", "10s")
	v.SetDefault("Limiter.Enable", false)
	v.SetDefault("Limiter.Max", 100)
	v.SetDefault("Limiter.Expiration", "1m")
	v.SetDefault("Metrics.Enable", false)
	v.SetDefault("Metrics.Path", "/-/metrics")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 3000
	}
	if g.Host == "" {
		g.Host = "0.0.0.0"
	}
	g.Protocol = strings.ToLower(strings.TrimSpace(g.Protocol))
	if g.Protocol == "" {
		g.Protocol = "http"
	}
	if g.ShutdownTimeout.DurationValue() == 0 {
		g.ShutdownTimeout = Duration(10 * time.Second)
	}
	g.ViewEngine = strings.ToLower(strings.TrimSpace(g.ViewEngine))
	if g.ViewEngine == "" {
		g.ViewEngine = "html"
	}
	if strings.TrimSpace(g.AppName) == "" {
		g.AppName = DefaultAppName(time.Now())
	}
	g.AppName = NormalizeAppName(g.AppName)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
