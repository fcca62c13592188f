// Package token 封装 JWT 的签发、校验与解码，密钥与算法可在运行期替换。
package token

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultAlgorithm 是未显式配置时使用的签名算法。
const DefaultAlgorithm = "HS256"

// Algorithms 列出允许使用的签名算法。
var Algorithms = []string{
	"HS256", "HS384", "HS512",
	"RS256", "RS384", "RS512",
	"ES256", "ES384", "ES512",
}

var (
	// ErrInvalidKey 表示密钥为空或无法按当前算法解析。
	ErrInvalidKey = errors.New("invalid signing key")
	// ErrVerifyOnly 表示当前密钥仅包含公钥，无法签名。
	ErrVerifyOnly = errors.New("key can only verify signatures")
)

// Supported 判断算法名是否在白名单内。
func Supported(algorithm string) bool {
	return slices.Contains(Algorithms, algorithm)
}

// Signer 持有当前算法与密钥，所有方法可并发调用。
type Signer struct {
	logger *logrus.Logger

	mu         sync.RWMutex
	algorithm  string
	key        []byte
	expiration time.Duration
}

// NewSigner 创建默认 HS256 + 随机 UUID 密钥的签名器；logger 为空时退回全局 logger。
func NewSigner(logger *logrus.Logger) *Signer {
	if logger == nil {
		logger = logrus.StandardLogger()
		logger.WithField("action", "jwt_init").Warn("未提供 logger，使用默认 logger")
	}
	return &Signer{
		logger:    logger,
		algorithm: DefaultAlgorithm,
		key:       []byte(uuid.NewString()),
	}
}

// Algorithm 返回当前使用的算法。
func (s *Signer) Algorithm() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.algorithm
}

// SetAlgorithm 切换签名算法；不在白名单内时保留原值并返回生效算法。
func (s *Signer) SetAlgorithm(algorithm string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !Supported(algorithm) {
		s.logger.WithFields(logrus.Fields{
			"action":    "jwt_algorithm",
			"requested": algorithm,
			"algorithm": s.algorithm,
		}).Warn("算法无效，保持原算法")
		return s.algorithm
	}
	s.algorithm = algorithm
	s.logger.WithFields(logrus.Fields{
		"action":    "jwt_algorithm",
		"algorithm": algorithm,
	}).Info("设置签名算法")
	return s.algorithm
}

// SetExpiration 设置默认有效期，0 表示不写入 exp。
func (s *Signer) SetExpiration(d time.Duration) {
	s.mu.Lock()
	s.expiration = d
	s.mu.Unlock()
}

// SetKey 设置签名密钥；file 为 true 时 keyOrPath 视为文件路径（相对路径基于工作目录）。
func (s *Signer) SetKey(keyOrPath string, file bool) error {
	if strings.TrimSpace(keyOrPath) == "" {
		s.logger.WithField("action", "jwt_key").Warn("密钥或路径为空")
		return ErrInvalidKey
	}

	key := []byte(keyOrPath)
	if file {
		path := keyOrPath
		if !filepath.IsAbs(path) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve key path: %w", err)
			}
			path = abs
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read key file: %w", err)
		}
		if len(content) == 0 {
			return fmt.Errorf("%w: key file %s is empty", ErrInvalidKey, path)
		}
		key = content
	}

	s.mu.Lock()
	s.key = key
	s.mu.Unlock()

	s.logger.WithField("action", "jwt_key").Info("密钥设置完成")
	return nil
}

// CheckKey 按当前算法解析密钥，用于在启动阶段提前发现无法使用的 PEM。
func (s *Signer) CheckKey() error {
	s.mu.RLock()
	algorithm := s.algorithm
	key := s.key
	s.mu.RUnlock()

	if _, _, err := keysFor(algorithm, key); err != nil {
		return fmt.Errorf("%s 密钥不可用: %w", algorithm, err)
	}
	return nil
}

// SignOption 调整单次签名的参数。
type SignOption func(*signOptions)

type signOptions struct {
	algorithm  string
	expiration time.Duration
}

// WithAlgorithm 为单次签名指定算法；不在白名单内时忽略。
func WithAlgorithm(algorithm string) SignOption {
	return func(o *signOptions) {
		if Supported(algorithm) {
			o.algorithm = algorithm
		}
	}
}

// WithExpiration 为单次签名指定有效期。
func WithExpiration(d time.Duration) SignOption {
	return func(o *signOptions) {
		o.expiration = d
	}
}

// Sign 签发令牌。claims 会被复制，调用方的 map 不会被修改。
func (s *Signer) Sign(claims jwt.MapClaims, opts ...SignOption) (string, error) {
	s.mu.RLock()
	options := signOptions{algorithm: s.algorithm, expiration: s.expiration}
	key := s.key
	s.mu.RUnlock()

	for _, opt := range opts {
		opt(&options)
	}

	signKey, _, err := keysFor(options.algorithm, key)
	if err != nil {
		return "", err
	}
	if signKey == nil {
		return "", ErrVerifyOnly
	}

	payload := make(jwt.MapClaims, len(claims)+2)
	for k, v := range claims {
		payload[k] = v
	}
	if options.expiration > 0 {
		now := time.Now()
		payload["iat"] = jwt.NewNumericDate(now)
		payload["exp"] = jwt.NewNumericDate(now.Add(options.expiration))
	}

	tok := jwt.NewWithClaims(jwt.GetSigningMethod(options.algorithm), payload)
	return tok.SignedString(signKey)
}

// Verify 校验签名与标准声明，只接受当前算法签发的令牌。
func (s *Signer) Verify(raw string) (jwt.MapClaims, error) {
	s.mu.RLock()
	algorithm := s.algorithm
	key := s.key
	s.mu.RUnlock()

	_, verifyKey, err := keysFor(algorithm, key)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return verifyKey, nil
	}, jwt.WithValidMethods([]string{algorithm}))
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"action":    "jwt_verify",
			"algorithm": algorithm,
		}).Error(err.Error())
		return nil, err
	}
	return claims, nil
}

// Decode 解析令牌内容但不校验签名。
func (s *Signer) Decode(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// keysFor 按算法族解析签名与校验密钥；仅有公钥时签名密钥为 nil。
func keysFor(algorithm string, key []byte) (any, any, error) {
	if len(key) == 0 {
		return nil, nil, ErrInvalidKey
	}

	switch {
	case strings.HasPrefix(algorithm, "HS"):
		return key, key, nil
	case strings.HasPrefix(algorithm, "RS"):
		if priv, err := jwt.ParseRSAPrivateKeyFromPEM(key); err == nil {
			return priv, &priv.PublicKey, nil
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM(key)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return nil, pub, nil
	case strings.HasPrefix(algorithm, "ES"):
		if priv, err := jwt.ParseECPrivateKeyFromPEM(key); err == nil {
			return priv, &priv.PublicKey, nil
		}
		pub, err := jwt.ParseECPublicKeyFromPEM(key)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return nil, pub, nil
	default:
		return nil, nil, fmt.Errorf("unsupported algorithm %s", algorithm)
	}
}
