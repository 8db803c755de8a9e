// Package auth 校验服务间传递的 RS256 访问令牌。
//
// 令牌由认证服务签发，各服务只持有公钥：
//
//	verifier, _ := auth.NewVerifier(&auth.Config{
//	    PublicKeyPath: "/keys/public.pem",
//	    Audience:      auth.AudienceProfile,
//	}, auth.WithLogger(logger))
//
//	id, err := verifier.Verify(ctx, raw, auth.AudienceProfile)
//	if err := auth.Authorize(id, username); err != nil { ... } // 403
//
// 校验通过的令牌会缓存到过期为止，同一令牌的重复请求不再做 RSA 验签。
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/metrics"
	"github.com/ceyewan/gacha/xerrors"
)

const (
	AudienceProfile = "profile_setting"
	AudiencePayment = "payment_service"
)

// Identity 已验证的调用者，只在单次请求内有效
type Identity struct {
	Subject  string
	Audience string
	Expiry   time.Time // 令牌无 exp 时为零值
}

// Config 校验配置
//
//	auth:
//	  public_key_path: /keys/public.pem
//	  audience: profile_setting
//	  leeway: 5s
//	  cache_size: 10000
type Config struct {
	PublicKeyPath string        `mapstructure:"public_key_path"`
	Audience      string        `mapstructure:"audience"`
	Leeway        time.Duration `mapstructure:"leeway"`

	// CacheSize 已验证令牌的缓存上限，0 使用默认 10000，负数禁用
	CacheSize int `mapstructure:"cache_size"`
	// CacheTTL 缓存条目的最长存活时间（默认 5m），不会超过令牌本身的 exp
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func (c *Config) setDefaults() {
	if c.CacheSize == 0 {
		c.CacheSize = 10000
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
}

// Verifier RS256 令牌校验器，并发安全
type Verifier struct {
	cfg   Config
	key   *rsa.PublicKey
	cache *otter.Cache[string, *Identity]

	logger    clog.Logger
	validated metrics.Counter
	now       func() time.Time
}

// NewVerifier 从 PublicKeyPath 加载公钥，只在构造时读取一次
func NewVerifier(cfg *Config, opts ...Option) (*Verifier, error) {
	if cfg == nil || cfg.PublicKeyPath == "" {
		return nil, xerrors.Wrap(ErrInvalidConfig, "public_key_path is required")
	}
	key, err := LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, err
	}
	return NewVerifierWithKey(key, cfg, opts...)
}

// NewVerifierWithKey 使用已加载的公钥创建校验器
func NewVerifierWithKey(key *rsa.PublicKey, cfg *Config, opts ...Option) (*Verifier, error) {
	if key == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "public key is nil")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	validated, err := o.meter.Counter(MetricTokensValidated, "Total number of tokens validated")
	if err != nil {
		return nil, err
	}

	v := &Verifier{
		cfg:       c,
		key:       key,
		logger:    o.logger,
		validated: validated,
		now:       o.now,
	}

	if c.CacheSize > 0 {
		v.cache, err = otter.New(&otter.Options[string, *Identity]{
			MaximumSize:      c.CacheSize,
			ExpiryCalculator: otter.ExpiryWriting[string, *Identity](c.CacheTTL),
		})
		if err != nil {
			return nil, xerrors.Wrap(err, "create token cache")
		}
	}
	return v, nil
}

// Audience 默认 audience
func (v *Verifier) Audience() string { return v.cfg.Audience }

// Verify 校验令牌签名、算法、audience、过期时间与 sub
//
// expectedAudience 为空时使用 Config.Audience。失败时返回 ErrTokenExpired 或 ErrTokenInvalid。
func (v *Verifier) Verify(ctx context.Context, raw string, expectedAudience string) (*Identity, error) {
	if expectedAudience == "" {
		expectedAudience = v.cfg.Audience
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || expectedAudience == "" {
		v.observe(ctx, "error", "invalid_token")
		return nil, ErrTokenInvalid
	}

	cacheKey := expectedAudience + "|" + raw
	if v.cache != nil {
		if id, ok := v.cache.GetIfPresent(cacheKey); ok {
			if id.Expiry.IsZero() || v.now().Before(id.Expiry.Add(v.cfg.Leeway)) {
				v.observe(ctx, "success", "cached")
				return id, nil
			}
			v.cache.Invalidate(cacheKey)
		}
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(expectedAudience),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			v.observe(ctx, "error", "expired")
			return nil, ErrTokenExpired
		}
		v.observe(ctx, "error", "invalid_token")
		v.logger.DebugContext(ctx, "token rejected", clog.Error(err))
		return nil, xerrors.Wrap(ErrTokenInvalid, err.Error())
	}
	if claims.Subject == "" {
		v.observe(ctx, "error", "missing_subject")
		return nil, xerrors.Wrap(ErrTokenInvalid, "missing sub claim")
	}

	id := &Identity{Subject: claims.Subject, Audience: expectedAudience}
	if claims.ExpiresAt != nil {
		id.Expiry = claims.ExpiresAt.Time
	}

	if v.cache != nil {
		v.cache.Set(cacheKey, id)
		if !id.Expiry.IsZero() {
			if ttl := id.Expiry.Sub(v.now()); ttl < v.cfg.CacheTTL {
				v.cache.SetExpiresAfter(cacheKey, ttl)
			}
		}
	}

	v.observe(ctx, "success", "")
	return id, nil
}

// keyFunc 只接受 RSA 签名
func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, xerrors.Wrapf(ErrTokenInvalid, "unexpected signing method %v", token.Header["alg"])
	}
	return v.key, nil
}

func (v *Verifier) observe(ctx context.Context, status, errType string) {
	labels := []metrics.Label{metrics.L("status", status)}
	if errType != "" {
		labels = append(labels, metrics.L("error_type", errType))
	}
	v.validated.Inc(ctx, labels...)
}

// Authorize 请求中携带的用户名必须与令牌 sub 一致，用户名为空时不检查
func Authorize(id *Identity, requestedUsername string) error {
	if id == nil {
		return ErrTokenInvalid
	}
	if requestedUsername != "" && requestedUsername != id.Subject {
		return ErrSubjectMismatch
	}
	return nil
}

// BearerToken 去掉 "Bearer " 前缀，没有前缀时原样返回
func BearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
