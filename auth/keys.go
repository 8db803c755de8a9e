package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ceyewan/gacha/xerrors"
)

// LoadPublicKey 读取 PEM 格式的 RSA 公钥（PKIX 或 PKCS1）
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read public key %s", path)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "parse public key %s: %v", path, err)
	}
	return key, nil
}

// LoadPrivateKey 读取 PEM 格式的 RSA 私钥（PKCS1 或 PKCS8）
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read private key %s", path)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "parse private key %s: %v", path, err)
	}
	return key, nil
}

// WriteKeyPair 生成 RSA 密钥对并写入 dir/private.pem 与 dir/public.pem
func WriteKeyPair(dir string, bits int) (privatePath, publicPath string, err error) {
	if bits < 2048 {
		bits = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return "", "", xerrors.Wrap(err, "generate rsa key")
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return "", "", xerrors.Wrap(err, "marshal public key")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", xerrors.Wrapf(err, "create key dir %s", dir)
	}
	privatePath = filepath.Join(dir, "private.pem")
	publicPath = filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(privatePath, privPEM, 0o600); err != nil {
		return "", "", xerrors.Wrap(err, "write private key")
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})
	if err := os.WriteFile(publicPath, pubPEM, 0o644); err != nil {
		return "", "", xerrors.Wrap(err, "write public key")
	}
	return privatePath, publicPath, nil
}

// Signer 用私钥签发 RS256 令牌，供本地调试与测试使用
type Signer struct {
	key *rsa.PrivateKey
	now func() time.Time
}

// NewSigner 创建签发器
func NewSigner(key *rsa.PrivateKey) *Signer {
	return &Signer{key: key, now: time.Now}
}

// Sign 签发 sub/aud 令牌，ttl <= 0 时不设置 exp
func (s *Signer) Sign(subject, audience string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", xerrors.Wrap(err, "sign token")
	}
	return token, nil
}
