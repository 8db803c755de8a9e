package testkit

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/auth"
)

var (
	keyOnce sync.Once
	keyErr  error
	rsaKey  *rsa.PrivateKey
)

// KeyPair 测试用 RSA 密钥，整个测试进程共享同一把私钥
type KeyPair struct {
	Private    *rsa.PrivateKey
	PublicPath string
}

// NewKeyPair 返回共享私钥，并把公钥写入 t.TempDir()
func NewKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	keyOnce.Do(func() {
		rsaKey, keyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	require.NoError(t, keyErr, "failed to generate rsa key")

	der, err := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "public.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o644))
	return &KeyPair{Private: rsaKey, PublicPath: path}
}

// Verifier 用该密钥对的公钥创建校验器
func (k *KeyPair) Verifier(t *testing.T, audience string) *auth.Verifier {
	t.Helper()
	v, err := auth.NewVerifier(&auth.Config{PublicKeyPath: k.PublicPath, Audience: audience})
	require.NoError(t, err)
	return v
}

// Token 签发有效期 15 分钟的令牌
func (k *KeyPair) Token(t *testing.T, subject, audience string) string {
	t.Helper()
	token, err := auth.NewSigner(k.Private).Sign(subject, audience, 15*time.Minute)
	require.NoError(t, err)
	return token
}

// Bearer 返回 "Bearer <token>"
func (k *KeyPair) Bearer(t *testing.T, subject, audience string) string {
	return "Bearer " + k.Token(t, subject, audience)
}
