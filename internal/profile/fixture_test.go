package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/auth"
	"github.com/ceyewan/gacha/breaker"
	"github.com/ceyewan/gacha/client"
	"github.com/ceyewan/gacha/internal/uploads"
	"github.com/ceyewan/gacha/mq"
	"github.com/ceyewan/gacha/testkit"
)

type fixture struct {
	svc      *Service
	router   *gin.Engine
	keys     *testkit.KeyPair
	registry *breaker.Registry
}

// closedURL 已关闭服务的地址，请求会得到 connection refused
func closedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func serve(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

func newFixture(t *testing.T, catalogURL, paymentURL string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	keys := testkit.NewKeyPair(t)
	reg, err := breaker.NewRegistry(breaker.DefaultConfig(), breaker.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)

	catalog, err := client.New("catalog", &client.Config{BaseURL: catalogURL, Timeout: time.Second}, reg)
	require.NoError(t, err)
	payment, err := client.New("payment", &client.Config{BaseURL: paymentURL, Timeout: time.Second}, reg)
	require.NoError(t, err)

	dir, err := uploads.New(&uploads.Config{Dir: t.TempDir()})
	require.NoError(t, err)

	svc, err := New(nil, Deps{
		DB:       testkit.NewDB(t),
		Catalog:  catalog,
		Payment:  payment,
		Verifier: keys.Verifier(t, auth.AudienceProfile),
		Uploads:  dir,
		MQ:       mq.Discard(),
		Logger:   testkit.NewLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Migrate(context.Background()))

	r := gin.New()
	svc.Routes(r)
	return &fixture{svc: svc, router: r, keys: keys, registry: reg}
}

func (f *fixture) bearer(t *testing.T, sub string) string {
	return f.keys.Bearer(t, sub, auth.AudienceProfile)
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) doJSON(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	return f.do(req)
}

func (f *fixture) createProfile(t *testing.T, username string, balance float64) {
	t.Helper()
	w := f.doJSON(t, http.MethodPost, "/create_profile", "", map[string]any{
		"username": username, "email": username + "@example.com", "currency_balance": balance,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (f *fixture) insertGacha(t *testing.T, username, gacha string, at time.Time) {
	t.Helper()
	w := f.doJSON(t, http.MethodPost, "/insertGacha", "", map[string]any{
		"username": username, "gacha_name": gacha, "collected_date": at.Format("2006-01-02T15:04:05"),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

type testMessage struct {
	data []byte
}

func (m testMessage) Context() context.Context { return context.Background() }
func (m testMessage) Subject() string          { return "gacha.deleted" }
func (m testMessage) Data() []byte             { return m.data }
func (m testMessage) Headers() mq.Headers      { return mq.Headers{} }
