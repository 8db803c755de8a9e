package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/auth"
	"github.com/ceyewan/gacha/idem"
	"github.com/ceyewan/gacha/testkit"
)

type fixture struct {
	svc    *Service
	router *gin.Engine
	keys   *testkit.KeyPair
}

func newFixture(t *testing.T, cfg *Config, im ...*idem.Idem) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	keys := testkit.NewKeyPair(t)

	deps := Deps{
		DB:       testkit.NewDB(t),
		Verifier: keys.Verifier(t, auth.AudiencePayment),
		Logger:   testkit.NewLogger(),
	}
	if len(im) > 0 {
		deps.Idem = im[0]
	}
	svc, err := New(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, svc.Migrate(context.Background()))

	r := gin.New()
	svc.Routes(r)
	return &fixture{svc: svc, router: r, keys: keys}
}

func (f *fixture) buy(t *testing.T, token string, form url.Values, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/buycurrency", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) get(t *testing.T, token, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func body(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestBuyCurrency(t *testing.T) {
	f := newFixture(t, &Config{MaxAmount: 1000})
	token := f.keys.Bearer(t, "alice", auth.AudiencePayment)

	w := f.get(t, token, "/getBalance?username=alice")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Account not found", body(t, w)["Error"])

	w = f.buy(t, token, url.Values{"username": {"alice"}, "amount": {"100"}, "payment_method": {"card"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 100.0, body(t, w)["balance"])

	w = f.buy(t, token, url.Values{"username": {"alice"}, "amount": {"50.5"}, "payment_method": {"paypal"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 150.5, body(t, w)["balance"])

	w = f.get(t, token, "/getBalance?username=alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 150.5, body(t, w)["balance"])

	w = f.get(t, token, "/viewTrans?username=alice")
	require.Equal(t, http.StatusOK, w.Code)
	var txns []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txns))
	require.Len(t, txns, 2)
	for _, txn := range txns {
		assert.Equal(t, "alice", txn["payer_us"])
		assert.Equal(t, SystemAccount, txn["receiver_us"])
		assert.NotEmpty(t, txn["id"])
		assert.NotEmpty(t, txn["date"])
	}
}

func TestBuyCurrencyValidation(t *testing.T) {
	f := newFixture(t, &Config{MaxAmount: 1000})
	token := f.keys.Bearer(t, "alice", auth.AudiencePayment)

	tests := []struct {
		name   string
		form   url.Values
		status int
	}{
		{"missing method", url.Values{"username": {"alice"}, "amount": {"10"}}, http.StatusBadRequest},
		{"negative", url.Values{"username": {"alice"}, "amount": {"-5"}, "payment_method": {"card"}}, http.StatusBadRequest},
		{"not a number", url.Values{"username": {"alice"}, "amount": {"ten"}, "payment_method": {"card"}}, http.StatusBadRequest},
		{"over limit", url.Values{"username": {"alice"}, "amount": {"1001"}, "payment_method": {"card"}}, http.StatusBadRequest},
		{"other user", url.Values{"username": {"bob"}, "amount": {"10"}, "payment_method": {"card"}}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.buy(t, token, tt.form)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := f.buy(t, f.keys.Bearer(t, "alice", auth.AudienceProfile), url.Values{"username": {"alice"}, "amount": {"10"}, "payment_method": {"card"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.get(t, token, "/viewTrans?username=bob")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDepositConcurrent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.store.Deposit(ctx, "alice", 1, "card")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := f.svc.store.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10.0, balance)

	txns, err := f.svc.store.Transactions(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, txns, 10)
}

func TestBuyCurrencyIdempotencyKey(t *testing.T) {
	im, err := idem.New(&idem.Config{Driver: idem.DriverMemory}, idem.WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	f := newFixture(t, nil, im)
	token := f.keys.Bearer(t, "alice", auth.AudiencePayment)
	form := url.Values{"username": {"alice"}, "amount": {"40"}, "payment_method": {"card"}}

	first := f.buy(t, token, form, idem.DefaultHeader, "order-1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	replay := f.buy(t, token, form, idem.DefaultHeader, "order-1")
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "true", replay.Header().Get(idem.HeaderReplayed))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	w := f.get(t, token, "/getBalance?username=alice")
	assert.Equal(t, 40.0, body(t, w)["balance"])

	// 新的键视为新的购买
	require.Equal(t, http.StatusOK, f.buy(t, token, form, idem.DefaultHeader, "order-2").Code)
	w = f.get(t, token, "/getBalance?username=alice")
	assert.Equal(t, 80.0, body(t, w)["balance"])

	// 失败的请求不占用键
	bad := url.Values{"username": {"alice"}, "amount": {"-1"}, "payment_method": {"card"}}
	assert.Equal(t, http.StatusBadRequest, f.buy(t, token, bad, idem.DefaultHeader, "order-3").Code)
	assert.Equal(t, http.StatusOK, f.buy(t, token, form, idem.DefaultHeader, "order-3").Code)
}
