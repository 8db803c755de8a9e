package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/breaker"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/xerrors"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newRegistry(t *testing.T, clock breaker.Clock) *breaker.Registry {
	t.Helper()
	reg, err := breaker.NewRegistry(&breaker.Config{FailureThreshold: 3, ResetTimeout: 10 * time.Second},
		breaker.WithClock(clock))
	require.NoError(t, err)
	return reg
}

func newClient(t *testing.T, baseURL string, reg *breaker.Registry) *Client {
	t.Helper()
	c, err := New("payment", &Config{BaseURL: baseURL, Timeout: time.Second}, reg)
	require.NoError(t, err)
	return c
}

// closedURL 返回一个已关闭服务的地址，请求会得到 connection refused
func closedURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func TestCall_JSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getBalance", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("username"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "req-42", r.Header.Get(HeaderRequestID))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"balance": 120.5}`))
	}))
	defer srv.Close()

	reg := newRegistry(t, breaker.SystemClock)
	c := newClient(t, srv.URL, reg)

	ctx := clog.WithRequestID(context.Background(), "req-42")
	res := c.Call(ctx, Request{
		Method:  http.MethodGet,
		Target:  "/getBalance",
		Payload: url.Values{"username": {"alice"}},
		Headers: http.Header{"Authorization": {"Bearer tok"}},
	})

	require.True(t, res.OK())
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, 120.5, res.Get("balance").Float())
	assert.NoError(t, res.Err())
	assert.Equal(t, breaker.StateClosed, reg.Get("payment").State())
}

func TestCall_JSONBodyOnGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"Dragon", "Phoenix"}, body["gacha_name"])
		_, _ = w.Write([]byte(`[{"gacha_name":"Dragon"},{"gacha_name":"Phoenix"}]`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, newRegistry(t, breaker.SystemClock))
	res := c.Call(context.Background(), Request{
		Method:  http.MethodGet,
		Target:  "get_gacha_collection",
		Payload: map[string][]string{"gacha_name": {"Dragon", "Phoenix"}},
		JSON:    true,
	})

	require.True(t, res.OK())
	require.Len(t, res.Array(), 2)
	assert.Equal(t, "Phoenix", res.Get("1.gacha_name").String())
}

func TestCall_FormBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "10", r.PostForm.Get("amount"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, newRegistry(t, breaker.SystemClock))
	res := c.Call(context.Background(), Request{
		Method:  http.MethodPost,
		Target:  "/buycurrency",
		Payload: map[string]string{"amount": "10"},
	})
	assert.True(t, res.OK())
}

func TestCall_BinaryImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL, newRegistry(t, breaker.SystemClock))
	res := c.Call(context.Background(), Request{Method: http.MethodGet, Target: "/uploads/dragon.png"})

	require.True(t, res.IsBinary())
	assert.Equal(t, png, res.Body)
	assert.Equal(t, "image/png", res.ContentType)
}

func TestCall_RemoteErrorPassesThroughWithoutTripping(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "database unavailable")
	}))
	defer srv.Close()

	reg := newRegistry(t, breaker.SystemClock)
	c := newClient(t, srv.URL, reg)

	for i := 0; i < 5; i++ {
		res := c.Call(context.Background(), Request{Method: http.MethodGet, Target: "/getBalance"})
		assert.Equal(t, http.StatusInternalServerError, res.Status)
		assert.Equal(t, "database unavailable", res.ErrorMessage())
		assert.Equal(t, xerrors.KindRemoteError, res.Kind)
	}

	assert.EqualValues(t, 5, atomic.LoadInt32(&hits))
	assert.Equal(t, breaker.StateClosed, reg.Get("payment").State())
}

func TestCall_TransportFailuresOpenCircuit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	reg := newRegistry(t, clock)
	c := newClient(t, closedURL(t), reg)

	for i := 0; i < 3; i++ {
		res := c.Call(context.Background(), Request{Method: http.MethodGet, Target: "/getBalance"})
		assert.Equal(t, http.StatusServiceUnavailable, res.Status)
		assert.Equal(t, xerrors.KindTransportFailure, res.Kind)
		assert.Contains(t, res.ErrorMessage(), "Error calling the service: ")
	}
	require.Equal(t, breaker.StateOpen, reg.Get("payment").State())

	clock.now = clock.now.Add(5 * time.Second)
	res := c.Call(context.Background(), Request{Method: http.MethodGet, Target: "/getBalance"})
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, MsgOpenCircuit, res.ErrorMessage())
	assert.Equal(t, xerrors.KindBreakerOpen, res.Kind)
	assert.Equal(t, xerrors.KindBreakerOpen, xerrors.KindOf(res.Err()))
}

func TestCall_RecoversAfterResetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"balance": 1}`))
	}))
	defer srv.Close()

	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	reg := newRegistry(t, clock)
	for i := 0; i < 3; i++ {
		reg.RecordFailure("payment")
	}

	c := newClient(t, srv.URL, reg)
	clock.now = clock.now.Add(11 * time.Second)

	res := c.Call(context.Background(), Request{Method: http.MethodGet, Target: "/getBalance"})
	assert.True(t, res.OK())
	assert.Equal(t, breaker.StateClosed, reg.Get("payment").State())
}

func TestCall_InvalidPayloadDoesNotTouchBreaker(t *testing.T) {
	reg := newRegistry(t, breaker.SystemClock)
	c := newClient(t, closedURL(t), reg)

	res := c.Call(context.Background(), Request{Method: http.MethodPost, Target: "/x", Payload: 42})
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, xerrors.KindInternal, res.Kind)
	assert.Zero(t, reg.Get("payment").Snapshot().FailureCount)
}

func TestNew_Validation(t *testing.T) {
	reg := newRegistry(t, breaker.SystemClock)

	_, err := New("", &Config{BaseURL: "http://x"}, reg)
	assert.Error(t, err)
	_, err = New("payment", &Config{}, reg)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
	_, err = New("payment", &Config{BaseURL: "http://x"}, nil)
	assert.Error(t, err)
}

func TestIsBinary(t *testing.T) {
	assert.True(t, isBinary("image/jpeg"))
	assert.True(t, isBinary("application/octet-stream"))
	assert.False(t, isBinary("application/json; charset=utf-8"))
	assert.False(t, isBinary(""))
}
