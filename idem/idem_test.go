package idem

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/connector"
	"github.com/ceyewan/gacha/testkit"
)

func newMemory(t *testing.T) *Idem {
	t.Helper()
	im, err := New(&Config{Driver: DriverMemory}, WithLogger(testkit.NewLogger()))
	require.NoError(t, err)
	return im
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfigNil)

	_, err = New(&Config{Driver: DriverRedis})
	assert.Error(t, err)

	_, err = New(&Config{Driver: "etcd"})
	assert.Error(t, err)
}

func TestExecute(t *testing.T) {
	im := newMemory(t)
	ctx := context.Background()
	var calls atomic.Int32
	fn := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("done"), nil
	}

	got, executed, err := im.Execute(ctx, "k1", fn)
	require.NoError(t, err)
	assert.True(t, executed)
	assert.Equal(t, "done", string(got))

	got, executed, err = im.Execute(ctx, "k1", fn)
	require.NoError(t, err)
	assert.False(t, executed)
	assert.Equal(t, "done", string(got))
	assert.Equal(t, int32(1), calls.Load())

	_, _, err = im.Execute(ctx, "", fn)
	assert.ErrorIs(t, err, ErrKeyEmpty)
}

func TestExecuteFailureReleasesLock(t *testing.T) {
	im := newMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, executed, err := im.Execute(ctx, "k", func(context.Context) ([]byte, error) { return nil, boom })
	assert.True(t, executed)
	assert.ErrorIs(t, err, boom)

	got, executed, err := im.Execute(ctx, "k", func(context.Context) ([]byte, error) { return []byte("ok"), nil })
	require.NoError(t, err)
	assert.True(t, executed)
	assert.Equal(t, "ok", string(got))
}

func TestExecuteConcurrent(t *testing.T) {
	im := newMemory(t)
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _, _ = im.Execute(ctx, "k", func(context.Context) ([]byte, error) {
			close(entered)
			<-release
			return []byte("ok"), nil
		})
	}()
	<-entered

	_, executed, err := im.Execute(ctx, "k", func(context.Context) ([]byte, error) { return []byte("dup"), nil })
	assert.False(t, executed)
	assert.ErrorIs(t, err, ErrConcurrentRequest)
	close(release)
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	ms := newMemoryStore("p:", func() time.Time { return now })
	ctx := context.Background()

	ok, err := ms.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = ms.Lock(ctx, "k", time.Second)
	assert.False(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = ms.Lock(ctx, "k", time.Second)
	assert.True(t, ok, "expired lock can be taken again")

	require.NoError(t, ms.SetResult(ctx, "k", []byte("v"), time.Minute))
	v, err := ms.GetResult(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))

	now = now.Add(time.Hour)
	_, err = ms.GetResult(ctx, "k")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	im := newMemory(t)
	var calls atomic.Int32

	r := gin.New()
	r.POST("/charge", im.GinMiddleware(), func(c *gin.Context) {
		n := calls.Add(1)
		if c.Query("fail") != "" {
			c.JSON(http.StatusBadRequest, gin.H{"Error": "bad"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"n": n})
	})

	do := func(key, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/charge"+query, nil)
		if key != "" {
			req.Header.Set(DefaultHeader, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := do("a", "")
	require.Equal(t, http.StatusOK, first.Code)
	again := do("a", "")
	assert.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, first.Body.String(), again.Body.String())
	assert.Equal(t, "true", again.Header().Get(HeaderReplayed))
	assert.Contains(t, again.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, int32(1), calls.Load())

	// 无键请求不去重
	do("", "")
	do("", "")
	assert.Equal(t, int32(3), calls.Load())

	// 非 2xx 不缓存
	assert.Equal(t, http.StatusBadRequest, do("b", "?fail=1").Code)
	assert.Equal(t, http.StatusOK, do("b", "").Code)
	assert.Equal(t, int32(5), calls.Load())
}

func TestRedisStore(t *testing.T) {
	ctx := testkit.NewContext(t, time.Minute)
	conn, err := connector.NewRedis(testkit.NewRedisContainerConfig(t), connector.WithLogger(clog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.Connect(ctx))

	im, err := New(&Config{Driver: DriverRedis, Prefix: "test:idem:" + testkit.NewID() + ":"}, WithRedisConnector(conn))
	require.NoError(t, err)

	var calls atomic.Int32
	fn := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("paid"), nil
	}
	for range 3 {
		got, _, err := im.Execute(ctx, "order", fn)
		require.NoError(t, err)
		assert.Equal(t, "paid", string(got))
	}
	assert.Equal(t, int32(1), calls.Load())
}
