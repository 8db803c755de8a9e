package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/internal/events"
	"github.com/ceyewan/gacha/internal/uploads"
	"github.com/ceyewan/gacha/mq"
	"github.com/ceyewan/gacha/testkit"
)

type published struct {
	subject string
	data    []byte
}

type recordingMQ struct {
	mu   sync.Mutex
	msgs []published
}

func (r *recordingMQ) Publish(_ context.Context, subject string, data []byte, _ ...mq.PublishOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{subject: subject, data: data})
	return nil
}

func (r *recordingMQ) Subscribe(context.Context, string, mq.Handler, ...mq.SubscribeOption) (mq.Subscription, error) {
	return mq.Discard().Subscribe(context.Background(), "", nil)
}

func (r *recordingMQ) Close() error { return nil }

type fixture struct {
	svc    *Service
	router *gin.Engine
	dir    *uploads.Dir
	mq     *recordingMQ
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir, err := uploads.New(&uploads.Config{Dir: t.TempDir(), Extensions: ImageExtensions})
	require.NoError(t, err)
	rec := &recordingMQ{}

	svc, err := New(nil, Deps{DB: testkit.NewDB(t), Uploads: dir, MQ: rec, Logger: testkit.NewLogger()})
	require.NoError(t, err)
	require.NoError(t, svc.Migrate(context.Background()))

	r := gin.New()
	svc.Routes(r)
	return &fixture{svc: svc, router: r, dir: dir, mq: rec}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) add(t *testing.T, query, filename string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	if filename != "" {
		part, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("img:" + filename))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/add_gacha?"+query, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.do(req)
}

func (f *fixture) get(t *testing.T, query string, jsonBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/get_gacha_collection"+query, strings.NewReader(jsonBody))
	if jsonBody != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return f.do(req)
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	s, _ := m["error"].(string)
	return s
}

func TestAddGacha(t *testing.T) {
	f := newFixture(t)

	w := f.add(t, "gacha_name=rose", "rose.png")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields (image, gacha_name, or rarity)", errorOf(t, w))

	w = f.add(t, "gacha_name=rose&rarity=rare", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.add(t, "gacha_name=rose&rarity=rare", "rose.bmp")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File type not allowed", errorOf(t, w))

	w = f.add(t, "gacha_name=rose&rarity=rare&description=red", "rose.gif")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Message string `json:"message"`
		Gacha   struct {
			Name      string `json:"name"`
			ImagePath string `json:"image_path"`
			Rarity    string `json:"rarity"`
		} `json:"gacha"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Gacha added successfully", resp.Message)
	assert.Equal(t, "rose", resp.Gacha.Name)
	assert.Equal(t, "rose.gif", resp.Gacha.ImagePath)
	assert.FileExists(t, filepath.Join(f.dir.Root(), "rose.gif"))

	w = f.add(t, "gacha_name=rose&rarity=common", "other.png")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "A Gacha with the name 'rose' already exists.", errorOf(t, w))
	assert.NoFileExists(t, filepath.Join(f.dir.Root(), "other.png"))
}

func TestGetCollection(t *testing.T) {
	f := newFixture(t)

	w := f.get(t, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No gachas found", errorOf(t, w))

	require.Equal(t, http.StatusOK, f.add(t, "gacha_name=rose&rarity=rare&description=red", "rose.png").Code)
	require.Equal(t, http.StatusOK, f.add(t, "gacha_name=tulip&rarity=common", "tulip.jpg").Code)

	t.Run("all", func(t *testing.T) {
		var list []View
		w := f.get(t, "", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list, 2)
		assert.Equal(t, "rose", list[0].GachaName)
		assert.Equal(t, "http://example.com/uploads/rose.png", list[0].Img)
		assert.NotEmpty(t, list[0].CollectedDate)
	})

	t.Run("single by query", func(t *testing.T) {
		var v View
		w := f.get(t, "?gacha_name=tulip", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
		assert.Equal(t, "tulip", v.GachaName)
		assert.Equal(t, "", v.Description)

		w = f.get(t, "?gacha_name=lily", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Gacha not found", errorOf(t, w))
	})

	t.Run("list in body", func(t *testing.T) {
		var list []View
		w := f.get(t, "", `{"gacha_name":["tulip","lily","tulip","rose"]}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list, 2)
		assert.Equal(t, "tulip", list[0].GachaName)
		assert.Equal(t, "rose", list[1].GachaName)

		w = f.get(t, "", `{"gacha_name":["lily"]}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())

		w = f.get(t, "", `{"gacha_name":[]}`)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		assert.Len(t, list, 2)
	})
}

func TestUpdateGacha(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.add(t, "gacha_name=rose&rarity=rare", "rose.png").Code)

	// 先读一次，写入缓存
	require.Equal(t, http.StatusOK, f.get(t, "?gacha_name=rose", "").Code)

	w := f.do(httptest.NewRequest(http.MethodPut, "/update_gacha", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required field: 'name'", errorOf(t, w))

	w = f.do(httptest.NewRequest(http.MethodPut, "/update_gacha?gacha_name=lily&rarity=x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Gacha with name 'lily' not found.", errorOf(t, w))

	w = f.do(httptest.NewRequest(http.MethodPut, "/update_gacha?gacha_name=rose&rarity=legendary", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Gacha updated successfully","gacha":{"name":"rose","rarity":"legendary","description":""}}`, w.Body.String())

	var v View
	require.NoError(t, json.Unmarshal(f.get(t, "?gacha_name=rose", "").Body.Bytes(), &v))
	assert.Equal(t, "legendary", v.Rarity)
}

func TestDeleteGacha(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.add(t, "gacha_name=rose&rarity=rare", "rose.png").Code)
	require.Equal(t, http.StatusOK, f.get(t, "?gacha_name=rose", "").Code)

	w := f.do(httptest.NewRequest(http.MethodDelete, "/delete_gacha", nil))
	assert.Equal(t, "Missing 'gacha_name' in query string.", errorOf(t, w))

	w = f.do(httptest.NewRequest(http.MethodDelete, "/delete_gacha?gacha_name=rose", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Gacha with name 'rose' deleted successfully."}`, w.Body.String())
	assert.NoFileExists(t, filepath.Join(f.dir.Root(), "rose.png"))

	require.Len(t, f.mq.msgs, 1)
	assert.Equal(t, events.SubjectGachaDeleted, f.mq.msgs[0].subject)
	evt, err := events.DecodeGachaDeleted(f.mq.msgs[0].data)
	require.NoError(t, err)
	assert.Equal(t, "rose", evt.GachaName)

	assert.Equal(t, http.StatusNotFound, f.get(t, "?gacha_name=rose", "").Code, "cache entry invalidated")

	w = f.do(httptest.NewRequest(http.MethodDelete, "/delete_gacha?gacha_name=rose", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Gacha with name 'rose' not found.", errorOf(t, w))
}

func TestReaderServesFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.store.Create(ctx, &Gacha{GachaName: "rose", ImagePath: "rose.png", Rarity: "rare"}))

	g, err := f.svc.reader.get(ctx, "rose")
	require.NoError(t, err)

	// 绕过服务直接改库，缓存中仍是旧值
	_, err = f.svc.store.Update(ctx, "rose", "common", "")
	require.NoError(t, err)

	cached, err := f.svc.reader.get(ctx, "rose")
	require.NoError(t, err)
	assert.Equal(t, g.GachaID, cached.GachaID)
	assert.Equal(t, "rare", cached.Rarity)

	list, err := f.svc.reader.list(ctx, []string{"rose"})
	require.NoError(t, err)
	assert.Equal(t, "rare", list[0].Rarity)

	f.svc.reader.invalidate(ctx, "rose")
	fresh, err := f.svc.reader.get(ctx, "rose")
	require.NoError(t, err)
	assert.Equal(t, "common", fresh.Rarity)
}

func TestUploadedFile(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir.Root(), "rose.png"), []byte("png"), 0o644))

	w := f.do(httptest.NewRequest(http.MethodGet, "/uploads/rose.png", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png", w.Body.String())

	w = f.do(httptest.NewRequest(http.MethodGet, "/uploads/none.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
