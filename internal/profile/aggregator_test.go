package profile

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/gacha/breaker"
	"github.com/ceyewan/gacha/client"
	"github.com/ceyewan/gacha/xerrors"
)

type staticCounts []NameCount

func (s staticCounts) Counts(context.Context, string) ([]NameCount, error) { return s, nil }

func newCatalogClient(t *testing.T, url string) *client.Client {
	t.Helper()
	reg, err := breaker.NewRegistry(breaker.DefaultConfig())
	require.NoError(t, err)
	c, err := client.New("catalog", &client.Config{BaseURL: url, Timeout: time.Second}, reg)
	require.NoError(t, err)
	return c
}

func TestAggregateMergesCounts(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_gacha_collection", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		var req struct {
			GachaName []string `json:"gacha_name"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, []string{"rose", "tulip"}, req.GachaName)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"gacha_id":1,"gacha_name":"rose","description":"red","rarity":"rare","collected_date":"2024-01-01T00:00:00","img":"http://c/uploads/rose.png","series":"spring"},
			{"gacha_id":2,"gacha_name":"tulip","description":"","rarity":"common","collected_date":"2024-01-02T00:00:00","img":"http://c/uploads/tulip.png"},
			{"gacha_id":3,"gacha_name":"lily","description":"","rarity":"common","collected_date":"2024-01-03T00:00:00","img":""}
		]`))
	})

	agg := NewAggregator(staticCounts{{"rose", 2}, {"tulip", 1}}, newCatalogClient(t, url))
	items, err := agg.Aggregate(context.Background(), "alice", "Bearer tok")
	require.NoError(t, err)
	require.Len(t, items, 3)

	first, err := json.Marshal(items[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"gacha_id":1,"gacha_name":"rose","description":"red","rarity":"rare",
		"collected_date":"2024-01-01T00:00:00","img":"http://c/uploads/rose.png","series":"spring","count":2}`, string(first))
	assert.Equal(t, 2, items[0].Count())
	assert.Equal(t, 1, items[1].Count())
	assert.Equal(t, 0, items[2].Count(), "entry not owned locally")
}

func TestAggregateNoItems(t *testing.T) {
	agg := NewAggregator(staticCounts{}, newCatalogClient(t, closedURL(t)))
	_, err := agg.Aggregate(context.Background(), "alice", "")
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestAggregateRemoteFailure(t *testing.T) {
	t.Run("remote error status", func(t *testing.T) {
		url := serve(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		agg := NewAggregator(staticCounts{{"rose", 1}}, newCatalogClient(t, url))

		_, err := agg.Aggregate(context.Background(), "alice", "")
		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, http.StatusInternalServerError, remote.Status)
		assert.Equal(t, xerrors.KindRemoteError, remote.Kind)
		assert.Contains(t, string(remote.Body), "boom")
		assert.Equal(t, xerrors.KindRemoteError, xerrors.KindOf(err))
	})

	t.Run("transport failure", func(t *testing.T) {
		agg := NewAggregator(staticCounts{{"rose", 1}}, newCatalogClient(t, closedURL(t)))

		_, err := agg.Aggregate(context.Background(), "alice", "")
		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, http.StatusServiceUnavailable, remote.Status)
		assert.Equal(t, xerrors.KindTransportFailure, remote.Kind)
	})

	t.Run("breaker open", func(t *testing.T) {
		var calls atomic.Int32
		url := serve(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		})
		reg, err := breaker.NewRegistry(breaker.DefaultConfig())
		require.NoError(t, err)
		for i := 0; i < breaker.DefaultConfig().FailureThreshold; i++ {
			reg.RecordFailure("catalog")
		}
		require.Equal(t, breaker.StateOpen, reg.Get("catalog").State())

		catalog, err := client.New("catalog", &client.Config{BaseURL: url, Timeout: time.Second}, reg)
		require.NoError(t, err)
		agg := NewAggregator(staticCounts{{"rose", 1}}, catalog)

		_, err = agg.Aggregate(context.Background(), "alice", "")
		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, http.StatusServiceUnavailable, remote.Status)
		assert.Equal(t, xerrors.KindBreakerOpen, remote.Kind)
		assert.JSONEq(t, `{"Error":"`+client.MsgOpenCircuit+`"}`, string(remote.Body))
		assert.Zero(t, calls.Load(), "no request while the breaker is open")
	})
}

func TestAggregateSingleObject(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"gacha_id":1,"gacha_name":"rose"}`))
	})
	agg := NewAggregator(staticCounts{{"rose", 3}}, newCatalogClient(t, url))

	items, err := agg.Aggregate(context.Background(), "alice", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Count())
}
