package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/ceyewan/gacha/client"
	"github.com/ceyewan/gacha/xerrors"
)

// ErrNoItems 用户没有任何卡片，不是失败
var ErrNoItems = xerrors.WithKind(xerrors.New("User has no gachas"), xerrors.KindNotFound)

// RemoteError catalog 没有返回 200，整次聚合失败
type RemoteError struct {
	Status int
	// Body 依赖返回的 JSON，熔断或传输失败时为 {"Error": ...}
	Body json.RawMessage
	Kind xerrors.Kind
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("catalog returned %d: %s", e.Status, string(e.Body))
}

// Unwrap 暴露类别，便于 xerrors.KindOf 识别
func (e *RemoteError) Unwrap() error {
	return xerrors.WithKind(xerrors.New("catalog call failed"), e.Kind)
}

// ItemView 合并后的卡片：catalog 返回的全部字段加本地持有数量 count
type ItemView map[string]any

// Count 本地持有数量
func (v ItemView) Count() int {
	n, _ := v["count"].(int)
	return n
}

// CountSource 本地持有数量的来源
type CountSource interface {
	Counts(ctx context.Context, username string) ([]NameCount, error)
}

// Aggregator 把本地持有记录与 catalog 元数据拼成一个响应
type Aggregator struct {
	counts  CountSource
	catalog *client.Client
}

// NewAggregator 创建聚合器
func NewAggregator(counts CountSource, catalog *client.Client) *Aggregator {
	return &Aggregator{counts: counts, catalog: catalog}
}

// Aggregate 读取 username 的持有记录并向 catalog 请求全部不重复的卡片名
//
// authorization 原样转发给 catalog。catalog 非 200 时返回 *RemoteError，不返回部分结果。
func (a *Aggregator) Aggregate(ctx context.Context, username, authorization string) ([]ItemView, error) {
	counts, err := a.counts.Counts(ctx, username)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return nil, ErrNoItems
	}

	names := make([]string, 0, len(counts))
	byName := make(map[string]int, len(counts))
	for _, c := range counts {
		names = append(names, c.GachaName)
		byName[c.GachaName] = c.Count
	}

	headers := http.Header{}
	if authorization != "" {
		headers.Set("Authorization", authorization)
	}
	res := a.catalog.Call(ctx, client.Request{
		Method:  http.MethodGet,
		Target:  "/get_gacha_collection",
		Payload: map[string][]string{"gacha_name": names},
		Headers: headers,
		JSON:    true,
	})
	if res.Status != http.StatusOK || res.Kind != xerrors.KindUnknown {
		kind := res.Kind
		if kind == xerrors.KindUnknown {
			kind = xerrors.KindRemoteError
		}
		return nil, &RemoteError{Status: res.Status, Body: res.Data, Kind: kind}
	}

	entries := res.Array()
	if parsed := gjson.ParseBytes(res.Data); parsed.IsObject() {
		entries = []gjson.Result{parsed}
	}

	items := make([]ItemView, 0, len(entries))
	for _, e := range entries {
		if !e.IsObject() {
			continue
		}
		item := ItemView{}
		if err := json.Unmarshal([]byte(e.Raw), &item); err != nil {
			return nil, xerrors.Wrap(err, "decode catalog entry")
		}
		item["count"] = byName[e.Get("gacha_name").String()]
		items = append(items, item)
	}
	return items, nil
}
