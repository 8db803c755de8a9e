package client

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/ceyewan/gacha/xerrors"
)

// Result 一次调用的结果，对应 HTTP 的 (body, status)
type Result struct {
	Status      int
	ContentType string

	// Body 二进制响应（图片），或远端错误的原始响应
	Body []byte

	// Data JSON 响应；错误时为 {"Error": "..."}
	Data json.RawMessage

	// Kind 成功时为 KindUnknown
	Kind xerrors.Kind
}

// OK 2xx 且非熔断、非传输失败
func (r Result) OK() bool {
	return r.Kind == xerrors.KindUnknown && r.Status >= 200 && r.Status < 300
}

// IsBinary 结果为原始字节
func (r Result) IsBinary() bool {
	return r.OK() && r.Data == nil && r.Body != nil
}

// Get 使用 gjson 路径读取 JSON 字段，例如 "balance"、"0.gacha_name"
func (r Result) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Data, path)
}

// Array 将 JSON 顶层数组展开，非数组时为空
func (r Result) Array() []gjson.Result {
	parsed := gjson.ParseBytes(r.Data)
	if !parsed.IsArray() {
		return nil
	}
	return parsed.Array()
}

// ErrorMessage 返回 {"Error": ...} 中的文本
func (r Result) ErrorMessage() string {
	return r.Get("Error").String()
}

// Err 将非成功结果转换为带类别的错误，成功时返回 nil
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return xerrors.NewKind(r.Kind, "status %d: %s", r.Status, r.ErrorMessage())
}
