// Package client 提供经过熔断保护的服务间 HTTP 调用。
//
// Call 不返回 Go error，所有结果都是值：
//
//	熔断打开      -> 503 {"Error":"Open circuit, try again later"}，不发起网络请求
//	传输层失败    -> 503 {"Error":"Error calling the service: ..."}，计入熔断
//	远端非 2xx    -> 透传状态码，{"Error": <远端响应文本>}，不计入熔断
//	2xx          -> 图片等二进制内容放在 Body，JSON 放在 Data
//
// 示例：
//
//	payment, _ := client.New("payment", &client.Config{BaseURL: "http://payment:5000"}, registry)
//	res := payment.Call(ctx, client.Request{
//	    Method:  http.MethodGet,
//	    Target:  "/getBalance",
//	    Payload: url.Values{"username": {"alice"}},
//	    Headers: http.Header{"Authorization": {bearer}},
//	})
//	if res.OK() {
//	    balance := res.Get("balance").Float()
//	}
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ceyewan/gacha/breaker"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/trace"
	"github.com/ceyewan/gacha/xerrors"
)

const (
	MsgOpenCircuit   = "Open circuit, try again later"
	msgCallingPrefix = "Error calling the service: "

	// HeaderRequestID 透传给下游的请求 ID
	HeaderRequestID = "X-Request-ID"

	maxBodyBytes = 32 << 20
)

// Config 下游服务配置
//
//	clients:
//	  payment:
//	    base_url: http://payment:5000
//	    timeout: 5s
type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// InsecureSkipVerify 内网自签证书时跳过校验
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "invalid base_url %q: %v", c.BaseURL, err)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return nil
}

// Client 绑定到一个依赖名的 HTTP 客户端
type Client struct {
	name     string
	cfg      Config
	registry *breaker.Registry
	http     *http.Client
	logger   clog.Logger
	ins      *instruments
}

// New 创建客户端，name 同时是熔断器在 registry 中的 key
func New(name string, cfg *Config, registry *breaker.Registry, opts ...Option) (*Client, error) {
	if name == "" {
		return nil, breaker.ErrKeyEmpty
	}
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "client config is required")
	}
	if registry == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "breaker registry is required")
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if c.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		httpClient = &http.Client{Timeout: c.Timeout, Transport: transport}
	}

	ins, err := newInstruments(o.meter)
	if err != nil {
		return nil, err
	}

	registry.Register(name)
	return &Client{
		name:     name,
		cfg:      c,
		registry: registry,
		http:     httpClient,
		logger:   o.logger.With(clog.String("dependency", name)),
		ins:      ins,
	}, nil
}

// Name 依赖名
func (c *Client) Name() string { return c.name }

// Request 出站请求
type Request struct {
	Method string
	// Target 相对于 BaseURL 的路径，例如 "/getBalance"
	Target string
	// Payload JSON 模式下任意可序列化的值；
	// 否则为 url.Values 或 map[string]string，GET/DELETE 放入查询串，其余作为表单
	Payload any
	Headers http.Header
	JSON    bool
}

// Call 执行一次受熔断保护的调用
func (c *Client) Call(ctx context.Context, req Request) Result {
	start := time.Now()

	httpReq, err := c.build(ctx, req)
	if err != nil {
		c.logger.ErrorContext(ctx, "build outbound request failed", clog.String("target", req.Target), clog.Error(err))
		return c.finish(ctx, req, start, errorResult(http.StatusInternalServerError, err.Error(), xerrors.KindInternal))
	}

	if p := c.registry.Attempt(c.name); !p.Allowed {
		return c.finish(ctx, req, start, errorResult(http.StatusServiceUnavailable, MsgOpenCircuit, xerrors.KindBreakerOpen))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.finish(ctx, req, start, c.transportFailure(ctx, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.finish(ctx, req, start, c.transportFailure(ctx, err))
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.registry.RecordRemoteError(c.name)
		res := errorResult(resp.StatusCode, string(body), xerrors.KindRemoteError)
		res.ContentType = contentType
		res.Body = body
		return c.finish(ctx, req, start, res)
	}

	c.registry.RecordSuccess(c.name)
	res := Result{Status: resp.StatusCode, ContentType: contentType}
	switch {
	case isBinary(contentType):
		res.Body = body
	case len(bytes.TrimSpace(body)) == 0:
		res.Data = json.RawMessage("null")
	case json.Valid(body):
		res.Data = json.RawMessage(body)
	default:
		res = errorResult(http.StatusBadGateway, "invalid JSON response from "+c.name, xerrors.KindRemoteError)
		res.Body = body
	}
	return c.finish(ctx, req, start, res)
}

// transportFailure 调用方主动取消不算依赖失败，只释放探测名额
func (c *Client) transportFailure(ctx context.Context, err error) Result {
	if errors.Is(ctx.Err(), context.Canceled) {
		c.registry.RecordRemoteError(c.name)
	} else {
		c.registry.RecordFailure(c.name)
	}
	c.logger.WarnContext(ctx, "transport failure", clog.Error(err))
	return errorResult(http.StatusServiceUnavailable, msgCallingPrefix+err.Error(), xerrors.KindTransportFailure)
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	target := c.cfg.BaseURL + "/" + strings.TrimLeft(req.Target, "/")

	var (
		body        io.Reader
		contentType string
	)
	if req.JSON {
		if req.Payload != nil {
			b, err := json.Marshal(req.Payload)
			if err != nil {
				return nil, xerrors.Wrap(err, "encode json payload")
			}
			body = bytes.NewReader(b)
			contentType = "application/json"
		}
	} else if req.Payload != nil {
		values, err := toValues(req.Payload)
		if err != nil {
			return nil, err
		}
		if method == http.MethodGet || method == http.MethodDelete {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + values.Encode()
		} else {
			body = strings.NewReader(values.Encode())
			contentType = "application/x-www-form-urlencoded"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, xerrors.Wrap(err, "new request")
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if id := clog.RequestIDFrom(ctx); id != "" && httpReq.Header.Get(HeaderRequestID) == "" {
		httpReq.Header.Set(HeaderRequestID, id)
	}
	trace.InjectHTTP(ctx, httpReq.Header)
	return httpReq, nil
}

func (c *Client) finish(ctx context.Context, req Request, start time.Time, res Result) Result {
	c.ins.observe(ctx, c.name, res, time.Since(start))
	if res.Kind == xerrors.KindBreakerOpen {
		c.logger.DebugContext(ctx, "call short-circuited", clog.String("target", req.Target))
	}
	return res
}

func toValues(payload any) (url.Values, error) {
	switch p := payload.(type) {
	case url.Values:
		return p, nil
	case map[string]string:
		v := url.Values{}
		for k, s := range p {
			v.Set(k, s)
		}
		return v, nil
	case map[string][]string:
		return url.Values(p), nil
	default:
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "unsupported form payload %T", payload)
	}
}

// isBinary image/* 以及常见的非文本类型按原始字节返回
func isBinary(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "image")
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"),
		strings.HasPrefix(mediaType, "audio/"),
		strings.HasPrefix(mediaType, "video/"),
		mediaType == "application/octet-stream",
		mediaType == "application/pdf":
		return true
	}
	return false
}

func errorResult(status int, msg string, kind xerrors.Kind) Result {
	data, _ := json.Marshal(map[string]string{"Error": msg})
	return Result{Status: status, Data: data, Kind: kind, ContentType: "application/json"}
}

// String 便于日志输出
func (r Result) String() string {
	if r.IsBinary() {
		return fmt.Sprintf("%d %s (%d bytes)", r.Status, r.ContentType, len(r.Body))
	}
	return fmt.Sprintf("%d %s", r.Status, string(r.Data))
}
