package xerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
//
// 类别决定了错误的传播策略：校验与鉴权错误在请求内终止、不重试；
// 传输失败立即上报给调用方，由调用方决定是否重试。
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransportFailure 连接拒绝、超时、DNS 失败等，没有收到任何响应
	KindTransportFailure
	// KindRemoteError 依赖返回了合法的 HTTP 错误响应
	KindRemoteError
	// KindBreakerOpen 熔断器打开，本地短路，没有发起网络调用
	KindBreakerOpen
	// KindTokenInvalid Token 结构、签名或 audience 不合法
	KindTokenInvalid
	// KindTokenExpired Token 已过期
	KindTokenExpired
	// KindAuthorizationMismatch Token subject 与请求中的用户名不一致
	KindAuthorizationMismatch
	// KindValidation 请求字段缺失或格式错误
	KindValidation
	KindNotFound
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTransportFailure:
		return "transport_failure"
	case KindRemoteError:
		return "remote_error"
	case KindBreakerOpen:
		return "breaker_open"
	case KindTokenInvalid:
		return "token_invalid"
	case KindTokenExpired:
		return "token_expired"
	case KindAuthorizationMismatch:
		return "authorization_mismatch"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// HTTPStatus 返回该类别对应的 HTTP 状态码。
// KindRemoteError 没有固定状态码，调用方应透传远端状态。
func (k Kind) HTTPStatus() int {
	switch k {
	case KindTransportFailure, KindBreakerOpen:
		return http.StatusServiceUnavailable
	case KindTokenInvalid, KindTokenExpired:
		return http.StatusUnauthorized
	case KindAuthorizationMismatch:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// KindError 携带类别的错误。
type KindError struct {
	Kind  Kind
	Cause error
}

func (e *KindError) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return e.Cause.Error()
}

func (e *KindError) Unwrap() error {
	return e.Cause
}

// WithKind 为错误标注类别。
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Cause: err}
}

// NewKind 创建一个带类别的新错误。
func NewKind(kind Kind, format string, args ...any) error {
	return &KindError{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// KindOf 沿错误链查找类别，找不到时返回 KindUnknown。
// ErrInvalidInput 与 ErrNotFound 会被识别为对应类别。
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindUnknown
}

// HTTPStatus 等价于 kind.HTTPStatus()
func HTTPStatus(kind Kind) int {
	return kind.HTTPStatus()
}
