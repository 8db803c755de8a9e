package auth

import "github.com/ceyewan/gacha/xerrors"

var (
	ErrTokenInvalid    = xerrors.WithKind(xerrors.New("auth: invalid token"), xerrors.KindTokenInvalid)
	ErrTokenExpired    = xerrors.WithKind(xerrors.New("auth: token expired"), xerrors.KindTokenExpired)
	ErrMissingToken    = xerrors.WithKind(xerrors.New("auth: missing authorization header"), xerrors.KindTokenInvalid)
	ErrSubjectMismatch = xerrors.WithKind(xerrors.New("auth: token subject does not match username"), xerrors.KindAuthorizationMismatch)
	ErrInvalidConfig   = xerrors.New("auth: invalid config")
)

// MetricTokensValidated 校验计数，标签: status, error_type
const MetricTokensValidated = "auth_tokens_validated_total"
