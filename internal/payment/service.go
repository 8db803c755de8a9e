// Package payment 游戏币余额与购买流水。
//
// 所有接口要求 audience 为 payment_service 的令牌，且 sub 与请求中的 username 一致。
// 错误响应使用 {"Error": ...}，与前端约定一致。
package payment

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/gacha/auth"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/db"
	"github.com/ceyewan/gacha/idem"
	"github.com/ceyewan/gacha/xerrors"
)

const Name = "payment"

// Config 服务配置
//
//	payment:
//	  max_amount: 10000
type Config struct {
	// MaxAmount 单次购买上限，0 表示不限制
	MaxAmount float64 `mapstructure:"max_amount"`
}

// Deps 外部依赖
type Deps struct {
	DB       db.DB
	Verifier *auth.Verifier
	// Idem 可选，提供时 buycurrency 支持 Idempotency-Key 去重
	Idem   *idem.Idem
	Logger clog.Logger
}

// Service payment 服务
type Service struct {
	cfg      Config
	store    *Store
	verifier *auth.Verifier
	idem     *idem.Idem
	logger   clog.Logger
}

func New(cfg *Config, deps Deps) (*Service, error) {
	if deps.DB == nil || deps.Verifier == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "payment: db and verifier are required")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if deps.Logger == nil {
		deps.Logger = clog.Discard()
	}
	return &Service{
		cfg:      c,
		store:    NewStore(deps.DB),
		verifier: deps.Verifier,
		idem:     deps.Idem,
		logger:   deps.Logger.WithNamespace(Name),
	}, nil
}

func (s *Service) Name() string { return Name }

func (s *Service) Migrate(ctx context.Context) error {
	return s.store.Migrate(ctx)
}

func (s *Service) Routes(r gin.IRouter) {
	authn := s.verifier.GinMiddleware(auth.AudiencePayment)
	r.GET("/getBalance", authn, auth.RequireSubjectQuery("username"), s.getBalance)
	buy := []gin.HandlerFunc{authn}
	if s.idem != nil {
		buy = append(buy, s.idem.GinMiddleware())
	}
	r.POST("/buycurrency", append(buy, s.buyCurrency)...)
	r.GET("/viewTrans", authn, auth.RequireSubjectQuery("username"), s.viewTransactions)
}

func (s *Service) Start(context.Context) error { return nil }

func (s *Service) Stop(context.Context) error { return nil }

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"Error": msg})
}

func (s *Service) internalError(c *gin.Context, err error) {
	s.logger.ErrorContext(c.Request.Context(), "request failed", clog.String("path", c.FullPath()), clog.Error(err))
	fail(c, http.StatusInternalServerError, err.Error())
}

func (s *Service) getBalance(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		fail(c, http.StatusBadRequest, "Missing username")
		return
	}
	balance, err := s.store.Balance(c.Request.Context(), username)
	if xerrors.Is(err, ErrAccountNotFound) {
		fail(c, http.StatusNotFound, "Account not found")
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Service) parseAmount(raw string) (float64, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, xerrors.NewKind(xerrors.KindValidation, "Amount must be a positive number")
	}
	if s.cfg.MaxAmount > 0 && amount > s.cfg.MaxAmount {
		return 0, xerrors.NewKind(xerrors.KindValidation, "Amount exceeds the limit of %g", s.cfg.MaxAmount)
	}
	return amount, nil
}

func (s *Service) buyCurrency(c *gin.Context) {
	username := c.PostForm("username")
	method := strings.TrimSpace(c.PostForm("payment_method"))
	if username == "" || c.PostForm("amount") == "" || method == "" {
		fail(c, http.StatusBadRequest, "Missing required fields (username, amount, payment_method)")
		return
	}
	if !auth.RequireSubject(c, username) {
		return
	}
	amount, err := s.parseAmount(c.PostForm("amount"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	balance, txn, err := s.store.Deposit(ctx, username, amount, method)
	if err != nil {
		s.internalError(c, err)
		return
	}
	s.logger.InfoContext(ctx, "currency purchased",
		clog.String("transaction_id", txn.ID),
		clog.Float64("amount", amount),
		clog.String("payment_method", method))

	c.JSON(http.StatusOK, gin.H{
		"balance":        balance,
		"transaction_id": txn.ID,
		"message":        fmt.Sprintf("Purchased %g currency", amount),
	})
}

func (s *Service) viewTransactions(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		fail(c, http.StatusBadRequest, "Missing username")
		return
	}
	txns, err := s.store.Transactions(c.Request.Context(), username)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, txns)
}
