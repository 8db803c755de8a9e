package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ceyewan/gacha/client"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/config"
	"github.com/ceyewan/gacha/metrics"
	"github.com/ceyewan/gacha/ratelimit"
	"github.com/ceyewan/gacha/trace"
	"github.com/ceyewan/gacha/xerrors"
)

// Handler 组装 gin 引擎：Recovery、请求 ID、Trace、HTTP 指标、限流，以及服务自身路由
func (a *App) Handler() (http.Handler, error) {
	httpMetrics, err := metrics.NewHTTPServerMetrics(a.Meter, a.cfg.Service)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(trace.GinMiddleware(a.cfg.Service))
	r.Use(metrics.GinHTTPMiddleware(httpMetrics))

	r.GET("/healthz", a.healthz)
	r.GET("/metrics", gin.WrapH(a.Meter.Handler()))

	api := r.Group("/")
	if a.limiter != nil {
		api.Use(ratelimit.GinMiddleware(a.limiter, nil))
	}
	a.Service.Routes(api)
	return r, nil
}

// requestID 沿用或生成 X-Request-ID，写入响应头并放进 Context 供日志与下游调用使用
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(client.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(client.HeaderRequestID, id)
		c.Request = c.Request.WithContext(clog.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func (a *App) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	h := a.Health(ctx)
	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

// Run 启动服务并阻塞到 ctx 取消，然后在 ShutdownTimeout 内优雅退出
func (a *App) Run(ctx context.Context) error {
	handler, err := a.Handler()
	if err != nil {
		return err
	}
	cfg := a.cfg.HTTP
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return xerrors.Wrapf(err, "listen %s", cfg.Addr)
	}
	return a.Serve(ctx, lis, handler)
}

// Serve 在已有的 listener 上运行
func (a *App) Serve(ctx context.Context, lis net.Listener, handler http.Handler) error {
	cfg := a.cfg.HTTP
	if err := a.Service.Start(ctx); err != nil {
		_ = lis.Close()
		return xerrors.Wrapf(err, "start %s", a.Service.Name())
	}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening",
			clog.String("service", a.cfg.Service),
			clog.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	a.Logger.Info("shutting down", clog.String("service", a.cfg.Service))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("http shutdown failed", clog.Error(err))
	}
	if err := a.Service.Stop(shutdownCtx); err != nil {
		a.Logger.Error("service stop failed", clog.Error(err))
	}
	return serveErr
}

// WatchLogLevel 监听 log.level，变更后立即调整日志级别，ctx 取消后退出
func (a *App) WatchLogLevel(ctx context.Context, loader config.Loader) error {
	events, err := loader.Watch(ctx, "log.level")
	if err != nil {
		return err
	}
	go func() {
		for ev := range events {
			a.applyLogLevel(fmt.Sprint(ev.Value))
		}
	}()
	return nil
}

func (a *App) applyLogLevel(raw string) {
	level, err := clog.ParseLevel(raw)
	if err != nil {
		a.Logger.Warn("ignoring invalid log level", clog.String("level", raw), clog.Error(err))
		return
	}
	if err := a.Logger.SetLevel(level); err != nil {
		a.Logger.Warn("set log level failed", clog.Error(err))
		return
	}
	a.Logger.Info("log level changed", clog.String("level", raw))
}
