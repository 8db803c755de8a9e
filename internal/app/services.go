package app

import (
	"context"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/gacha/auth"
	"github.com/ceyewan/gacha/client"
	"github.com/ceyewan/gacha/internal/catalog"
	"github.com/ceyewan/gacha/internal/payment"
	"github.com/ceyewan/gacha/internal/profile"
	"github.com/ceyewan/gacha/internal/uploads"
	"github.com/ceyewan/gacha/xerrors"
)

// Service 一个可挂载到 App 的业务服务
type Service interface {
	Name() string
	Migrate(ctx context.Context) error
	Routes(r gin.IRouter)
	// Start 在 HTTP 服务启动前调用，用于订阅消息等后台任务
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Services 支持的服务名
func Services() []string {
	names := make([]string, 0, len(DefaultAddrs))
	for name := range DefaultAddrs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func buildService(a *App) (Service, error) {
	switch a.cfg.Service {
	case profile.Name:
		return buildProfile(a)
	case catalog.Name:
		return buildCatalog(a)
	case payment.Name:
		return buildPayment(a)
	default:
		return nil, xerrors.NewKind(xerrors.KindValidation, "unknown service %q", a.cfg.Service)
	}
}

func (a *App) newClient(name string) (*client.Client, error) {
	cfg, ok := a.cfg.Clients[name]
	if !ok {
		return nil, xerrors.NewKind(xerrors.KindValidation, "clients.%s is not configured", name)
	}
	return client.New(name, &cfg, a.Breakers, client.WithLogger(a.Logger), client.WithMeter(a.Meter))
}

func (a *App) newUploads(defaultExt []string) (*uploads.Dir, error) {
	cfg := a.cfg.Uploads
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = defaultExt
	}
	return uploads.New(&cfg)
}

func buildProfile(a *App) (Service, error) {
	catalogClient, err := a.newClient(catalog.Name)
	if err != nil {
		return nil, err
	}
	paymentClient, err := a.newClient(payment.Name)
	if err != nil {
		return nil, err
	}
	verifier, err := a.newVerifier(auth.AudienceProfile)
	if err != nil {
		return nil, err
	}
	dir, err := a.newUploads(uploads.ImageExtensions)
	if err != nil {
		return nil, err
	}
	bus, err := a.newMQ()
	if err != nil {
		return nil, err
	}
	return profile.New(&a.cfg.Profile, profile.Deps{
		DB:       a.db,
		Catalog:  catalogClient,
		Payment:  paymentClient,
		Verifier: verifier,
		Uploads:  dir,
		MQ:       bus,
		Logger:   a.Logger,
	})
}

func buildCatalog(a *App) (Service, error) {
	dir, err := a.newUploads(catalog.ImageExtensions)
	if err != nil {
		return nil, err
	}
	c, err := a.newCache()
	if err != nil {
		return nil, err
	}
	bus, err := a.newMQ()
	if err != nil {
		return nil, err
	}
	return catalog.New(&a.cfg.Catalog, catalog.Deps{
		DB:      a.db,
		Uploads: dir,
		Cache:   c,
		MQ:      bus,
		Logger:  a.Logger,
	})
}

func buildPayment(a *App) (Service, error) {
	verifier, err := a.newVerifier(auth.AudiencePayment)
	if err != nil {
		return nil, err
	}
	im, err := a.newIdem()
	if err != nil {
		return nil, err
	}
	return payment.New(&a.cfg.Payment, payment.Deps{
		DB:       a.db,
		Verifier: verifier,
		Idem:     im,
		Logger:   a.Logger,
	})
}
