// Package profile 用户档案服务：档案维护、卡片持有记录，以及经熔断保护的 catalog/payment 调用。
//
// 用户相关的接口都要求 audience 为 profile_setting 的 RS256 令牌，且令牌 sub 与请求中的用户名一致。
// catalog 删除卡片时通过 mq 广播 gacha.deleted，本服务订阅后清理所有用户的同名持有记录。
package profile

import (
	"context"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/gacha/auth"
	"github.com/ceyewan/gacha/client"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/db"
	"github.com/ceyewan/gacha/internal/uploads"
	"github.com/ceyewan/gacha/mq"
	"github.com/ceyewan/gacha/xerrors"
)

// Name 服务名，同时用作 mq 队列组
const Name = "profile"

// Config 服务配置
//
//	profile:
//	  image_base_url: https://localhost:5001/images_profile/uploads
//	  default_image: DefaultProfileIcon.jpg
type Config struct {
	// ImageBaseURL 返回给客户端的头像地址前缀
	ImageBaseURL string `mapstructure:"image_base_url"`
	// DefaultImage 新建档案时的默认头像文件名
	DefaultImage string `mapstructure:"default_image"`
	QueueGroup   string `mapstructure:"queue_group"`
}

func (c *Config) setDefaults() {
	if c.ImageBaseURL == "" {
		c.ImageBaseURL = "/uploads"
	}
	c.ImageBaseURL = strings.TrimRight(c.ImageBaseURL, "/")
	if c.DefaultImage == "" {
		c.DefaultImage = "DefaultProfileIcon.jpg"
	}
	if c.QueueGroup == "" {
		c.QueueGroup = Name
	}
}

// Deps 外部依赖，MQ 与 Logger 可以为空
type Deps struct {
	DB       db.DB
	Catalog  *client.Client
	Payment  *client.Client
	Verifier *auth.Verifier
	Uploads  *uploads.Dir
	MQ       mq.Client
	Logger   clog.Logger
}

// Service profile 服务
type Service struct {
	cfg      Config
	store    *Store
	agg      *Aggregator
	catalog  *client.Client
	payment  *client.Client
	verifier *auth.Verifier
	uploads  *uploads.Dir
	mq       mq.Client
	logger   clog.Logger

	sub mq.Subscription
}

// New 创建服务
func New(cfg *Config, deps Deps) (*Service, error) {
	switch {
	case deps.DB == nil:
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "profile: db is required")
	case deps.Catalog == nil || deps.Payment == nil:
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "profile: catalog and payment clients are required")
	case deps.Verifier == nil:
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "profile: verifier is required")
	case deps.Uploads == nil:
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "profile: uploads dir is required")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	if deps.MQ == nil {
		deps.MQ = mq.Discard()
	}
	if deps.Logger == nil {
		deps.Logger = clog.Discard()
	}

	store := NewStore(deps.DB)
	return &Service{
		cfg:      c,
		store:    store,
		agg:      NewAggregator(store, deps.Catalog),
		catalog:  deps.Catalog,
		payment:  deps.Payment,
		verifier: deps.Verifier,
		uploads:  deps.Uploads,
		mq:       deps.MQ,
		logger:   deps.Logger.WithNamespace(Name),
	}, nil
}

func (s *Service) Name() string { return Name }

// Migrate 建表
func (s *Service) Migrate(ctx context.Context) error {
	return s.store.Migrate(ctx)
}

// Routes 注册 HTTP 路由
func (s *Service) Routes(r gin.IRouter) {
	authn := s.verifier.GinMiddleware(auth.AudienceProfile)

	r.PATCH("/modify_profile", authn, s.modifyProfile)
	r.GET("/checkprofile", authn, s.checkProfile)
	r.GET("/retrieve_gachacollection", authn, s.retrieveCollection)
	r.GET("/info_gachacollection", authn, s.infoCollection)
	r.GET("/gacha_image/:filename", authn, s.gachaImage)
	r.DELETE("/delete_profile", authn, s.deleteProfile)
	r.DELETE("/deleteGacha", authn, s.deleteGacha)

	// 由认证服务与抽卡流程内部调用
	r.POST("/create_profile", s.createProfile)
	r.POST("/insertGacha", s.insertGacha)

	r.GET("/uploads/:filename", s.uploadedFile)
}

// Start 订阅 gacha.deleted
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.Subscribe(ctx)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

// Stop 取消订阅
func (s *Service) Stop(context.Context) error {
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	s.sub = nil
	return err
}

func (s *Service) imageURL(stored string) string {
	if stored == "" {
		stored = s.cfg.DefaultImage
	}
	return s.cfg.ImageBaseURL + "/" + path.Base(stored)
}
