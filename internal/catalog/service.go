// Package catalog 卡片目录服务：卡片的增删改查与图片托管。
//
// 按名称的读取走缓存（otter 或 Redis），修改和删除时失效对应条目；
// 删除卡片后发布 gacha.deleted，由 profile 清理持有记录。
package catalog

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/gacha/cache"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/db"
	"github.com/ceyewan/gacha/internal/uploads"
	"github.com/ceyewan/gacha/mq"
	"github.com/ceyewan/gacha/xerrors"
)

const Name = "catalog"

// ImageExtensions 卡片图片允许的扩展名
var ImageExtensions = []string{"png", "jpg", "jpeg", "gif"}

// Config 服务配置
//
//	catalog:
//	  public_url: https://gachasystem:5004
type Config struct {
	// PublicURL 拼接 img 地址的前缀，为空时使用请求的 scheme 与 Host
	PublicURL string `mapstructure:"public_url"`
}

// Deps 外部依赖，Cache、MQ、Logger 可以为空
type Deps struct {
	DB      db.DB
	Uploads *uploads.Dir
	Cache   cache.Cache
	MQ      mq.Client
	Logger  clog.Logger
}

// Service catalog 服务
type Service struct {
	cfg     Config
	store   *Store
	reader  *reader
	uploads *uploads.Dir
	mq      mq.Client
	logger  clog.Logger
}

// New 创建服务，未提供缓存时使用本地内存缓存
func New(cfg *Config, deps Deps) (*Service, error) {
	if deps.DB == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "catalog: db is required")
	}
	if deps.Uploads == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "catalog: uploads dir is required")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")

	if deps.Logger == nil {
		deps.Logger = clog.Discard()
	}
	logger := deps.Logger.WithNamespace(Name)
	if deps.Cache == nil {
		local, err := cache.New(&cache.Config{Prefix: Name + ":"}, cache.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		deps.Cache = local
	}
	if deps.MQ == nil {
		deps.MQ = mq.Discard()
	}

	store := NewStore(deps.DB)
	return &Service{
		cfg:     c,
		store:   store,
		reader:  &reader{store: store, cache: deps.Cache, logger: logger},
		uploads: deps.Uploads,
		mq:      deps.MQ,
		logger:  logger,
	}, nil
}

func (s *Service) Name() string { return Name }

func (s *Service) Migrate(ctx context.Context) error {
	return s.store.Migrate(ctx)
}

// Routes 注册 HTTP 路由
func (s *Service) Routes(r gin.IRouter) {
	r.POST("/add_gacha", s.addGacha)
	r.PUT("/update_gacha", s.updateGacha)
	r.DELETE("/delete_gacha", s.deleteGacha)
	r.GET("/get_gacha_collection", s.getCollection)
	r.GET("/uploads/:filename", s.uploadedFile)
}

func (s *Service) Start(context.Context) error { return nil }

func (s *Service) Stop(context.Context) error { return nil }
