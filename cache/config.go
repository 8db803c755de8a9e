package cache

import (
	"time"

	"github.com/ceyewan/gacha/cache/serializer"
	"github.com/ceyewan/gacha/xerrors"
)

const (
	ModeStandalone  = "standalone"
	ModeDistributed = "distributed"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "cache: invalid config")

// Config 缓存组件统一配置
//
//	cache:
//	  mode: standalone    # standalone | distributed
//	  prefix: "catalog:"
//	  serializer: msgpack # json | msgpack
//	  ttl: 5m
//	  capacity: 10000
type Config struct {
	Mode       string        `mapstructure:"mode"`
	Prefix     string        `mapstructure:"prefix"`
	Serializer string        `mapstructure:"serializer"`
	TTL        time.Duration `mapstructure:"ttl"`

	// Capacity 本地缓存最大条目数（默认 10000），仅 standalone 生效
	Capacity int `mapstructure:"capacity"`
}

func (c *Config) validate() error {
	if c.Mode == "" {
		c.Mode = ModeStandalone
	}
	if c.Mode != ModeStandalone && c.Mode != ModeDistributed {
		return xerrors.Wrapf(ErrInvalidConfig, "unknown mode %q", c.Mode)
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
	if _, err := serializer.New(c.Serializer); err != nil {
		return err
	}
	return nil
}
