// Package uploads 管理服务本地的图片目录。
package uploads

import (
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ceyewan/gacha/xerrors"
)

var (
	ErrNoFile          = xerrors.NewKind(xerrors.KindValidation, "No selected file")
	ErrTypeNotAllowed  = xerrors.NewKind(xerrors.KindValidation, "File type not allowed")
	ErrInvalidFilename = xerrors.NewKind(xerrors.KindValidation, "invalid filename")
)

// ImageExtensions 默认允许的图片扩展名
var ImageExtensions = []string{"png", "jpg", "jpeg"}

// Config 上传目录配置
//
//	uploads:
//	  dir: ./static/uploads
//	  max_bytes: 10485760
type Config struct {
	Dir string `mapstructure:"dir"`
	// MaxBytes 单个文件上限，默认 10MB
	MaxBytes int64 `mapstructure:"max_bytes"`
	// Extensions 允许的扩展名（小写、不含点）
	Extensions []string `mapstructure:"extensions"`
}

// Dir 图片目录，所有文件平铺存放
type Dir struct {
	root     string
	maxBytes int64
	allowed  map[string]struct{}
}

// New 创建目录（不存在时自动创建）
func New(cfg *Config) (*Dir, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Dir == "" {
		c.Dir = "./static/uploads"
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 << 20
	}
	if len(c.Extensions) == 0 {
		c.Extensions = ImageExtensions
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create uploads dir %s", c.Dir)
	}
	allowed := make(map[string]struct{}, len(c.Extensions))
	for _, ext := range c.Extensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &Dir{root: c.Dir, maxBytes: c.MaxBytes, allowed: allowed}, nil
}

// Root 目录路径
func (d *Dir) Root() string { return d.root }

// Allowed 文件名必须带扩展名且在白名单内
func (d *Dir) Allowed(filename string) bool {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return false
	}
	_, ok := d.allowed[strings.ToLower(filename[i+1:])]
	return ok
}

// Save 校验并保存上传文件，返回保存后的文件名（不含目录）
func (d *Dir) Save(fh *multipart.FileHeader) (string, error) {
	if fh == nil || fh.Filename == "" {
		return "", ErrNoFile
	}
	if !d.Allowed(fh.Filename) {
		return "", ErrTypeNotAllowed
	}
	name := SecureFilename(fh.Filename)
	if name == "" || !d.Allowed(name) {
		return "", ErrInvalidFilename
	}

	src, err := fh.Open()
	if err != nil {
		return "", xerrors.Wrap(err, "open upload")
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(d.root, name))
	if err != nil {
		return "", xerrors.Wrap(err, "create file")
	}
	defer dst.Close()

	n, err := io.Copy(dst, io.LimitReader(src, d.maxBytes+1))
	if err != nil {
		return "", xerrors.Wrap(err, "write file")
	}
	if n > d.maxBytes {
		_ = os.Remove(dst.Name())
		return "", xerrors.NewKind(xerrors.KindValidation, "file exceeds %d bytes", d.maxBytes)
	}
	return name, nil
}

// Path 返回文件的完整路径，文件名不合法时返回错误
func (d *Dir) Path(filename string) (string, error) {
	name := SecureFilename(filename)
	if name == "" || name != filename {
		return "", ErrInvalidFilename
	}
	return filepath.Join(d.root, name), nil
}

// Remove 删除文件，不存在不算错误
func (d *Dir) Remove(filename string) error {
	p, err := d.Path(filepath.Base(filename))
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return xerrors.Wrapf(err, "remove %s", p)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename 去掉路径部分，空白变为下划线，只保留 [A-Za-z0-9_.-]
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base("/" + name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	if name == "." || name == ".." {
		return ""
	}
	return name
}
