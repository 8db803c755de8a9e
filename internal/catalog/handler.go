package catalog

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/internal/events"
	"github.com/ceyewan/gacha/xerrors"
)

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func (s *Service) internalError(c *gin.Context, err error) {
	s.logger.ErrorContext(c.Request.Context(), "request failed", clog.String("path", c.FullPath()), clog.Error(err))
	fail(c, http.StatusInternalServerError, err.Error())
}

func (s *Service) baseURL(c *gin.Context) string {
	if s.cfg.PublicURL != "" {
		return s.cfg.PublicURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}

func (s *Service) view(c *gin.Context, g *Gacha) View {
	return View{
		GachaID:       g.GachaID,
		GachaName:     g.GachaName,
		Description:   g.Description,
		Rarity:        g.Rarity,
		CollectedDate: g.CollectedDate.Format(isoLayout),
		Img:           s.baseURL(c) + "/uploads/" + path.Base(g.ImagePath),
	}
}

func (s *Service) addGacha(c *gin.Context) {
	name := c.Query("gacha_name")
	rarity := c.Query("rarity")
	description := c.Query("description")

	fh, err := c.FormFile("image")
	if name == "" || rarity == "" || err != nil {
		fail(c, http.StatusBadRequest, "Missing required fields (image, gacha_name, or rarity)")
		return
	}

	ctx := c.Request.Context()
	if _, err := s.store.Get(ctx, name); err == nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("A Gacha with the name '%s' already exists.", name))
		return
	} else if !xerrors.Is(err, ErrGachaNotFound) {
		s.internalError(c, err)
		return
	}

	filename, err := s.uploads.Save(fh)
	if err != nil {
		if xerrors.KindOf(err) == xerrors.KindValidation {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		s.internalError(c, err)
		return
	}

	g := &Gacha{GachaName: name, ImagePath: filename, Rarity: rarity, Description: description}
	if err := s.store.Create(ctx, g); err != nil {
		if xerrors.Is(err, ErrGachaExists) {
			fail(c, http.StatusBadRequest, fmt.Sprintf("A Gacha with the name '%s' already exists.", name))
			return
		}
		s.internalError(c, err)
		return
	}
	s.reader.invalidate(ctx, name)

	c.JSON(http.StatusOK, gin.H{
		"message": "Gacha added successfully",
		"gacha": gin.H{
			"name":           g.GachaName,
			"image_path":     g.ImagePath,
			"rarity":         g.Rarity,
			"description":    g.Description,
			"collected_date": g.CollectedDate.Format(isoLayout),
		},
	})
}

func (s *Service) updateGacha(c *gin.Context) {
	name := c.Query("gacha_name")
	if name == "" {
		fail(c, http.StatusBadRequest, "Missing required field: 'name'")
		return
	}

	ctx := c.Request.Context()
	g, err := s.store.Update(ctx, name, c.Query("rarity"), c.Query("description"))
	if xerrors.Is(err, ErrGachaNotFound) {
		fail(c, http.StatusNotFound, fmt.Sprintf("Gacha with name '%s' not found.", name))
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	s.reader.invalidate(ctx, name)

	c.JSON(http.StatusOK, gin.H{
		"message": "Gacha updated successfully",
		"gacha": gin.H{
			"name":        g.GachaName,
			"rarity":      g.Rarity,
			"description": g.Description,
		},
	})
}

// deleteGacha 删除记录与图片并广播 gacha.deleted，广播失败只记录日志
func (s *Service) deleteGacha(c *gin.Context) {
	name := c.Query("gacha_name")
	if name == "" {
		fail(c, http.StatusBadRequest, "Missing 'gacha_name' in query string.")
		return
	}

	ctx := c.Request.Context()
	g, err := s.store.Delete(ctx, name)
	if xerrors.Is(err, ErrGachaNotFound) {
		fail(c, http.StatusNotFound, fmt.Sprintf("Gacha with name '%s' not found.", name))
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to delete gacha: "+err.Error())
		return
	}
	s.reader.invalidate(ctx, name)

	if g.ImagePath != "" {
		if err := s.uploads.Remove(g.ImagePath); err != nil {
			s.logger.WarnContext(ctx, "remove image failed", clog.String("image", g.ImagePath), clog.Error(err))
		}
	}
	s.publishDeleted(c, name)

	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Gacha with name '%s' deleted successfully.", name)})
}

func (s *Service) publishDeleted(c *gin.Context, name string) {
	ctx := c.Request.Context()
	data, err := events.GachaDeleted{GachaName: name, DeletedAt: time.Now().UTC()}.Encode()
	if err == nil {
		err = s.mq.Publish(ctx, events.SubjectGachaDeleted, data)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "publish gacha.deleted failed", clog.String("gacha_name", name), clog.Error(err))
	}
}

// collectionFilter 解析名称过滤条件
//
// JSON 请求体中的 gacha_name 可以是数组或字符串；否则读取查询参数。
// 返回 single=true 表示按单个名称查询，响应为对象而不是数组。
func collectionFilter(c *gin.Context) (names []string, single bool) {
	if body, err := c.GetRawData(); err == nil && len(bytes.TrimSpace(body)) > 0 && gjson.ValidBytes(body) {
		v := gjson.GetBytes(body, "gacha_name")
		switch {
		case v.IsArray():
			for _, n := range v.Array() {
				if n.String() != "" {
					names = append(names, n.String())
				}
			}
			return names, false
		case v.Type == gjson.String && v.String() != "":
			return []string{v.String()}, true
		}
	}
	if q := c.Query("gacha_name"); q != "" {
		return []string{q}, true
	}
	return nil, false
}

func (s *Service) getCollection(c *gin.Context) {
	names, single := collectionFilter(c)
	ctx := c.Request.Context()

	if single {
		g, err := s.reader.get(ctx, names[0])
		if xerrors.Is(err, ErrGachaNotFound) {
			fail(c, http.StatusNotFound, "Gacha not found")
			return
		}
		if err != nil {
			s.internalError(c, err)
			return
		}
		c.JSON(http.StatusOK, s.view(c, g))
		return
	}

	gachas, err := s.reader.list(ctx, names)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if len(gachas) == 0 && len(names) == 0 {
		fail(c, http.StatusNotFound, "No gachas found")
		return
	}
	out := make([]View, 0, len(gachas))
	for i := range gachas {
		out = append(out, s.view(c, &gachas[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Service) uploadedFile(c *gin.Context) {
	p, err := s.uploads.Path(c.Param("filename"))
	if err != nil {
		fail(c, http.StatusNotFound, "File not found")
		return
	}
	if _, err := os.Stat(p); err != nil {
		fail(c, http.StatusNotFound, "File not found")
		return
	}
	c.File(p)
}
