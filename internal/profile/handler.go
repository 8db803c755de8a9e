package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/ceyewan/gacha/auth"
	"github.com/ceyewan/gacha/client"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/internal/uploads"
	"github.com/ceyewan/gacha/xerrors"
)

// updatableColumns 允许通过 modify_profile 修改的字段
var updatableColumns = map[string]string{
	"email":         "email",
	"profile_image": "profile_image",
}

// collectedDateLayouts insertGacha 接受的 ISO-8601 格式
var collectedDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func (s *Service) internalError(c *gin.Context, err error) {
	s.logger.ErrorContext(c.Request.Context(), "request failed", clog.String("path", c.FullPath()), clog.Error(err))
	fail(c, http.StatusInternalServerError, err.Error())
}

// readJSON 读取 JSON 对象请求体，空或非法时返回 false
func readJSON(c *gin.Context) (gjson.Result, bool) {
	body, err := c.GetRawData()
	if err != nil || len(bytes.TrimSpace(body)) == 0 || !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}
	parsed := gjson.ParseBytes(body)
	return parsed, parsed.IsObject()
}

func (s *Service) profileView(p *Profile, balance float64) gin.H {
	return gin.H{
		"username":         p.Username,
		"email":            p.Email,
		"profile_image":    s.imageURL(p.ProfileImage),
		"currency_balance": balance,
	}
}

// bearer 重新组装 Authorization 头，去掉多余空白
func bearer(c *gin.Context) string {
	return "Bearer " + auth.BearerToken(c.GetHeader("Authorization"))
}

func (s *Service) modifyProfile(c *gin.Context) {
	username := SanitizeInput(c.PostForm("username"))
	if !auth.RequireSubject(c, username) {
		return
	}
	field := SanitizeInput(c.PostForm("field"))
	value := SanitizeEmail(c.PostForm("value"))

	if username == "" {
		fail(c, http.StatusBadRequest, "Missing required 'username' field")
		return
	}
	if field == "currency_balance" {
		fail(c, http.StatusBadRequest, "Modifying 'currency_balance' field is not allowed")
		return
	}

	ctx := c.Request.Context()
	p, err := s.store.Get(ctx, username)
	if xerrors.Is(err, ErrProfileNotFound) {
		fail(c, http.StatusNotFound, "Profile not found")
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}

	columns := map[string]any{}
	if field != "" {
		if field == "username" {
			fail(c, http.StatusBadRequest, "Modifying 'username' field is not allowed")
			return
		}
		column, ok := updatableColumns[field]
		if !ok {
			fail(c, http.StatusBadRequest, fmt.Sprintf("Field '%s' does not exist in profile", field))
			return
		}
		if value == "" {
			fail(c, http.StatusBadRequest, fmt.Sprintf("Missing 'value' for field '%s'", field))
			return
		}
		columns[column] = value
	}

	fh, err := c.FormFile("image")
	switch {
	case err == nil:
		name, err := s.uploads.Save(fh)
		if err != nil {
			s.uploadError(c, err)
			return
		}
		columns["profile_image"] = name
	case !xerrors.Is(err, http.ErrMissingFile) && !xerrors.Is(err, http.ErrNotMultipart):
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	if len(columns) == 0 {
		fail(c, http.StatusBadRequest, "No valid field or image provided for update")
		return
	}

	if err := s.store.Update(ctx, username, columns); err != nil {
		if xerrors.Is(err, ErrEmailTaken) {
			fail(c, http.StatusConflict, "Email already in use")
			return
		}
		s.internalError(c, err)
		return
	}
	if v, ok := columns["email"].(string); ok {
		p.Email = v
	}
	if v, ok := columns["profile_image"].(string); ok {
		p.ProfileImage = v
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"profile": s.profileView(p, p.CurrencyBalance),
	})
}

func (s *Service) uploadError(c *gin.Context, err error) {
	if xerrors.KindOf(err) == xerrors.KindValidation {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	s.internalError(c, err)
}

// checkProfile 余额以 payment 为准，payment 不可用时返回本地缓存的余额
func (s *Service) checkProfile(c *gin.Context) {
	username := SanitizeInput(c.Query("username"))
	if username == "" {
		fail(c, http.StatusBadRequest, "Missing Parameters")
		return
	}
	if !auth.RequireSubject(c, username) {
		return
	}

	ctx := c.Request.Context()
	p, err := s.store.Get(ctx, username)
	if xerrors.Is(err, ErrProfileNotFound) {
		fail(c, http.StatusUnauthorized, "User not found")
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}

	res := s.payment.Call(ctx, client.Request{
		Method:  http.MethodGet,
		Target:  "/getBalance",
		Payload: url.Values{"username": {username}},
		Headers: http.Header{"Authorization": {bearer(c)}},
	})

	balance := p.CurrencyBalance
	if res.Status == http.StatusOK && res.OK() && res.Get("balance").Exists() {
		balance = res.Get("balance").Float()
		if err := s.store.SetBalance(ctx, username, balance); err != nil {
			s.logger.WarnContext(ctx, "cache balance failed", clog.Error(err))
		}
	} else {
		s.logger.WarnContext(ctx, "payment unavailable, using cached balance",
			clog.Int("status", res.Status),
			clog.String("kind", res.Kind.String()))
	}

	c.JSON(http.StatusOK, s.profileView(p, balance))
}

func (s *Service) retrieveCollection(c *gin.Context) {
	username := SanitizeInput(c.Query("username"))
	if !auth.RequireSubject(c, username) {
		return
	}

	ctx := c.Request.Context()
	ok, err := s.store.Exists(ctx, username)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !ok {
		fail(c, http.StatusUnauthorized, "User not found")
		return
	}

	items, err := s.agg.Aggregate(ctx, username, c.GetHeader("Authorization"))
	var remote *RemoteError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, items)
	case xerrors.Is(err, ErrNoItems):
		c.JSON(http.StatusOK, gin.H{"message": "User has no gachas"})
	case xerrors.As(err, &remote):
		s.logger.WarnContext(ctx, "catalog aggregation failed",
			clog.Int("status", remote.Status),
			clog.String("kind", remote.Kind.String()))
		// 原样透传 catalog 的状态码与错误体，熔断打开时为 503 open-circuit
		if len(remote.Body) == 0 {
			c.JSON(remote.Status, gin.H{"Error": "Gacha service is down"})
			return
		}
		c.Data(remote.Status, "application/json; charset=utf-8", remote.Body)
	default:
		s.internalError(c, err)
	}
}

// parseGachaNames 逗号分隔；缺省或 "None" 表示全部
func parseGachaNames(raw string) []string {
	if raw == "" || raw == "None" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		names = append(names, strings.TrimSpace(p))
	}
	return names
}

func (s *Service) infoCollection(c *gin.Context) {
	username := SanitizeInput(c.Query("username"))
	if !auth.RequireSubject(c, username) {
		return
	}
	names := parseGachaNames(c.Query("gacha_name"))

	ctx := c.Request.Context()
	ok, err := s.store.Exists(ctx, username)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !ok {
		fail(c, http.StatusUnauthorized, "User not found")
		return
	}

	res := s.catalog.Call(ctx, client.Request{
		Method:  http.MethodGet,
		Target:  "/get_gacha_collection",
		Payload: map[string][]string{"gacha_name": names},
		Headers: http.Header{"Authorization": {bearer(c)}},
		JSON:    true,
	})
	if res.Status == http.StatusOK && res.OK() {
		c.Data(http.StatusOK, "application/json", res.Data)
		return
	}
	c.JSON(res.Status, gin.H{"error": json.RawMessage(res.Data)})
}

// gachaImage 经熔断器从 catalog 拉取卡片图片
func (s *Service) gachaImage(c *gin.Context) {
	filename := c.Param("filename")
	if uploads.SecureFilename(filename) != filename {
		fail(c, http.StatusBadRequest, "Invalid filename")
		return
	}

	res := s.catalog.Call(c.Request.Context(), client.Request{
		Method:  http.MethodGet,
		Target:  "/uploads/" + url.PathEscape(filename),
		Headers: http.Header{"Authorization": {bearer(c)}},
	})
	if res.IsBinary() {
		c.Data(http.StatusOK, res.ContentType, res.Body)
		return
	}
	c.Data(res.Status, "application/json", res.Data)
}

func (s *Service) createProfile(c *gin.Context) {
	body, ok := readJSON(c)
	if !ok {
		fail(c, http.StatusBadRequest, "Missing request data")
		return
	}
	username := SanitizeInput(body.Get("username").String())
	email := SanitizeEmail(body.Get("email").String())
	balance := body.Get("currency_balance")

	if username == "" {
		fail(c, http.StatusBadRequest, "Missing 'username' parameter")
		return
	}
	if email == "" {
		fail(c, http.StatusBadRequest, "Missing 'email' parameter")
		return
	}
	if balance.Exists() && balance.Type != gjson.Number {
		fail(c, http.StatusBadRequest, "currency_balance must be int or float")
		return
	}

	ctx := c.Request.Context()
	exists, err := s.store.Exists(ctx, username)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if exists {
		fail(c, http.StatusInternalServerError, "Profile already exists")
		return
	}

	p := &Profile{
		Username:        username,
		Email:           email,
		ProfileImage:    s.cfg.DefaultImage,
		CurrencyBalance: balance.Float(),
	}
	if err := s.store.Create(ctx, p); err != nil {
		if xerrors.Is(err, ErrProfileExists) {
			fail(c, http.StatusInternalServerError, "Profile already exists")
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Profile for username '%s' created successfully", username)})
}

func (s *Service) deleteProfile(c *gin.Context) {
	body, _ := readJSON(c)
	username := SanitizeInput(body.Get("username").String())
	if username == "" {
		fail(c, http.StatusBadRequest, "Missing parameters")
		return
	}
	if !auth.RequireSubject(c, username) {
		return
	}

	if err := s.store.Delete(c.Request.Context(), username); err != nil {
		if xerrors.Is(err, ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"Error": "User not found"})
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Profile for username '%s' deleted successfully", username)})
}

func parseCollectedDate(s string) (time.Time, error) {
	for _, layout := range collectedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, xerrors.NewKind(xerrors.KindValidation, "invalid collected_date %q", s)
}

func (s *Service) insertGacha(c *gin.Context) {
	body, ok := readJSON(c)
	if !ok {
		fail(c, http.StatusBadRequest, "Missing request data")
		return
	}
	username := SanitizeInput(body.Get("username").String())
	gachaName := SanitizeGachaName(body.Get("gacha_name").String())
	rawDate := body.Get("collected_date").String()

	switch {
	case username == "":
		fail(c, http.StatusBadRequest, "Missing 'username' parameter")
		return
	case gachaName == "":
		fail(c, http.StatusBadRequest, "Missing 'gacha_name' parameter")
		return
	case rawDate == "":
		fail(c, http.StatusBadRequest, "Missing 'collected_date' parameter")
		return
	}
	collected, err := parseCollectedDate(rawDate)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid 'collected_date' format. Use ISO format (e.g., 'YYYY-MM-DDTHH:MM:SS')")
		return
	}

	ctx := c.Request.Context()
	exists, err := s.store.Exists(ctx, username)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !exists {
		fail(c, http.StatusNotFound, fmt.Sprintf("User '%s' not found", username))
		return
	}

	rec := &OwnershipRecord{GachaName: gachaName, CollectedDate: collected, Username: username}
	if err := s.store.AddItem(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "add gacha failed", clog.Error(err))
		fail(c, http.StatusInternalServerError, "An error occurred while adding Gacha: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Gacha '%s' added to collection for user '%s'", gachaName, username)})
}

// deleteGacha all=true 且未指定用户时删除所有用户的同名卡片；
// all=true 且指定用户时删除该用户的全部同名卡片；否则删除一张。
func (s *Service) deleteGacha(c *gin.Context) {
	body, ok := readJSON(c)
	if !ok {
		fail(c, http.StatusBadRequest, "Missing request data")
		return
	}
	username := SanitizeInput(body.Get("username").String())
	anyUser := username == "" || username == "null"
	if !anyUser && !auth.RequireSubject(c, username) {
		return
	}
	gachaName := SanitizeGachaName(body.Get("gacha_name").String())
	if gachaName == "" {
		fail(c, http.StatusBadRequest, "Missing 'gacha_name' parameter")
		return
	}
	all := body.Get("all").Bool()

	ctx := c.Request.Context()
	if all && anyUser {
		n, err := s.store.RemoveAll(ctx, gachaName)
		if err != nil {
			s.internalError(c, err)
			return
		}
		if n == 0 {
			fail(c, http.StatusNotFound, fmt.Sprintf("No Gacha items found with name %s", gachaName))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Gacha items with name %s have been deleted for all users", gachaName)})
		return
	}

	exists, err := s.store.Exists(ctx, username)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !exists {
		fail(c, http.StatusBadRequest, "User not found")
		return
	}

	if all {
		n, err := s.store.RemoveForUser(ctx, username, gachaName)
		if err != nil {
			s.internalError(c, err)
			return
		}
		if n == 0 {
			fail(c, http.StatusNotFound, "Gacha not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Gacha '%s' deleted from collection", gachaName), "deleted": n})
		return
	}

	if err := s.store.RemoveOne(ctx, username, gachaName); err != nil {
		if xerrors.Is(err, ErrItemNotFound) {
			fail(c, http.StatusNotFound, "Gacha not found")
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Gacha '%s' deleted from collection", gachaName)})
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
