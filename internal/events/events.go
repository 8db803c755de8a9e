// Package events 定义服务间通过 mq 传递的事件。
package events

import (
	"encoding/json"
	"time"

	"github.com/ceyewan/gacha/xerrors"
)

// SubjectGachaDeleted catalog 删除卡片后发布，profile 据此清理持有记录
const SubjectGachaDeleted = "gacha.deleted"

// GachaDeleted 卡片已从目录中删除
type GachaDeleted struct {
	GachaName string    `json:"gacha_name"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Encode 序列化为 JSON
func (e GachaDeleted) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeGachaDeleted 解析事件，gacha_name 为空视为无效
func DecodeGachaDeleted(data []byte) (GachaDeleted, error) {
	var e GachaDeleted
	if err := json.Unmarshal(data, &e); err != nil {
		return e, xerrors.WithKind(xerrors.Wrap(err, "decode gacha.deleted"), xerrors.KindValidation)
	}
	if e.GachaName == "" {
		return e, xerrors.NewKind(xerrors.KindValidation, "gacha.deleted: empty gacha_name")
	}
	return e, nil
}
