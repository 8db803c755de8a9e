package catalog

import "time"

// isoLayout 与 Python datetime.isoformat() 的输出保持一致
const isoLayout = "2006-01-02T15:04:05.999999"

// Gacha 目录中的一张卡片
type Gacha struct {
	GachaID       int64     `gorm:"primaryKey;autoIncrement" msgpack:"id"`
	GachaName     string    `gorm:"size:50;not null;uniqueIndex" msgpack:"name"`
	ImagePath     string    `gorm:"size:200;not null" msgpack:"image"`
	Rarity        string    `gorm:"size:50;not null" msgpack:"rarity"`
	Description   string    `gorm:"size:100" msgpack:"description"`
	CollectedDate time.Time `gorm:"not null;autoCreateTime" msgpack:"collected_date"`
}

func (Gacha) TableName() string { return "gachas" }

// View get_gacha_collection 的响应条目
type View struct {
	GachaID       int64  `json:"gacha_id"`
	GachaName     string `json:"gacha_name"`
	Description   string `json:"description"`
	Rarity        string `json:"rarity"`
	CollectedDate string `json:"collected_date"`
	Img           string `json:"img"`
}
