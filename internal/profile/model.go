package profile

import "time"

// Profile 用户档案，username 由认证服务分配
type Profile struct {
	Username        string  `gorm:"primaryKey;size:50"`
	Email           string  `gorm:"size:120;not null;uniqueIndex"`
	ProfileImage    string  `gorm:"size:200"`
	CurrencyBalance float64 `gorm:"not null;default:0"`

	Collection []OwnershipRecord `gorm:"foreignKey:Username;references:Username;constraint:OnDelete:CASCADE"`
}

func (Profile) TableName() string { return "profiles" }

// OwnershipRecord 用户持有的一张卡片，同名卡片可以有多条
//
// (username, gacha_name, collected_date) 唯一，不同用户可以在同一时刻获得同名卡片。
type OwnershipRecord struct {
	Username      string    `gorm:"primaryKey;size:50"`
	GachaName     string    `gorm:"primaryKey;size:100"`
	CollectedDate time.Time `gorm:"primaryKey"`
}

func (OwnershipRecord) TableName() string { return "gacha_items" }

// NameCount 按卡片名聚合后的持有数量
type NameCount struct {
	GachaName string
	Count     int
}
