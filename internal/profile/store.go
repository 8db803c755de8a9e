package profile

import (
	"context"

	"gorm.io/gorm"

	"github.com/ceyewan/gacha/db"
	"github.com/ceyewan/gacha/xerrors"
)

var (
	ErrProfileNotFound = xerrors.WithKind(xerrors.New("profile not found"), xerrors.KindNotFound)
	ErrProfileExists   = xerrors.WithKind(xerrors.New("profile already exists"), xerrors.KindConflict)
	ErrEmailTaken      = xerrors.WithKind(xerrors.New("email already in use"), xerrors.KindConflict)
	ErrItemNotFound    = xerrors.WithKind(xerrors.New("gacha not found"), xerrors.KindNotFound)
	ErrItemExists      = xerrors.WithKind(xerrors.New("gacha with the same name and date already collected"), xerrors.KindConflict)
)

// Store 档案与持有记录的持久化
type Store struct {
	db db.DB
}

// NewStore 创建 Store
func NewStore(database db.DB) *Store {
	return &Store{db: database}
}

// Migrate 建表
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.AutoMigrate(ctx, &Profile{}, &OwnershipRecord{})
}

// Create 新建档案，用户名或邮箱重复返回 ErrProfileExists
func (s *Store) Create(ctx context.Context, p *Profile) error {
	err := s.db.DB(ctx).Create(p).Error
	if db.IsDuplicate(err) {
		return ErrProfileExists
	}
	return xerrors.Wrap(err, "create profile")
}

// Get 按用户名查询
func (s *Store) Get(ctx context.Context, username string) (*Profile, error) {
	var p Profile
	err := s.db.DB(ctx).Where("username = ?", username).First(&p).Error
	if db.IsNotFound(err) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "get profile")
	}
	return &p, nil
}

// Exists 档案是否存在
func (s *Store) Exists(ctx context.Context, username string) (bool, error) {
	var n int64
	if err := s.db.DB(ctx).Model(&Profile{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, xerrors.Wrap(err, "count profile")
	}
	return n > 0, nil
}

// Update 按列名更新，columns 为空时不做任何事
func (s *Store) Update(ctx context.Context, username string, columns map[string]any) error {
	if len(columns) == 0 {
		return nil
	}
	res := s.db.DB(ctx).Model(&Profile{}).Where("username = ?", username).Updates(columns)
	if db.IsDuplicate(res.Error) {
		return ErrEmailTaken
	}
	if res.Error != nil {
		return xerrors.Wrap(res.Error, "update profile")
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// SetBalance 缓存 payment 返回的余额
func (s *Store) SetBalance(ctx context.Context, username string, balance float64) error {
	err := s.db.DB(ctx).Model(&Profile{}).Where("username = ?", username).
		Update("currency_balance", balance).Error
	return xerrors.Wrap(err, "set balance")
}

// Delete 在同一事务中删除持有记录与档案
func (s *Store) Delete(ctx context.Context, username string) error {
	return s.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Where("username = ?", username).Delete(&OwnershipRecord{}).Error; err != nil {
			return xerrors.Wrap(err, "delete records")
		}
		res := tx.Where("username = ?", username).Delete(&Profile{})
		if res.Error != nil {
			return xerrors.Wrap(res.Error, "delete profile")
		}
		if res.RowsAffected == 0 {
			return ErrProfileNotFound
		}
		return nil
	})
}

// AddItem 记录一次获得
func (s *Store) AddItem(ctx context.Context, rec *OwnershipRecord) error {
	err := s.db.DB(ctx).Create(rec).Error
	if db.IsDuplicate(err) {
		return ErrItemExists
	}
	return xerrors.Wrap(err, "add gacha")
}

// Counts 按卡片名统计持有数量，按名称排序
func (s *Store) Counts(ctx context.Context, username string) ([]NameCount, error) {
	var rows []NameCount
	err := s.db.DB(ctx).Model(&OwnershipRecord{}).
		Select("gacha_name, COUNT(*) AS count").
		Where("username = ?", username).
		Group("gacha_name").
		Order("gacha_name").
		Scan(&rows).Error
	if err != nil {
		return nil, xerrors.Wrap(err, "count gachas")
	}
	return rows, nil
}

// RemoveOne 删除用户最早获得的一张同名卡片
func (s *Store) RemoveOne(ctx context.Context, username, gachaName string) error {
	return s.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var rec OwnershipRecord
		err := tx.Where("username = ? AND gacha_name = ?", username, gachaName).
			Order("collected_date").First(&rec).Error
		if db.IsNotFound(err) {
			return ErrItemNotFound
		}
		if err != nil {
			return xerrors.Wrap(err, "find gacha")
		}
		return xerrors.Wrap(tx.Delete(&rec).Error, "delete gacha")
	})
}

// RemoveForUser 删除用户所有同名卡片，返回删除条数
func (s *Store) RemoveForUser(ctx context.Context, username, gachaName string) (int64, error) {
	res := s.db.DB(ctx).Where("username = ? AND gacha_name = ?", username, gachaName).Delete(&OwnershipRecord{})
	if res.Error != nil {
		return 0, xerrors.Wrap(res.Error, "delete gachas")
	}
	return res.RowsAffected, nil
}

// RemoveAll 删除所有用户的同名卡片，返回删除条数
func (s *Store) RemoveAll(ctx context.Context, gachaName string) (int64, error) {
	res := s.db.DB(ctx).Where("gacha_name = ?", gachaName).Delete(&OwnershipRecord{})
	if res.Error != nil {
		return 0, xerrors.Wrap(res.Error, "delete gachas")
	}
	return res.RowsAffected, nil
}
