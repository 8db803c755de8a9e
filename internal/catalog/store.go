package catalog

import (
	"context"

	"github.com/ceyewan/gacha/db"
	"github.com/ceyewan/gacha/xerrors"
)

var (
	ErrGachaNotFound = xerrors.WithKind(xerrors.New("gacha not found"), xerrors.KindNotFound)
	ErrGachaExists   = xerrors.WithKind(xerrors.New("gacha already exists"), xerrors.KindConflict)
)

// Store 卡片目录的持久化
type Store struct {
	db db.DB
}

func NewStore(database db.DB) *Store {
	return &Store{db: database}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.AutoMigrate(ctx, &Gacha{})
}

func (s *Store) Create(ctx context.Context, g *Gacha) error {
	err := s.db.DB(ctx).Create(g).Error
	if db.IsDuplicate(err) {
		return ErrGachaExists
	}
	return xerrors.Wrap(err, "create gacha")
}

func (s *Store) Get(ctx context.Context, name string) (*Gacha, error) {
	var g Gacha
	err := s.db.DB(ctx).Where("gacha_name = ?", name).First(&g).Error
	if db.IsNotFound(err) {
		return nil, ErrGachaNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "get gacha")
	}
	return &g, nil
}

// List names 为空时返回全部，按 gacha_id 排序
func (s *Store) List(ctx context.Context, names []string) ([]Gacha, error) {
	q := s.db.DB(ctx).Order("gacha_id")
	if len(names) > 0 {
		q = q.Where("gacha_name IN ?", names)
	}
	var out []Gacha
	if err := q.Find(&out).Error; err != nil {
		return nil, xerrors.Wrap(err, "list gachas")
	}
	return out, nil
}

// Update 只更新非空字段，返回更新后的记录
func (s *Store) Update(ctx context.Context, name, rarity, description string) (*Gacha, error) {
	g, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	columns := map[string]any{}
	if rarity != "" {
		columns["rarity"] = rarity
		g.Rarity = rarity
	}
	if description != "" {
		columns["description"] = description
		g.Description = description
	}
	if len(columns) == 0 {
		return g, nil
	}
	if err := s.db.DB(ctx).Model(&Gacha{}).Where("gacha_id = ?", g.GachaID).Updates(columns).Error; err != nil {
		return nil, xerrors.Wrap(err, "update gacha")
	}
	return g, nil
}

// Delete 删除并返回被删除的记录
func (s *Store) Delete(ctx context.Context, name string) (*Gacha, error) {
	g, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.db.DB(ctx).Delete(&Gacha{}, g.GachaID).Error; err != nil {
		return nil, xerrors.Wrap(err, "delete gacha")
	}
	return g, nil
}
