package catalog

import (
	"context"

	"github.com/ceyewan/gacha/cache"
	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/xerrors"
)

func cacheKey(name string) string { return "gacha:" + name }

// reader 按名称读取时先查缓存，缓存故障一律当作未命中
type reader struct {
	store  *Store
	cache  cache.Cache
	logger clog.Logger
}

func (r *reader) get(ctx context.Context, name string) (*Gacha, error) {
	var g Gacha
	err := r.cache.Get(ctx, cacheKey(name), &g)
	if err == nil {
		return &g, nil
	}
	if !xerrors.Is(err, cache.ErrMiss) {
		r.logger.DebugContext(ctx, "cache get failed", clog.String("gacha_name", name), clog.Error(err))
	}

	found, err := r.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	r.fill(ctx, found)
	return found, nil
}

// list 按 names 的去重顺序返回找到的卡片，不存在的名字直接跳过
func (r *reader) list(ctx context.Context, names []string) ([]Gacha, error) {
	if len(names) == 0 {
		return r.store.List(ctx, nil)
	}

	seen := make(map[string]struct{}, len(names))
	ordered := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		ordered = append(ordered, n)
	}

	hits := make(map[string]Gacha, len(ordered))
	var missing []string
	for _, n := range ordered {
		var g Gacha
		if err := r.cache.Get(ctx, cacheKey(n), &g); err == nil {
			hits[n] = g
			continue
		}
		missing = append(missing, n)
	}

	if len(missing) > 0 {
		loaded, err := r.store.List(ctx, missing)
		if err != nil {
			return nil, err
		}
		for i := range loaded {
			hits[loaded[i].GachaName] = loaded[i]
			r.fill(ctx, &loaded[i])
		}
	}

	out := make([]Gacha, 0, len(hits))
	for _, n := range ordered {
		if g, ok := hits[n]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *reader) fill(ctx context.Context, g *Gacha) {
	if err := r.cache.Set(ctx, cacheKey(g.GachaName), g, 0); err != nil {
		r.logger.DebugContext(ctx, "cache set failed", clog.String("gacha_name", g.GachaName), clog.Error(err))
	}
}

func (r *reader) invalidate(ctx context.Context, name string) {
	if err := r.cache.Delete(ctx, cacheKey(name)); err != nil {
		r.logger.WarnContext(ctx, "cache invalidate failed", clog.String("gacha_name", name), clog.Error(err))
	}
}
