package profile

import (
	"context"

	"github.com/ceyewan/gacha/clog"
	"github.com/ceyewan/gacha/internal/events"
	"github.com/ceyewan/gacha/mq"
)

// Subscribe 监听 catalog 删除事件，清理所有用户的同名持有记录
func (s *Service) Subscribe(ctx context.Context) (mq.Subscription, error) {
	return s.mq.Subscribe(ctx, events.SubjectGachaDeleted, s.handleGachaDeleted, mq.WithQueueGroup(s.cfg.QueueGroup))
}

func (s *Service) handleGachaDeleted(ctx context.Context, msg mq.Message) error {
	evt, err := events.DecodeGachaDeleted(msg.Data())
	if err != nil {
		return err
	}
	n, err := s.store.RemoveAll(ctx, evt.GachaName)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "purged ownership records",
		clog.String("gacha_name", evt.GachaName),
		clog.Int64("deleted", n))
	return nil
}
