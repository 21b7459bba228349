package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"dot-wallet/internal/model"
	"dot-wallet/internal/service/mq"
	"dot-wallet/pkg/logger"
	"dot-wallet/pkg/monitor"
)

// 超过最大重试次数后标记为 FAILED，不再投递
const maxRelayAttempts = 10

// RelayService 负责将本地消息表的消息搬运到 MQ
type RelayService struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
	batch    int
	log      *zap.Logger
}

func NewRelayService(db *gorm.DB, producer mq.Producer) *RelayService {
	return &RelayService{
		db:       db,
		producer: producer,
		interval: 500 * time.Millisecond, // 500ms 轮询一次
		batch:    50,
		log:      logger.Named("relay"),
	}
}

func (s *RelayService) Start(ctx context.Context) {
	s.log.Info("启动消息中继服务...")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("停止服务")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

// processPendingMessages 按 ID 顺序投递，返回成功条数
func (s *RelayService) processPendingMessages(ctx context.Context) int {
	// 1. 获取一批 Pending 消息
	var messages []model.OutboxMessage
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("id ASC").
		Limit(s.batch).
		Find(&messages).Error; err != nil {
		s.log.Warn("查询消息失败", zap.Error(err))
		return 0
	}
	if len(messages) == 0 {
		return 0
	}

	sent := 0
	for i := range messages {
		msg := &messages[i]

		// 2. 发送 MQ
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			s.log.Warn("发送消息失败", zap.Uint64("id", msg.ID), zap.Error(err))
			s.markAttempt(ctx, msg)
			continue
		}

		// 3. 更新状态为 SENT
		// 只有发送成功了才更新状态 => At-least-once，消费方需幂等
		if err := s.db.WithContext(ctx).Model(msg).Update("status", model.OutboxSent).Error; err != nil {
			s.log.Warn("更新状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
			continue
		}
		sent++
		monitor.OutboxRelayed(msg.Topic)
	}

	if sent > 0 {
		s.log.Debug("消息已投递", zap.Int("count", sent))
	}
	return sent
}

// attemptUpdates 记录一次失败投递，达到上限时标记 FAILED
func attemptUpdates(attempts int) map[string]interface{} {
	updates := map[string]interface{}{"attempts": attempts + 1}
	if attempts+1 >= maxRelayAttempts {
		updates["status"] = model.OutboxFailed
	}
	return updates
}

func (s *RelayService) markAttempt(ctx context.Context, msg *model.OutboxMessage) {
	updates := attemptUpdates(msg.Attempts)
	if _, failed := updates["status"]; failed {
		s.log.Error("消息投递多次失败，放弃", zap.Uint64("id", msg.ID), zap.String("topic", msg.Topic))
	}
	if err := s.db.WithContext(ctx).Model(msg).Updates(updates).Error; err != nil {
		s.log.Warn("更新重试次数失败", zap.Uint64("id", msg.ID), zap.Error(err))
	}
}
