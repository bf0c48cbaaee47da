package job

import (
	"context"
	"time"

	"rewardledger/internal/config"
	"rewardledger/internal/infrastructure/mq"
	"rewardledger/internal/metrics"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// OutboxSender 把 outbox 表里的消息投递到 Kafka
// 失败的消息在重试上限内继续投递
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	logger     *logrus.Entry
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config, publisher mq.Publisher) *OutboxSender {
	interval := time.Duration(cfg.Jobs.OutboxIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   interval,
		batchSize:  100,
		logger:     logrus.WithField("job", "outbox_sender"),
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.logger.Info("任务停止")
			return
		case <-ticker.C:
			s.ProcessOnce(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessOnce 投递一批消息，返回成功条数
func (s *OutboxSender) ProcessOnce(ctx context.Context) int {
	messages, err := s.outboxRepo.GetRetryable(ctx, s.cfg.Business.MaxRetryCount, s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("查询消息失败")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	logger := s.logger.WithFields(logrus.Fields{"id": msg.ID, "topic": msg.Topic, "key": msg.MessageKey})

	if err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload); err != nil {
		metrics.OutboxMessages.WithLabelValues(msg.Topic, "error").Inc()
		logger.WithError(err).Warn("消息发送失败")
		if err := s.outboxRepo.MarkAsFailed(ctx, msg.ID); err != nil {
			logger.WithError(err).Error("标记消息失败状态失败")
		}
		if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
			logger.Error("消息超过最大重试次数，不再投递")
		}
		return false
	}

	metrics.OutboxMessages.WithLabelValues(msg.Topic, "sent").Inc()
	if err := s.outboxRepo.MarkAsSent(ctx, msg.ID); err != nil {
		logger.WithError(err).Error("更新消息状态失败")
		return false
	}
	logger.Debug("消息发送成功")
	return true
}
