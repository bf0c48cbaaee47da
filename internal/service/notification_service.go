package service

import (
	"context"
	"encoding/json"
	"fmt"

	"rewardledger/internal/config"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationService 通知派发：写入 outbox，由 OutboxSender 投递到 Kafka
// 失败只记日志，不影响调用方
type NotificationService struct {
	cfg        *config.Config
	clock      clock.Clock
	outboxRepo *repository.OutboxRepository
}

func NewNotificationService(db *gorm.DB, cfg *config.Config, clk clock.Clock) *NotificationService {
	return &NotificationService{
		cfg:        cfg,
		clock:      clk,
		outboxRepo: repository.NewOutboxRepository(db),
	}
}

// Send 给用户发通知
func (s *NotificationService) Send(ctx context.Context, accountID, title, message string) {
	s.SendCategory(ctx, accountID, title, message, "")
}

func (s *NotificationService) SendCategory(ctx context.Context, accountID, title, message, category string) {
	payload := model.NotificationPayload{
		AccountID: accountID,
		Title:     title,
		Message:   message,
		Category:  category,
		SentAt:    s.clock.Now(),
	}
	if err := s.Enqueue(ctx, nil, s.cfg.Kafka.Topic.Notification, accountID, payload); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"account_id": accountID,
			"title":      title,
		}).Warn("通知写入失败")
	}
}

// Enqueue 写一条 outbox 消息，tx 不为空时随业务事务一起提交
func (s *NotificationService) Enqueue(ctx context.Context, tx *gorm.DB, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}
	return s.outboxRepo.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: key,
		Topic:      topic,
		Payload:    string(data),
		Status:     model.OutboxStatusPending,
	})
}
