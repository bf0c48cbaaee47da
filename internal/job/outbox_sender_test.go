package job

import (
	"context"
	"errors"
	"testing"

	"rewardledger/internal/infrastructure/mq"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/internal/testutil"

	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxSender_ProcessOnce(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	ctx := context.Background()
	repo := repository.NewOutboxRepository(db)

	ok := &model.OutboxMessage{MessageKey: "u1", Topic: cfg.Kafka.Topic.Notification, Payload: `{"account_id":"u1"}`, Status: model.OutboxStatusPending}
	bad := &model.OutboxMessage{MessageKey: "u2", Topic: cfg.Kafka.Topic.Notification, Payload: `{"account_id":"u2"}`, Status: model.OutboxStatusPending}
	require.NoError(t, repo.Create(ctx, nil, ok))
	require.NoError(t, repo.Create(ctx, nil, bad))

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndFail(errors.New("broker down"))

	sender := NewOutboxSender(db, cfg, mq.NewKafkaPublisher(producer))
	assert.Equal(t, 1, sender.ProcessOnce(ctx))
	require.NoError(t, producer.Close())

	var sent, failed model.OutboxMessage
	require.NoError(t, db.First(&sent, ok.ID).Error)
	require.NoError(t, db.First(&failed, bad.ID).Error)
	assert.Equal(t, model.OutboxStatusSent, sent.Status)
	assert.Equal(t, model.OutboxStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)

	pending, err := repo.CountByStatus(ctx, model.OutboxStatusPending)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestOutboxSender_StopsAfterMaxRetry(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	ctx := context.Background()

	msg := &model.OutboxMessage{
		MessageKey: "u1",
		Topic:      cfg.Kafka.Topic.Notification,
		Payload:    "{}",
		Status:     model.OutboxStatusFailed,
		RetryCount: cfg.Business.MaxRetryCount,
	}
	require.NoError(t, db.Create(msg).Error)

	// 超过重试上限的消息不会再投递，mock 没有期望，任何发送都会让测试失败
	producer := mocks.NewSyncProducer(t, nil)
	sender := NewOutboxSender(db, cfg, mq.NewKafkaPublisher(producer))
	assert.Zero(t, sender.ProcessOnce(ctx))
	require.NoError(t, producer.Close())
}
