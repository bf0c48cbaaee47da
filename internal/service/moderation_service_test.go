package service

import (
	"context"
	"testing"

	"rewardledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitPhoto(t *testing.T, env *testEnv, ref string) int64 {
	t.Helper()
	result := grant(t, env, "u1", ActionPhotoUpload, ref, &QualityData{PhotoCount: 2})
	require.Equal(t, GrantStatusPending, result.Status)
	return result.ModerationID
}

func TestCreditCoins_OnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := submitPhoto(t, env, "p-1")

	_, err := env.svc.Moderation.Approve(ctx, id, "admin", "")
	require.NoError(t, err)

	entry, err := env.svc.Moderation.CreditCoins(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(20), entry.Amount)

	_, err = env.svc.Moderation.CreditCoins(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidModerationTransition)

	record, err := env.svc.Moderation.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ModerationStatusCredited, record.Status)
	require.NotNil(t, record.LedgerEntryID)
	assert.Equal(t, entry.ID, *record.LedgerEntryID)

	assert.Equal(t, int64(20), balanceOf(t, env, "u1"))
}

func TestCreditCoins_RequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	id := submitPhoto(t, env, "p-1")

	_, err := env.svc.Moderation.CreditCoins(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidModerationTransition)
	assert.Zero(t, balanceOf(t, env, "u1"))
}

func TestReject_BlocksCreditAndFreesReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := submitPhoto(t, env, "p-1")

	rejected, err := env.svc.Moderation.Reject(ctx, id, "admin", "图片模糊")
	require.NoError(t, err)
	assert.Equal(t, model.ModerationStatusRejected, rejected.Status)

	_, err = env.svc.Moderation.CreditCoins(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidModerationTransition)

	_, err = env.svc.Moderation.Approve(ctx, id, "admin", "")
	assert.ErrorIs(t, err, ErrInvalidModerationTransition)

	// 被驳回的引用可以重新提交
	again := submitPhoto(t, env, "p-1")
	assert.NotEqual(t, id, again)
	assert.Zero(t, balanceOf(t, env, "u1"))
}

func TestListPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := submitPhoto(t, env, "p-1")
	submitPhoto(t, env, "p-2")

	_, err := env.svc.Moderation.Approve(ctx, first, "admin", "")
	require.NoError(t, err)

	records, total, err := env.svc.Moderation.ListPending(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, "p-2", records[0].ReferenceID)
}

func TestGet_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Moderation.Get(context.Background(), 404)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
