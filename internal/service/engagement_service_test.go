package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"rewardledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grant(t *testing.T, env *testEnv, account, action, ref string, quality *QualityData) *GrantResult {
	t.Helper()
	result, err := env.svc.Engagement.GrantReward(context.Background(), &GrantRequest{
		AccountID:   account,
		Action:      action,
		ReferenceID: ref,
		Quality:     quality,
	})
	require.NoError(t, err)
	return result
}

func balanceOf(t *testing.T, env *testEnv, account string) int64 {
	t.Helper()
	balance, err := env.svc.Ledger.GetBalance(context.Background(), account, "")
	require.NoError(t, err)
	return balance
}

func TestGrantReward_InstantCreditIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	first := grant(t, env, "u1", ActionSocialShare, "post-1", nil)
	assert.Equal(t, GrantStatusCredited, first.Status)
	assert.Equal(t, int64(2), first.CoinsAwarded)

	second := grant(t, env, "u1", ActionSocialShare, "post-1", nil)
	assert.Equal(t, GrantStatusDuplicate, second.Status)
	assert.Zero(t, second.CoinsAwarded)

	assert.Equal(t, int64(2), balanceOf(t, env, "u1"))
}

func TestGrantReward_ConcurrentDuplicatesCreditOnce(t *testing.T) {
	env := newTestEnv(t)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*GrantResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.svc.Engagement.GrantReward(context.Background(), &GrantRequest{
				AccountID:   "u1",
				Action:      ActionSocialShare,
				ReferenceID: "post-1",
			})
		}(i)
	}
	wg.Wait()

	credited := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if results[i].Status == GrantStatusCredited {
			credited++
		} else {
			assert.Equal(t, GrantStatusDuplicate, results[i].Status)
		}
	}
	assert.Equal(t, 1, credited)
	assert.Equal(t, int64(2), balanceOf(t, env, "u1"))
}

func TestGrantReward_ConcurrentModeratedDuplicatesSubmitOnce(t *testing.T) {
	env := newTestEnv(t)

	const callers = 6
	var wg sync.WaitGroup
	results := make([]*GrantResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.svc.Engagement.GrantReward(context.Background(), &GrantRequest{
				AccountID:   "u1",
				Action:      ActionPhotoUpload,
				ReferenceID: "photo-1",
				Quality:     &QualityData{PhotoCount: 2},
			})
		}(i)
	}
	wg.Wait()

	pending := 0
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		if results[i].Status == GrantStatusPending {
			pending++
		} else {
			assert.Equal(t, GrantStatusDuplicate, results[i].Status)
		}
	}
	assert.Equal(t, 1, pending)

	var records, logs int64
	require.NoError(t, env.db.Model(&model.PendingCoinReward{}).Count(&records).Error)
	require.NoError(t, env.db.Model(&model.EngagementRewardLog{}).Count(&logs).Error)
	assert.Equal(t, int64(1), records)
	assert.Equal(t, int64(1), logs)
	assert.Zero(t, balanceOf(t, env, "u1"))
}

func TestGrantReward_DailyLimit(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, GrantStatusCredited, grant(t, env, "u1", ActionCheckin, "day-1", nil).Status)
	assert.Equal(t, GrantStatusLimitReached, grant(t, env, "u1", ActionCheckin, "day-1b", nil).Status)

	// 跨过 UTC 零点后重新计数
	env.clock.Advance(24 * time.Hour)
	assert.Equal(t, GrantStatusCredited, grant(t, env, "u1", ActionCheckin, "day-2", nil).Status)

	assert.Equal(t, int64(20), balanceOf(t, env, "u1"))
}

func TestGrantReward_QualityGate(t *testing.T) {
	env := newTestEnv(t)

	short := grant(t, env, "u1", ActionOfferComment, "c-1", &QualityData{TextLength: 10})
	assert.Equal(t, GrantStatusQualityFailed, short.Status)

	video := grant(t, env, "u1", ActionVideoUpload, "v-1", &QualityData{DurationSeconds: 5})
	assert.Equal(t, GrantStatusQualityFailed, video.Status)

	// 质量不合格不占用引用，补充内容后可以再次提交
	long := grant(t, env, "u1", ActionOfferComment, "c-1", &QualityData{TextLength: 150})
	assert.Equal(t, GrantStatusPending, long.Status)

	record, err := env.svc.Moderation.Get(context.Background(), long.ModerationID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), record.Amount)
	// 基础 5 + 长评加成 5
	assert.Equal(t, 200.0, record.Percentage)
}

func TestGrantReward_UnknownAction(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Engagement.GrantReward(context.Background(), &GrantRequest{
		AccountID:   "u1",
		Action:      "dance",
		ReferenceID: "x",
	})
	assert.ErrorIs(t, err, ErrUnknownRewardAction)
}

func TestGrantReward_ModeratedRewardEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := grant(t, env, "u1", ActionReview, "r-1", &QualityData{TextLength: 80, Verified: true})
	require.Equal(t, GrantStatusPending, result.Status)
	assert.Zero(t, result.CoinsAwarded)
	assert.Zero(t, balanceOf(t, env, "u1"))

	// 审核中的引用同样不能重复提交
	assert.Equal(t, GrantStatusDuplicate, grant(t, env, "u1", ActionReview, "r-1", &QualityData{TextLength: 80}).Status)

	_, err := env.svc.Moderation.Approve(ctx, result.ModerationID, "admin", "ok")
	require.NoError(t, err)
	entry, err := env.svc.Moderation.CreditCoins(ctx, result.ModerationID)
	require.NoError(t, err)
	assert.Equal(t, int64(25), entry.Amount)
	assert.Equal(t, result.ModerationID, entry.Metadata.ModerationID)

	assert.Equal(t, int64(25), balanceOf(t, env, "u1"))
}

func TestComputeAward(t *testing.T) {
	env := newTestEnv(t)
	rule := env.cfg.Rewards[ActionOfferComment]

	assert.Equal(t, int64(5), computeAward(rule, QualityData{TextLength: 99}))
	assert.Equal(t, int64(10), computeAward(rule, QualityData{TextLength: 100}))

	review := env.cfg.Rewards[ActionReview]
	assert.Equal(t, int64(25), computeAward(review, QualityData{TextLength: 60, Verified: true}))
}
