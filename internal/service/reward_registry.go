package service

import (
	"sort"

	"rewardledger/internal/config"
)

// 互动行为
const (
	ActionPhotoUpload  = "photo_upload"
	ActionOfferComment = "offer_comment"
	ActionReview       = "review"
	ActionVideoUpload  = "video_upload"
	ActionSocialShare  = "social_share"
	ActionCheckin      = "checkin"
)

// RewardRegistry 行为 -> 奖励规则，由配置构造后注入 EngagementService
type RewardRegistry struct {
	rules map[string]config.RewardActionConfig
}

func NewRewardRegistry(rules map[string]config.RewardActionConfig) *RewardRegistry {
	copied := make(map[string]config.RewardActionConfig, len(rules))
	for action, rule := range rules {
		copied[action] = rule
	}
	return &RewardRegistry{rules: copied}
}

func (r *RewardRegistry) Lookup(action string) (config.RewardActionConfig, bool) {
	rule, ok := r.rules[action]
	return rule, ok
}

func (r *RewardRegistry) Actions() []string {
	actions := make([]string, 0, len(r.rules))
	for action := range r.rules {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	return actions
}

// QualityData 内容质量数据，由调用方从内容服务取得
type QualityData struct {
	TextLength      int  `json:"text_length"`
	PhotoCount      int  `json:"photo_count"`
	DurationSeconds int  `json:"duration_seconds"`
	Verified        bool `json:"verified"`
}

// checkQuality 不满足门槛时返回原因
func checkQuality(rule config.RewardActionConfig, q QualityData) (string, bool) {
	if rule.MinTextLength > 0 && q.TextLength < rule.MinTextLength {
		return "内容长度不足", false
	}
	if rule.MinPhotos > 0 && q.PhotoCount < rule.MinPhotos {
		return "图片数量不足", false
	}
	if rule.MinDurationSeconds > 0 && q.DurationSeconds < rule.MinDurationSeconds {
		return "视频时长不足", false
	}
	return "", true
}

// computeAward 基础奖励 + 长评奖励 + 已验证消费奖励
func computeAward(rule config.RewardActionConfig, q QualityData) int64 {
	amount := rule.BaseCoins
	if rule.LongTextLength > 0 && q.TextLength >= rule.LongTextLength {
		amount += rule.LongTextBonus
	}
	if q.Verified {
		amount += rule.VerifiedBonus
	}
	return amount
}
