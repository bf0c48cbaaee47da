package service

import (
	"context"
	"errors"
	"time"

	"rewardledger/internal/infrastructure/cache"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	leaderboardKey    = "top_earners"
	leaderboardWindow = 30 * 24 * time.Hour
	leaderboardSize   = 50
	leaderboardTTL    = time.Hour
)

type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	AccountID string `json:"account_id"`
	Coins     int64  `json:"coins"`
}

type Leaderboard struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Since       time.Time          `json:"since"`
	Entries     []LeaderboardEntry `json:"entries"`
}

// LeaderboardService 近 30 天获得硬币排行，快照缓存在 redis
type LeaderboardService struct {
	clock      clock.Clock
	snapshots  *cache.JSONCache
	ledgerRepo *repository.LedgerRepository
}

func NewLeaderboardService(db *gorm.DB, redisClient *redis.Client, clk clock.Clock) *LeaderboardService {
	return &LeaderboardService{
		clock:      clk,
		snapshots:  cache.NewJSONCache(redisClient, "leaderboard"),
		ledgerRepo: repository.NewLedgerRepository(db),
	}
}

// Refresh 重新计算并覆盖缓存
func (s *LeaderboardService) Refresh(ctx context.Context) (*Leaderboard, error) {
	now := s.clock.Now()
	since := now.Add(-leaderboardWindow)
	rows, err := s.ledgerRepo.TopEarners(ctx, since, leaderboardSize)
	if err != nil {
		return nil, err
	}

	board := &Leaderboard{GeneratedAt: now, Since: since, Entries: make([]LeaderboardEntry, 0, len(rows))}
	for i, row := range rows {
		board.Entries = append(board.Entries, LeaderboardEntry{
			Rank:      i + 1,
			AccountID: row.AccountID,
			Coins:     row.Total.IntPart(),
		})
	}

	if err := s.snapshots.Set(ctx, leaderboardKey, board, leaderboardTTL); err != nil {
		logrus.WithError(err).Warn("缓存排行榜失败")
	}
	return board, nil
}

// Get 优先读缓存，未命中时现算
func (s *LeaderboardService) Get(ctx context.Context) (*Leaderboard, error) {
	var board Leaderboard
	err := s.snapshots.Get(ctx, leaderboardKey, &board)
	if err == nil {
		return &board, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logrus.WithError(err).Warn("读取排行榜缓存失败")
	}
	return s.Refresh(ctx)
}
