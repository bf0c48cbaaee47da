package service

import (
	"testing"

	"rewardledger/internal/config"
	"rewardledger/internal/testutil"
	"rewardledger/pkg/clock"

	"github.com/alicebob/miniredis/v2"
	"gorm.io/gorm"
)

type testEnv struct {
	db    *gorm.DB
	mr    *miniredis.Miniredis
	cfg   *config.Config
	clock *clock.Fixed
	svc   *Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	mr, redisClient := testutil.NewRedis(t)
	cfg := testutil.NewConfig()
	clk := testutil.NewClock()
	return &testEnv{
		db:    db,
		mr:    mr,
		cfg:   cfg,
		clock: clk,
		svc:   NewServices(db, redisClient, cfg, clk),
	}
}
