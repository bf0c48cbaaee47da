package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// 雪花算法：1 位符号 | 41 位毫秒时间戳 | 10 位机器 ID | 12 位序列号
// 流水号、订单号、提现单号都基于它生成，多实例部署时 workerID 必须不同

const (
	epoch          = int64(1735689600000) // 2025-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// 单号前缀
const (
	PrefixEntry      = "CTX"
	PrefixOrder      = "ORD"
	PrefixWithdrawal = "WDR"
	PrefixRefund     = "REF"
	PrefixTask       = "TSK"
	PrefixCredit     = "MCR"
	PrefixCoinAward  = "MCA"
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// Init 初始化默认生成器，只有第一次调用生效
func Init(workerID int64) {
	once.Do(func() {
		if workerID < 0 || workerID > maxWorkerID {
			logrus.Fatalf("workerID 必须在 0-%d 之间", maxWorkerID)
		}
		defaultGenerator = &Snowflake{workerID: workerID}
	})
}

func NextID() int64 {
	if defaultGenerator == nil {
		Init(1)
	}
	return defaultGenerator.Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if now < s.timestamp {
		// 时钟回拨，沿用上一毫秒继续发号
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// Generate 生成带前缀的业务单号，例如 CTX20250115143052-1234567890123
func Generate(prefix string) string {
	id := NextID()
	return fmt.Sprintf("%s%s-%d", prefix, time.Now().UTC().Format("20060102150405"), id)
}

func GenerateEntryNo() string      { return Generate(PrefixEntry) }
func GenerateOrderNo() string      { return Generate(PrefixOrder) }
func GenerateWithdrawalNo() string { return Generate(PrefixWithdrawal) }
func GenerateRefundNo() string     { return Generate(PrefixRefund) }
func GenerateTaskNo() string       { return Generate(PrefixTask) }
func GenerateCreditNo() string     { return Generate(PrefixCredit) }
func GenerateCoinAwardNo() string  { return Generate(PrefixCoinAward) }
