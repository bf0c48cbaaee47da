package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrWalletNotFound         = errors.New("钱包不存在")
	ErrInsufficientBalance    = errors.New("余额不足")
	ErrConcurrentCreditLost   = errors.New("订单已入账（并发重复入账被拦截）")
	ErrConcurrentModification = errors.New("账户并发写入冲突，请重试")
	ErrOrderNotFound          = errors.New("订单不存在")
	ErrOrderStatusInvalid     = errors.New("订单状态不合法")
	ErrRecordNotFound         = errors.New("记录不存在")
	ErrStatusChanged          = errors.New("记录状态已变化")
	ErrDuplicateKey           = errors.New("唯一键冲突")
)

// InsufficientBalanceError 余额不足详情，errors.Is(err, ErrInsufficientBalance) 成立
type InsufficientBalanceError struct {
	Subject    string
	Available  string
	Requested  string
	Concurrent bool
}

func (e *InsufficientBalanceError) Error() string {
	if e.Concurrent {
		return fmt.Sprintf("余额不足（并发）: %s 可用 %s，请求 %s", e.Subject, e.Available, e.Requested)
	}
	return fmt.Sprintf("余额不足: %s 可用 %s，请求 %s", e.Subject, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// IsDuplicateKey 是否唯一键冲突（需要 gorm.Config.TranslateError）
func IsDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicateKey)
}

func notFound(err error, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}
