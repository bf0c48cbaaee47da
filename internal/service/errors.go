package service

import (
	"errors"

	"rewardledger/internal/infrastructure/gateway"
	"rewardledger/internal/infrastructure/lock"
	"rewardledger/internal/repository"
)

var (
	ErrInvalidAmount               = errors.New("金额必须大于0")
	ErrInvalidEntryKind            = errors.New("不支持的流水类型")
	ErrInvalidModerationTransition = errors.New("审核状态流转不合法")
	ErrUnknownRewardAction         = errors.New("未配置的奖励行为")
	ErrAccountBusy                 = errors.New("账户繁忙，请稍后重试")

	// 以下为下层错误的别名，调用方只需要依赖 service 包
	ErrInsufficientBalance       = repository.ErrInsufficientBalance
	ErrConcurrentCreditLost      = repository.ErrConcurrentCreditLost
	ErrConcurrentModification    = repository.ErrConcurrentModification
	ErrWalletNotFound            = repository.ErrWalletNotFound
	ErrOrderNotFound             = repository.ErrOrderNotFound
	ErrOrderStatusInvalid        = repository.ErrOrderStatusInvalid
	ErrRecordNotFound            = repository.ErrRecordNotFound
	ErrWithdrawalNotPending      = repository.ErrWithdrawalNotPending
	ErrLockContention            = lock.ErrLockContention
	ErrExternalOracleUnavailable = gateway.ErrExternalOracleUnavailable
)

type InsufficientBalanceError = repository.InsufficientBalanceError
