package service

import (
	"context"
	"errors"
	"fmt"

	"rewardledger/internal/config"
	"rewardledger/internal/metrics"
	"rewardledger/internal/model"
	"rewardledger/internal/repository"
	"rewardledger/pkg/clock"
	"rewardledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CoinValue 1 硬币对应的货币金额
var CoinValue = decimal.New(1, -2)

// CoinsToMoney 硬币折算金额
func CoinsToMoney(coins int64) decimal.Decimal {
	return decimal.NewFromInt(coins).Mul(CoinValue)
}

// MoneyToCoins 金额折算硬币，向下取整
func MoneyToCoins(amount decimal.Decimal) int64 {
	return amount.Div(CoinValue).Floor().IntPart()
}

// 入账结果
const (
	CreditOutcomeCredited  = "credited"
	CreditOutcomeDuplicate = "duplicate"
)

type CreditResult struct {
	Outcome     string          `json:"outcome"`
	OrderID     string          `json:"order_id"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
}

// MerchantWalletService 商户结算钱包
// 所有余额变动都是单条件更新，不依赖外部锁
type MerchantWalletService struct {
	cfg        *config.Config
	clock      clock.Clock
	ledger     *LedgerService
	notifier   *NotificationService
	walletRepo *repository.MerchantWalletRepository
}

func NewMerchantWalletService(db *gorm.DB, cfg *config.Config, clk clock.Clock, ledger *LedgerService, notifier *NotificationService) *MerchantWalletService {
	return &MerchantWalletService{
		cfg:        cfg,
		clock:      clk,
		ledger:     ledger,
		notifier:   notifier,
		walletRepo: repository.NewMerchantWalletRepository(db),
	}
}

func (s *MerchantWalletService) GetWallet(ctx context.Context, merchantID string) (*model.MerchantWallet, error) {
	return s.walletRepo.GetByMerchantID(ctx, merchantID)
}

func (s *MerchantWalletService) OpenWallet(ctx context.Context, merchantID, storeID string) (*model.MerchantWallet, error) {
	return s.walletRepo.GetOrCreate(ctx, merchantID, storeID)
}

func (s *MerchantWalletService) ListTransactions(ctx context.Context, merchantID, txType string, page, pageSize int) ([]*model.MerchantWalletTransaction, int64, error) {
	return s.walletRepo.ListTransactions(ctx, merchantID, txType, page, pageSize)
}

// PlatformFee 按配置费率计算平台服务费
func (s *MerchantWalletService) PlatformFee(gross decimal.Decimal) decimal.Decimal {
	return gross.Mul(decimal.NewFromFloat(s.cfg.Business.PlatformFeeRate)).Round(2)
}

// CreditOrder 订单结算入账，同一订单最多入账一次
//
// 已入账或并发入账被拦截都按成功处理，返回 duplicate；只有钱包不存在才返回错误。
func (s *MerchantWalletService) CreditOrder(ctx context.Context, merchantID, orderID, orderNumber string, gross, platformFee decimal.Decimal) (*CreditResult, error) {
	if !gross.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if platformFee.IsNegative() || platformFee.GreaterThan(gross) {
		return nil, fmt.Errorf("平台服务费不合法: %s", platformFee.String())
	}

	net := gross.Sub(platformFee)
	result := &CreditResult{OrderID: orderID, NetAmount: net, PlatformFee: platformFee}
	logger := logrus.WithFields(logrus.Fields{"merchant_id": merchantID, "order_id": orderID})

	wallet, err := s.walletRepo.GetByMerchantID(ctx, merchantID)
	if err != nil {
		metrics.MerchantCredits.WithLabelValues("error").Inc()
		return nil, err
	}

	credited, err := s.walletRepo.HasOrderCredit(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("查询入账记录失败: %w", err)
	}
	if credited {
		metrics.MerchantCredits.WithLabelValues(CreditOutcomeDuplicate).Inc()
		logger.Info("订单已入账，跳过")
		result.Outcome = CreditOutcomeDuplicate
		return result, nil
	}

	now := s.clock.Now()
	creditOrderID := orderID
	txn := &model.MerchantWalletTransaction{
		TransactionNo: idgen.GenerateCreditNo(),
		WalletID:      wallet.ID,
		MerchantID:    merchantID,
		Type:          model.MerchantTxCredit,
		Amount:        gross,
		PlatformFee:   platformFee,
		NetAmount:     net,
		OrderID:       orderID,
		OrderNumber:   orderNumber,
		CreditOrderID: &creditOrderID,
		Status:        model.MerchantTxStatusCompleted,
		Description:   fmt.Sprintf("订单结算 %s", orderNumber),
		ProcessedAt:   &now,
		CreatedAt:     now,
	}

	err = s.walletRepo.CreditOrder(ctx, txn, gross, now)
	if err != nil {
		if errors.Is(err, repository.ErrConcurrentCreditLost) {
			metrics.MerchantCredits.WithLabelValues(CreditOutcomeDuplicate).Inc()
			logger.Info("并发入账已被其它请求完成")
			result.Outcome = CreditOutcomeDuplicate
			return result, nil
		}
		metrics.MerchantCredits.WithLabelValues("error").Inc()
		return nil, err
	}

	result.Outcome = CreditOutcomeCredited
	metrics.MerchantCredits.WithLabelValues(CreditOutcomeCredited).Inc()
	logger.WithFields(logrus.Fields{"gross": gross.String(), "net": net.String()}).Info("订单结算入账成功")

	s.notifier.SendCategory(ctx, merchantRecipient(merchantID), "订单结算到账",
		fmt.Sprintf("订单 %s 结算 %s 元已到账", orderNumber, net.StringFixed(2)), model.SourceOrder)
	return result, nil
}

// RequestWithdrawal 申请提现，available 不足（包括并发扣减导致的不足）返回 InsufficientBalanceError
func (s *MerchantWalletService) RequestWithdrawal(ctx context.Context, merchantID string, amount decimal.Decimal) (*model.MerchantWalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	wallet, err := s.walletRepo.GetByMerchantID(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if wallet.Available.LessThan(amount) {
		return nil, &InsufficientBalanceError{
			Subject:   "merchant:" + merchantID,
			Available: wallet.Available.StringFixed(2),
			Requested: amount.StringFixed(2),
		}
	}

	now := s.clock.Now()
	txn := &model.MerchantWalletTransaction{
		TransactionNo: idgen.GenerateWithdrawalNo(),
		WalletID:      wallet.ID,
		MerchantID:    merchantID,
		Type:          model.MerchantTxWithdrawal,
		Amount:        amount,
		NetAmount:     amount,
		Status:        model.MerchantTxStatusPending,
		Description:   "提现申请",
		CreatedAt:     now,
	}
	if err := s.walletRepo.RequestWithdrawal(ctx, txn); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"merchant_id":   merchantID,
		"withdrawal_no": txn.TransactionNo,
		"amount":        amount.String(),
	}).Info("提现申请成功")
	return txn, nil
}

// ProcessWithdrawal 打款完成
func (s *MerchantWalletService) ProcessWithdrawal(ctx context.Context, withdrawalNo, reference string) (*model.MerchantWalletTransaction, error) {
	txn, err := s.walletRepo.CompleteWithdrawal(ctx, withdrawalNo, reference, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.notifier.Send(ctx, merchantRecipient(txn.MerchantID), "提现成功",
		fmt.Sprintf("提现 %s 元已打款", txn.Amount.StringFixed(2)))
	logrus.WithFields(logrus.Fields{"merchant_id": txn.MerchantID, "withdrawal_no": withdrawalNo}).Info("提现完成")
	return txn, nil
}

// RejectWithdrawal 驳回提现，冻结金额退回可用余额
func (s *MerchantWalletService) RejectWithdrawal(ctx context.Context, withdrawalNo, reason string) (*model.MerchantWalletTransaction, error) {
	txn, err := s.walletRepo.RejectWithdrawal(ctx, withdrawalNo, reason, s.clock.Now())
	if err != nil {
		return nil, err
	}
	s.notifier.Send(ctx, merchantRecipient(txn.MerchantID), "提现被驳回", reason)
	logrus.WithFields(logrus.Fields{"merchant_id": txn.MerchantID, "withdrawal_no": withdrawalNo}).Info("提现驳回")
	return txn, nil
}

// AwardBrandedCoins 商户向用户发放品牌币
// 先扣商户余额，再写用户 brandedAward 流水；流水失败时退回商户余额
func (s *MerchantWalletService) AwardBrandedCoins(ctx context.Context, merchantID, merchantLabel, accountID string, coins int64) (*model.LedgerEntry, error) {
	if coins <= 0 {
		return nil, ErrInvalidAmount
	}

	wallet, err := s.walletRepo.GetByMerchantID(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	cost := CoinsToMoney(coins)
	if wallet.Available.LessThan(cost) {
		return nil, &InsufficientBalanceError{
			Subject:   "merchant:" + merchantID,
			Available: wallet.Available.StringFixed(2),
			Requested: cost.StringFixed(2),
		}
	}
	now := s.clock.Now()
	debit := &model.MerchantWalletTransaction{
		TransactionNo: idgen.GenerateCoinAwardNo(),
		WalletID:      wallet.ID,
		MerchantID:    merchantID,
		Type:          model.MerchantTxDebit,
		Amount:        cost,
		NetAmount:     cost,
		Status:        model.MerchantTxStatusCompleted,
		Description:   fmt.Sprintf("发放品牌币 %d 给 %s", coins, accountID),
		Reference:     accountID,
		ProcessedAt:   &now,
		CreatedAt:     now,
	}
	if err := s.walletRepo.DebitCoinAward(ctx, debit); err != nil {
		return nil, err
	}

	entry, err := s.ledger.Append(ctx, &AppendRequest{
		AccountID:   accountID,
		Kind:        model.EntryKindBrandedAward,
		Amount:      coins,
		Source:      model.SourceMerchant,
		Description: fmt.Sprintf("%s 品牌币", merchantLabel),
		Metadata: model.EntryMetadata{
			MerchantID:    merchantID,
			MerchantLabel: merchantLabel,
			ReferenceID:   debit.TransactionNo,
		},
	})
	if err != nil {
		reversal := &model.MerchantWalletTransaction{
			TransactionNo: idgen.GenerateCoinAwardNo(),
			WalletID:      wallet.ID,
			MerchantID:    merchantID,
			Type:          model.MerchantTxAdjustment,
			Amount:        cost,
			NetAmount:     cost,
			Status:        model.MerchantTxStatusCompleted,
			Description:   "品牌币发放失败退回",
			Reference:     debit.TransactionNo,
			ProcessedAt:   &now,
			CreatedAt:     now,
		}
		if rerr := s.walletRepo.ReverseCoinAward(ctx, reversal); rerr != nil {
			logrus.WithError(rerr).WithFields(logrus.Fields{
				"merchant_id": merchantID,
				"debit_no":    debit.TransactionNo,
			}).Error("品牌币发放失败且退回商户余额失败，需要人工处理")
		}
		return nil, fmt.Errorf("写入品牌币流水失败: %w", err)
	}

	s.notifier.SendCategory(ctx, accountID, "获得品牌币",
		fmt.Sprintf("%s 赠送你 %d 品牌币", merchantLabel, coins), model.SourceMerchant)
	return entry, nil
}

func merchantRecipient(merchantID string) string {
	return "merchant:" + merchantID
}
