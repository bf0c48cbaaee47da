package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 差异类型
const (
	DiscrepancyCashbackLedger  = "cashback_ledger_mismatch"
	DiscrepancyWalletCashback  = "wallet_cashback_mismatch"
	DiscrepancyOrderPayment    = "order_payment_mismatch"
	DiscrepancyMerchantRevenue = "merchant_revenue_mismatch"
)

// 差异严重程度
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Discrepancy 一条对账差异
type Discrepancy struct {
	AccountID  string          `json:"account_id"`
	Type       string          `json:"type"`
	Expected   decimal.Decimal `json:"expected"`
	Actual     decimal.Decimal `json:"actual"`
	Difference decimal.Decimal `json:"difference"`
	Severity   string          `json:"severity"`
}

// ReconciliationSummary 汇总信息
type ReconciliationSummary struct {
	TotalDiscrepancies int             `json:"total_discrepancies"`
	BySeverity         map[string]int  `json:"by_severity"`
	ByType             map[string]int  `json:"by_type"`
	TotalDifference    decimal.Decimal `json:"total_difference"`
	ChecksRun          []string        `json:"checks_run"`
}

// ReconciliationResult 每次对账重新生成，不修改，按天保存有限时间
type ReconciliationResult struct {
	RunID           string                `json:"run_id"`
	Discrepancies   []Discrepancy         `json:"discrepancies"`
	AccountsChecked int                   `json:"accounts_checked"`
	Duration        time.Duration         `json:"duration"`
	Timestamp       time.Time             `json:"timestamp"`
	Summary         ReconciliationSummary `json:"summary"`
}
