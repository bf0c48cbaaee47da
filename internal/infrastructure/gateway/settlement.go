package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"rewardledger/internal/config"

	"github.com/cenkalti/backoff/v4"
)

// ErrExternalOracleUnavailable 支付网关查询失败，下一轮定时任务会重试
var ErrExternalOracleUnavailable = errors.New("支付网关不可用")

// 网关返回的支付状态
const (
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
	PaymentStatusPending = "pending"
)

// StatusProvider 查询订单在支付网关侧的真实状态，结果不可完全信任
type StatusProvider interface {
	PaymentStatus(ctx context.Context, orderNo string) (string, error)
}

type statusResponse struct {
	OrderNo string `json:"order_no"`
	Status  string `json:"status"`
}

// HTTPStatusProvider 通过 HTTP 查询网关，带指数退避重试
type HTTPStatusProvider struct {
	baseURL      string
	client       *http.Client
	buildBackoff func() backoff.BackOff
}

func NewHTTPStatusProvider(cfg *config.GatewayConfig) *HTTPStatusProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPStatusProvider{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		buildBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 3 * time.Second
			return b
		},
	}
}

func (p *HTTPStatusProvider) PaymentStatus(ctx context.Context, orderNo string) (string, error) {
	endpoint := fmt.Sprintf("%s/payments/%s/status", p.baseURL, url.PathEscape(orderNo))

	var status string
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("网关返回 %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("网关返回 %d", resp.StatusCode))
		}

		var body statusResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("解析网关响应失败: %w", err))
		}
		switch body.Status {
		case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusPending:
			status = body.Status
			return nil
		default:
			return backoff.Permanent(fmt.Errorf("未知支付状态: %q", body.Status))
		}
	}

	if err := backoff.Retry(op, backoff.WithContext(p.buildBackoff(), ctx)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalOracleUnavailable, err)
	}
	return status, nil
}
