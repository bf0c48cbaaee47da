package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rewardledger/internal/infrastructure/lock"
	"rewardledger/internal/job"
	"rewardledger/internal/service"
	"rewardledger/internal/testutil"
	"rewardledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *redis.Client) {
	t.Helper()
	db := testutil.NewDB(t)
	_, redisClient := testutil.NewRedis(t)
	cfg := testutil.NewConfig()
	svcs := service.NewServices(db, redisClient, cfg, testutil.NewClock())
	return SetupRouter(cfg, svcs, job.NewScheduler(redisClient)), redisClient
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body interface{}) apiResponse {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRouter_GrantAndBalance(t *testing.T) {
	r, _ := newTestRouter(t)
	grant := gin.H{"account_id": "u1", "action": "checkin", "reference_id": "2025-01-15"}

	resp := doRequest(t, r, http.MethodPost, "/api/v1/rewards/grant", grant)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var result service.GrantResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, service.GrantStatusCredited, result.Status)
	assert.Equal(t, int64(10), result.CoinsAwarded)

	resp = doRequest(t, r, http.MethodPost, "/api/v1/rewards/grant", grant)
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, service.GrantStatusDuplicate, result.Status)

	resp = doRequest(t, r, http.MethodGet, "/api/v1/ledger/balance?account_id=u1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var balance struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &balance))
	assert.Equal(t, int64(10), balance.Balance)
}

func TestRouter_RewardActions(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := doRequest(t, r, http.MethodGet, "/api/v1/rewards/actions", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var actions []service.RewardAction
	require.NoError(t, json.Unmarshal(resp.Data, &actions))
	require.Len(t, actions, 6)
	assert.Equal(t, "checkin", actions[0].Action)
	assert.False(t, actions[0].RequiresModeration)
}

func TestRouter_OrderLookupByRequestID(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := doRequest(t, r, http.MethodPost, "/api/v1/order/create", gin.H{
		"request_id":   "req-1",
		"account_id":   "u1",
		"merchant_id":  "m1",
		"store_id":     "s1",
		"total_amount": "12.50",
	})
	require.Equal(t, response.CodeSuccess, resp.Code)
	var created struct {
		OrderNo string `json:"order_no"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))

	resp = doRequest(t, r, http.MethodGet, "/api/v1/order/detail?request_id=req-1", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)
	var found struct {
		OrderNo string `json:"order_no"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &found))
	assert.Equal(t, created.OrderNo, found.OrderNo)

	resp = doRequest(t, r, http.MethodGet, "/api/v1/order/detail", nil)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestRouter_ErrorCodes(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := doRequest(t, r, http.MethodGet, "/api/v1/ledger/balance", nil)
	assert.Equal(t, response.CodeParamError, resp.Code)

	resp = doRequest(t, r, http.MethodPost, "/api/v1/rewards/grant", gin.H{"account_id": "u1", "action": "dance", "reference_id": "x"})
	assert.Equal(t, response.CodeUnknownRewardAction, resp.Code)

	resp = doRequest(t, r, http.MethodGet, "/api/v1/order/detail?order_no=missing", nil)
	assert.Equal(t, response.CodeOrderNotFound, resp.Code)

	resp = doRequest(t, r, http.MethodGet, "/api/v1/admin/reconciliation/latest", nil)
	assert.Equal(t, response.CodeRecordNotFound, resp.Code)
}

func TestRouter_ReconciliationRespectsJobLock(t *testing.T) {
	r, redisClient := newTestRouter(t)

	resp := doRequest(t, r, http.MethodPost, "/api/v1/admin/reconciliation/run", nil)
	require.Equal(t, response.CodeSuccess, resp.Code)

	held := lock.NewJobLock(redisClient, job.JobReconciliation, time.Minute)
	ok, err := held.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	resp = doRequest(t, r, http.MethodPost, "/api/v1/admin/reconciliation/run", nil)
	assert.Equal(t, response.CodeJobLocked, resp.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_request_duration_seconds"))
}
