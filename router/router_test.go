package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expenseledger/api"
	"expenseledger/config"
	"expenseledger/middleware"
	"expenseledger/service"
	"expenseledger/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandlers() Handlers {
	s := store.NewMemoryStore(1)
	rollup := service.NewRollupEngine(s, s)
	coord := service.NewCoordinator(service.NewApplier(s, 0), rollup, nil, 1)
	return Handlers{
		Reconcile: api.NewReconcileHandler(coord),
		Expense:   api.NewExpenseHandler(service.NewExpenseService(s, rollup)),
		Summary:   api.NewSummaryHandler(rollup),
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: "test"},
		Reconcile: config.ReconcileConfig{SubmitRateLimit: 2, SubmitRateWindow: time.Minute},
	}
}

func serve(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_HealthAndCORS(t *testing.T) {
	r := SetupRouter(testConfig(), testHandlers())

	w := serve(r, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, "OPTIONS", "/api/v1/transactions", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// 内存驱动不注册类别管理
	w = serve(r, "GET", "/api/v1/categories", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetupRouter_SubmitRateLimit(t *testing.T) {
	r := SetupRouter(testConfig(), testHandlers())

	for i := 0; i < 2; i++ {
		w := serve(r, "POST", "/api/v1/transactions", `{"transactions":[]}`, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	w := serve(r, "POST", "/api/v1/transactions", `{"transactions":[]}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// 其他接口不受提交限流影响
	w = serve(r, "GET", "/api/v1/expenses/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetupRouter_JWT(t *testing.T) {
	cfg := testConfig()
	cfg.JWT = config.JWTConfig{Secret: "router-test-secret-key"}
	middleware.InitJWT(cfg)
	r := SetupRouter(cfg, testHandlers())

	w := serve(r, "GET", "/api/v1/expenses/missing", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := middleware.GenerateToken("ops", time.Hour)
	require.NoError(t, err)
	w = serve(r, "GET", "/api/v1/expenses/missing", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 健康检查无需鉴权
	w = serve(r, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRouter_SwaggerDoc(t *testing.T) {
	r := SetupRouter(testConfig(), testHandlers())

	w := serve(r, "GET", "/swagger/doc.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/transactions")
	assert.Contains(t, w.Body.String(), "支出对账 API")
}
