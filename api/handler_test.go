package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"expenseledger/service"
	"expenseledger/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	store    *store.MemoryStore
	rollup   *service.RollupEngine
	expenses *service.ExpenseService
	router   *gin.Engine
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)
	s := store.NewMemoryStore(1, 2)
	rollup := service.NewRollupEngine(s, s)
	coord := service.NewCoordinator(service.NewApplier(s, 0), rollup, nil, 2)
	expenses := service.NewExpenseService(s, rollup)

	r := gin.New()
	v1 := r.Group("/api/v1")

	rh := NewReconcileHandler(coord)
	v1.POST("/transactions", rh.Submit)
	v1.POST("/transactions/single", rh.SubmitOne)

	eh := NewExpenseHandler(expenses)
	v1.POST("/expenses", eh.Create)
	v1.GET("/expenses/:id", eh.Get)
	v1.PUT("/expenses/:id", eh.Update)
	v1.DELETE("/expenses/:id", eh.Delete)
	v1.GET("/expenses/:id/transactions", eh.Transactions)

	sh := NewSummaryHandler(rollup)
	v1.GET("/summaries", sh.List)
	v1.GET("/categories/:id/summaries/:period", sh.Get)
	v1.POST("/categories/:id/summaries/:period/rebuild", sh.Rebuild)
	v1.GET("/categories/:id/summaries/:period/verify", sh.Verify)

	return &testServer{store: s, rollup: rollup, expenses: expenses, router: r}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// decode 解析响应信封，data 写入 out
func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

// createExpense 通过接口登记支出并返回ID
func (ts *testServer) createExpense(t *testing.T, categoryID uint, amount, budget, due string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/expenses", gin.H{
		"category_id": categoryID,
		"amount":      amount,
		"budget":      budget,
		"due_date":    due,
		"vendor":      "物业公司",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var exp struct {
		ID string `json:"id"`
	}
	decode(t, w, &exp)
	require.NotEmpty(t, exp.ID)
	return exp.ID
}

func tx(id, expenseID, amount, date string) gin.H {
	return gin.H{
		"id":             id,
		"expense_id":     expenseID,
		"amount":         amount,
		"payment_method": "Bank Transfer",
		"status":         "COMPLETED",
		"date":           date,
	}
}
