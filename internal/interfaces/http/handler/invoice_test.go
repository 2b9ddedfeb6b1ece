package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/persistence/memory"
	"github.com/erp/invoicing/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var defaultTenant = uuid.MustParse("00000000-0000-0000-0000-000000000001")

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
	Meta *struct {
		Total int64 `json:"total"`
	} `json:"meta"`
}

type testServer struct {
	engine *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	log := zap.NewNop()
	orchestrator := appinvoicing.NewOrchestrator(appinvoicing.Dependencies{
		Invoices:       store.Invoices(),
		Items:          store.Items(),
		Stock:          appinvoicing.NewStockLedgerSynchronizer(store.StockMovements(), log),
		Warranty:       appinvoicing.NewWarrantyRegistrar(store.Warranties(), log),
		Ledger:         appinvoicing.NewAccountsLedgerBridge(store.Ledger(), log),
		Reconciliation: store.Reconciliation(),
		Catalog:        store.Catalog(),
		Logger:         log,
	})
	queries := appinvoicing.NewQueryService(store.Invoices(), store.StockMovements(), store.Warranties(),
		store.Ledger(), store.Reconciliation())

	engine, err := router.NewEngine(router.EngineConfig{Logger: log, DefaultTenant: defaultTenant, MaxBodySize: 1 << 20})
	require.NoError(t, err)
	router.NewRouter(engine).
		Register(NewSystemHandler(nil)).
		Register(NewInvoiceHandler(orchestrator, queries)).
		Setup()

	return &testServer{engine: engine, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

// scenarioBody is 3 @ 100 + 1 @ 50 paid 200 up front
func scenarioBody() map[string]any {
	return map[string]any{
		"customer_id":       uuid.NewString(),
		"customer_name":     "Asha Traders",
		"payment_status":    "partial",
		"amount_paid":       "200",
		"payment_method":    "cash",
		"warranty_provided": true,
		"items": []map[string]any{
			{"product_id": uuid.NewString(), "product_name": "Drill", "quantity": "3", "unit_price": "100", "serial_number": "DR-1", "warranty_months": 12},
			{"product_id": uuid.NewString(), "product_name": "Bits", "quantity": "1", "unit_price": "50"},
		},
	}
}

func createInvoice(t *testing.T, s *testServer, body map[string]any, headers ...string) appinvoicing.OutcomeResponse {
	t.Helper()
	w, resp := s.do(t, http.MethodPost, "/api/v1/invoices", body, headers...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var outcome appinvoicing.OutcomeResponse
	require.NoError(t, json.Unmarshal(resp.Data, &outcome))
	require.NotNil(t, outcome.Invoice)
	return outcome
}

func TestInvoiceHandler_Create(t *testing.T) {
	t.Run("creates invoice and reports every stage", func(t *testing.T) {
		s := newTestServer(t)
		outcome := createInvoice(t, s, scenarioBody())

		assert.Equal(t, "complete", outcome.State)
		assert.Empty(t, outcome.Warnings)
		assert.Equal(t, "350", outcome.Invoice.TotalAmount.String())
		assert.Equal(t, "partial", outcome.Invoice.PaymentStatus)
		assert.NotEmpty(t, outcome.Invoice.InvoiceNumber)
		assert.Equal(t, defaultTenant, outcome.Invoice.TenantID)
		for _, step := range outcome.Steps {
			assert.NotEqual(t, "failed", step.Status, step.Stage)
		}
	})

	t.Run("rejects empty items", func(t *testing.T) {
		s := newTestServer(t)
		body := scenarioBody()
		body["items"] = []map[string]any{}

		w, resp := s.do(t, http.MethodPost, "/api/v1/invoices", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "ERR_VALIDATION", resp.Error.Code)
		require.NotEmpty(t, resp.Error.Details)
		assert.Equal(t, "items", resp.Error.Details[0].Field)
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		s := newTestServer(t)
		body := scenarioBody()
		body["items"].([]map[string]any)[1]["quantity"] = "0"

		w, resp := s.do(t, http.MethodPost, "/api/v1/invoices", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "items[1].quantity", resp.Error.Details[0].Field)
	})

	t.Run("rejects partial payment above total", func(t *testing.T) {
		s := newTestServer(t)
		body := scenarioBody()
		body["amount_paid"] = "400"

		w, resp := s.do(t, http.MethodPost, "/api/v1/invoices", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_VALIDATION", resp.Error.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		s := newTestServer(t)
		w, resp := s.do(t, http.MethodPost, "/api/v1/invoices", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_INVALID_JSON", resp.Error.Code)
	})
}

func TestInvoiceHandler_ReadPaths(t *testing.T) {
	s := newTestServer(t)
	outcome := createInvoice(t, s, scenarioBody())
	id := outcome.Invoice.ID.String()

	t.Run("get", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/api/v1/invoices/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var inv appinvoicing.InvoiceResponse
		require.NoError(t, json.Unmarshal(resp.Data, &inv))
		assert.Len(t, inv.Items, 2)
	})

	t.Run("get by number", func(t *testing.T) {
		w, _ := s.do(t, http.MethodGet, "/api/v1/invoices/number/"+outcome.Invoice.InvoiceNumber, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/api/v1/invoices/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "ERR_NOT_FOUND", resp.Error.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w, _ := s.do(t, http.MethodGet, "/api/v1/invoices/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("other tenant cannot see it", func(t *testing.T) {
		w, _ := s.do(t, http.MethodGet, "/api/v1/invoices/"+id, nil, "X-Tenant-ID", uuid.NewString())
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed tenant header", func(t *testing.T) {
		w, _ := s.do(t, http.MethodGet, "/api/v1/invoices/"+id, nil, "X-Tenant-ID", "tenant-1")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list filters by status", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/api/v1/invoices?status=partial", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(1), resp.Meta.Total)

		w, resp = s.do(t, http.MethodGet, "/api/v1/invoices?payment_status=paid", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(0), resp.Meta.Total)

		w, _ = s.do(t, http.MethodGet, "/api/v1/invoices?status=settled", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("stock movements mirror items", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/api/v1/invoices/"+id+"/stock-movements", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var movements []appinvoicing.StockMovementResponse
		require.NoError(t, json.Unmarshal(resp.Data, &movements))
		assert.Len(t, movements, 2)
	})

	t.Run("warranties only for items with months", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/api/v1/invoices/"+id+"/warranties", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var records []appinvoicing.WarrantyResponse
		require.NoError(t, json.Unmarshal(resp.Data, &records))
		assert.Len(t, records, 1)
	})

	t.Run("product stock", func(t *testing.T) {
		productID := outcome.Invoice.Items[0].ProductID.String()
		w, resp := s.do(t, http.MethodGet, "/api/v1/products/"+productID+"/stock", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var level appinvoicing.StockLevelResponse
		require.NoError(t, json.Unmarshal(resp.Data, &level))
		assert.Equal(t, "-3", level.OnHand.String())
	})
}

func TestInvoiceHandler_PaymentFlow(t *testing.T) {
	s := newTestServer(t)
	outcome := createInvoice(t, s, scenarioBody())
	base := "/api/v1/invoices/" + outcome.Invoice.ID.String()

	t.Run("overpayment rejected", func(t *testing.T) {
		w, resp := s.do(t, http.MethodPost, base+"/payments", map[string]any{"amount": "151", "method": "cash"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "ERR_VALIDATION", resp.Error.Code)
	})

	t.Run("zero amount rejected by binding", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, base+"/payments", map[string]any{"amount": "0"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("remaining balance settles the invoice", func(t *testing.T) {
		w, resp := s.do(t, http.MethodPost, base+"/payments", map[string]any{"amount": "150", "method": "card"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var paid appinvoicing.OutcomeResponse
		require.NoError(t, json.Unmarshal(resp.Data, &paid))
		assert.Equal(t, "paid", paid.Invoice.PaymentStatus)
		assert.Equal(t, "350", paid.Invoice.AmountPaid.String())
	})

	t.Run("ledger shows one active settled entry", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, base+"/ledger", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var ledger appinvoicing.LedgerResponse
		require.NoError(t, json.Unmarshal(resp.Data, &ledger))
		assert.Equal(t, "350", ledger.PaymentsTotal.String())

		active := 0
		for _, e := range ledger.Entries {
			if e.Status == "active" {
				active++
				assert.Equal(t, "settled", e.EntryType)
			}
		}
		assert.Equal(t, 1, active)
	})
}

func TestInvoiceHandler_UpdateAndDelete(t *testing.T) {
	s := newTestServer(t)
	body := scenarioBody()
	outcome := createInvoice(t, s, body)
	base := "/api/v1/invoices/" + outcome.Invoice.ID.String()

	t.Run("edit drops the second item", func(t *testing.T) {
		body["items"] = body["items"].([]map[string]any)[:1]
		body["amount_paid"] = "100"
		w, resp := s.do(t, http.MethodPut, base, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var updated appinvoicing.OutcomeResponse
		require.NoError(t, json.Unmarshal(resp.Data, &updated))
		assert.Equal(t, "300", updated.Invoice.TotalAmount.String())
		assert.Equal(t, outcome.Invoice.InvoiceNumber, updated.Invoice.InvoiceNumber)

		w, resp = s.do(t, http.MethodGet, base+"/stock-movements", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var movements []appinvoicing.StockMovementResponse
		require.NoError(t, json.Unmarshal(resp.Data, &movements))
		require.Len(t, movements, 1)
		assert.Equal(t, "-3", movements[0].Quantity.String())
	})

	t.Run("reconcile rejects unknown stage", func(t *testing.T) {
		w, _ := s.do(t, http.MethodPost, base+"/reconcile", map[string]any{"stage": "invoice"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("reconcile re-runs stock", func(t *testing.T) {
		w, resp := s.do(t, http.MethodPost, base+"/reconcile", map[string]any{"stage": "stock"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var reconciled appinvoicing.OutcomeResponse
		require.NoError(t, json.Unmarshal(resp.Data, &reconciled))
		assert.Equal(t, "reconcile", reconciled.Operation)
	})

	t.Run("delete removes the invoice", func(t *testing.T) {
		w, resp := s.do(t, http.MethodDelete, base, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var deleted appinvoicing.OutcomeResponse
		require.NoError(t, json.Unmarshal(resp.Data, &deleted))
		assert.Nil(t, deleted.Invoice)

		w, _ = s.do(t, http.MethodGet, base, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		w, _ = s.do(t, http.MethodDelete, base, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("no open reconciliations", func(t *testing.T) {
		w, resp := s.do(t, http.MethodGet, "/api/v1/reconciliations?status=open", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", string(resp.Data))
	})
}

type fakePinger struct{ err error }

func (p fakePinger) Ping() error { return p.err }

func TestSystemHandler_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		db     Pinger
		status int
	}{
		{"memory driver", nil, http.StatusOK},
		{"database up", fakePinger{}, http.StatusOK},
		{"database down", fakePinger{err: assert.AnError}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			router.NewRouter(engine).Register(NewSystemHandler(tt.db)).Setup()

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
