package handler

import (
	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// InvoiceHandler serves the invoice lifecycle and its derived records
type InvoiceHandler struct {
	BaseHandler
	orchestrator *appinvoicing.Orchestrator
	queries      *appinvoicing.QueryService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(orchestrator *appinvoicing.Orchestrator, queries *appinvoicing.QueryService) *InvoiceHandler {
	return &InvoiceHandler{
		orchestrator: orchestrator,
		queries:      queries,
	}
}

// Create godoc
//
//	@ID				createInvoice
//	@Summary		Create an invoice
//	@Description	Validate and price the draft, issue an invoice number, persist the invoice and its items, then sync stock, warranty and ledger. Failed downstream stages come back as warnings.
//	@Tags			invoices
//	@Accept			json
//	@Produce		json
//	@Param			X-Tenant-ID	header		string							false	"Tenant ID"
//	@Param			request		body		appinvoicing.InvoiceRequest		true	"Invoice draft"
//	@Success		201			{object}	APIResponse[appinvoicing.OutcomeResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req appinvoicing.InvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	outcome, err := h.orchestrator.Create(c.Request.Context(), h.TenantID(c), req.ToDraft())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, appinvoicing.ToOutcomeResponse(outcome))
}

// List godoc
//
//	@ID				listInvoices
//	@Summary		List invoices
//	@Description	Page through invoices, searching by number or customer and filtering by payment status
//	@Tags			invoices
//	@Produce		json
//	@Param			X-Tenant-ID		header		string	false	"Tenant ID"
//	@Param			page			query		int		false	"Page number"	default(1)
//	@Param			page_size		query		int		false	"Page size"		default(20)
//	@Param			search			query		string	false	"Invoice number or customer name"
//	@Param			payment_status	query		string	false	"Payment status"	Enums(pending, partial, paid, cancelled)
//	@Param			status			query		string	false	"Alias of payment_status"
//	@Param			customer_id		query		string	false	"Customer ID"	format(uuid)
//	@Param			order_by		query		string	false	"Sort column"	Enums(created_at, issued_at, invoice_number, total_amount)
//	@Param			order_dir		query		string	false	"Sort direction"	Enums(asc, desc)
//	@Success		200				{object}	APIResponse[[]appinvoicing.InvoiceListItemResponse]
//	@Failure		400				{object}	ErrorResponse
//	@Router			/invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	var filter appinvoicing.InvoiceListFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	if filter.PaymentStatus == "" {
		if status := c.Query("status"); status != "" {
			if !invoicing.PaymentStatus(status).IsValid() {
				h.BadRequest(c, "status must be one of pending, partial, paid, cancelled")
				return
			}
			filter.PaymentStatus = status
		}
	}

	page, err := h.queries.List(c.Request.Context(), h.TenantID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get godoc
//
//	@ID				getInvoice
//	@Summary		Get an invoice
//	@Tags			invoices
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	false	"Tenant ID"
//	@Param			id			path		string	true	"Invoice ID"	format(uuid)
//	@Success		200			{object}	APIResponse[appinvoicing.InvoiceResponse]
//	@Failure		404			{object}	ErrorResponse
//	@Router			/invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.queries.Get(c.Request.Context(), h.TenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// GetByNumber godoc
//
//	@ID				getInvoiceByNumber
//	@Summary		Get an invoice by number
//	@Tags			invoices
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	false	"Tenant ID"
//	@Param			number		path		string	true	"Invoice number"
//	@Success		200			{object}	APIResponse[appinvoicing.InvoiceResponse]
//	@Failure		404			{object}	ErrorResponse
//	@Router			/invoices/number/{number} [get]
func (h *InvoiceHandler) GetByNumber(c *gin.Context) {
	inv, err := h.queries.GetByNumber(c.Request.Context(), h.TenantID(c), c.Param("number"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inv)
}

// Update godoc
//
//	@ID				updateInvoice
//	@Summary		Edit an invoice
//	@Description	Replace the invoice's items and payment state, then resync stock, warranty and ledger
//	@Tags			invoices
//	@Accept			json
//	@Produce		json
//	@Param			X-Tenant-ID	header		string						false	"Tenant ID"
//	@Param			id			path		string						true	"Invoice ID"	format(uuid)
//	@Param			request		body		appinvoicing.InvoiceRequest	true	"Full invoice state"
//	@Success		200			{object}	APIResponse[appinvoicing.OutcomeResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Router			/invoices/{id} [put]
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req appinvoicing.InvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	outcome, err := h.orchestrator.Update(c.Request.Context(), h.TenantID(c), id, req.ToDraft())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appinvoicing.ToOutcomeResponse(outcome))
}

// Delete godoc
//
//	@ID				deleteInvoice
//	@Summary		Delete an invoice
//	@Description	Remove items, warranty records, stock movements and the invoice, then reverse its ledger
//	@Tags			invoices
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	false	"Tenant ID"
//	@Param			id			path		string	true	"Invoice ID"	format(uuid)
//	@Success		200			{object}	APIResponse[appinvoicing.OutcomeResponse]
//	@Failure		404			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Router			/invoices/{id} [delete]
func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	outcome, err := h.orchestrator.Delete(c.Request.Context(), h.TenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appinvoicing.ToOutcomeResponse(outcome))
}

// RecordPayment godoc
//
//	@ID				recordInvoicePayment
//	@Summary		Record a payment
//	@Description	Apply money received against the outstanding balance and append the payment to the ledger
//	@Tags			invoices
//	@Accept			json
//	@Produce		json
//	@Param			X-Tenant-ID	header		string								false	"Tenant ID"
//	@Param			id			path		string								true	"Invoice ID"	format(uuid)
//	@Param			request		body		appinvoicing.RecordPaymentRequest	true	"Payment"
//	@Success		200			{object}	APIResponse[appinvoicing.OutcomeResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/invoices/{id}/payments [post]
func (h *InvoiceHandler) RecordPayment(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req appinvoicing.RecordPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	outcome, err := h.orchestrator.RecordPayment(c.Request.Context(), h.TenantID(c), id, req.Amount, req.Method)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appinvoicing.ToOutcomeResponse(outcome))
}

// Reconcile godoc
//
//	@ID				reconcileInvoice
//	@Summary		Re-run a sync stage
//	@Description	Rebuild one derived record set from the invoice's current state and resolve its open gaps
//	@Tags			reconciliation
//	@Accept			json
//	@Produce		json
//	@Param			X-Tenant-ID	header		string							false	"Tenant ID"
//	@Param			id			path		string							true	"Invoice ID"	format(uuid)
//	@Param			request		body		appinvoicing.ReconcileRequest	true	"Stage"
//	@Success		200			{object}	APIResponse[appinvoicing.OutcomeResponse]
//	@Failure		400			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/invoices/{id}/reconcile [post]
func (h *InvoiceHandler) Reconcile(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req appinvoicing.ReconcileRequest
	if !h.BindJSON(c, &req) {
		return
	}

	outcome, err := h.orchestrator.Reconcile(c.Request.Context(), h.TenantID(c), id, invoicing.Stage(req.Stage))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appinvoicing.ToOutcomeResponse(outcome))
}

// StockMovements godoc
//
//	@ID				listInvoiceStockMovements
//	@Summary		List an invoice's stock movements
//	@Tags			invoices
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	false	"Tenant ID"
//	@Param			id			path		string	true	"Invoice ID"	format(uuid)
//	@Success		200			{object}	APIResponse[[]appinvoicing.StockMovementResponse]
//	@Failure		404			{object}	ErrorResponse
//	@Router			/invoices/{id}/stock-movements [get]
func (h *InvoiceHandler) StockMovements(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	movements, err := h.queries.StockMovements(c.Request.Context(), h.TenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, movements)
}

// Warranties godoc
//
//	@ID				listInvoiceWarranties
//	@Summary		List an invoice's warranty records
//	@Tags			invoices
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	false	"Tenant ID"
//	@Param			id			path		string	true	"Invoice ID"	format(uuid)
//	@Success		200			{object}	APIResponse[[]appinvoicing.WarrantyResponse]
//	@Failure		404			{object}	ErrorResponse
//	@Router			/invoices/{id}/warranties [get]
func (h *InvoiceHandler) Warranties(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	records, err := h.queries.Warranties(c.Request.Context(), h.TenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, records)
}

// Ledger godoc
//
//	@ID				getInvoiceLedger
//	@Summary		Get an invoice's ledger
//	@Description	Ledger entries and payments, including those of deleted invoices
//	@Tags			invoices
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	false	"Tenant ID"
//	@Param			id			path		string	true	"Invoice ID"	format(uuid)
//	@Success		200			{object}	APIResponse[appinvoicing.LedgerResponse]
//	@Failure		404			{object}	ErrorResponse
//	@Router			/invoices/{id}/ledger [get]
func (h *InvoiceHandler) Ledger(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	ledger, err := h.queries.Ledger(c.Request.Context(), h.TenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ledger)
}

// StockOnHand godoc
//
//	@ID				getProductStock
//	@Summary		Get a product's on-hand quantity
//	@Tags			stock
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	false	"Tenant ID"
//	@Param			id			path		string	true	"Product ID"	format(uuid)
//	@Success		200			{object}	APIResponse[appinvoicing.StockLevelResponse]
//	@Router			/products/{id}/stock [get]
func (h *InvoiceHandler) StockOnHand(c *gin.Context) {
	id, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	level, err := h.queries.StockOnHand(c.Request.Context(), h.TenantID(c), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, level)
}

// ReconciliationListRequest pages through reconciliation gaps
type ReconciliationListRequest struct {
	Status   string `form:"status" binding:"omitempty,oneof=open"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// OpenGaps godoc
//
//	@ID				listReconciliations
//	@Summary		List reconciliation gaps
//	@Description	Open gaps left by failed downstream syncs, oldest first
//	@Tags			reconciliation
//	@Produce		json
//	@Param			X-Tenant-ID	header		string	false	"Tenant ID"
//	@Param			status		query		string	false	"Gap status"	Enums(open)
//	@Param			page		query		int		false	"Page number"	default(1)
//	@Param			page_size	query		int		false	"Page size"		default(20)
//	@Success		200			{object}	APIResponse[[]invoicing.ReconciliationGap]
//	@Router			/reconciliations [get]
func (h *InvoiceHandler) OpenGaps(c *gin.Context) {
	var req ReconciliationListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter := defaultGapFilter(req)

	gaps, err := h.queries.OpenGaps(c.Request.Context(), h.TenantID(c), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gaps)
}

// defaultGapFilter turns the query into a domain filter with paging defaults
func defaultGapFilter(req ReconciliationListRequest) shared.Filter {
	filter := shared.DefaultFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	return filter
}

// RegisterRoutes mounts the invoice routes on the versioned API group
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	invoices := rg.Group("/invoices")
	invoices.POST("", h.Create)
	invoices.GET("", h.List)
	invoices.GET("/number/:number", h.GetByNumber)
	invoices.GET("/:id", h.Get)
	invoices.PUT("/:id", h.Update)
	invoices.DELETE("/:id", h.Delete)
	invoices.POST("/:id/payments", h.RecordPayment)
	invoices.POST("/:id/reconcile", h.Reconcile)
	invoices.GET("/:id/stock-movements", h.StockMovements)
	invoices.GET("/:id/warranties", h.Warranties)
	invoices.GET("/:id/ledger", h.Ledger)

	rg.GET("/reconciliations", h.OpenGaps)
	rg.GET("/products/:id/stock", h.StockOnHand)
}
