package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	reconapp "github.com/invoicehub/backend/internal/application/reconciliation"
	"github.com/invoicehub/backend/internal/domain/reconciliation"
	"github.com/invoicehub/backend/internal/domain/shared"
	"github.com/invoicehub/backend/internal/interfaces/http/dto"
	"github.com/invoicehub/backend/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
)

// ReconciliationService is the application service behind ReconciliationHandler
type ReconciliationService interface {
	CreateSession(ctx context.Context, tenantID uuid.UUID, req reconapp.CreateSessionRequest) (*reconapp.SessionResponse, error)
	GetSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*reconapp.SessionResponse, error)
	ListSessions(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]reconapp.SessionResponse, int64, error)
	ListSessionTransactions(ctx context.Context, tenantID, sessionID uuid.UUID, status reconciliation.TransactionStatus) ([]reconapp.TransactionResponse, error)
	CompleteSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*reconapp.SessionResponse, error)
	Suggestions(ctx context.Context, tenantID, txID uuid.UUID) ([]reconapp.CandidateResponse, error)
	Match(ctx context.Context, tenantID, txID, paymentID uuid.UUID) (*reconapp.ActionResult, error)
	Unmatch(ctx context.Context, tenantID, txID uuid.UUID) (*reconapp.ActionResult, error)
	SetIgnored(ctx context.Context, tenantID, txID uuid.UUID, ignored bool) (*reconapp.TransactionResponse, error)
	AutoMatch(ctx context.Context, tenantID, sessionID uuid.UUID) (*reconapp.ActionResult, error)
	ImportStatement(ctx context.Context, tenantID uuid.UUID, req reconapp.ImportStatementRequest) (*reconapp.ImportResult, error)
	MaxFileSize() int64
	RecordPayment(ctx context.Context, tenantID uuid.UUID, req reconapp.RecordPaymentRequest) (*reconapp.PaymentResponse, error)
	ListPayments(ctx context.Context, tenantID uuid.UUID, filter reconciliation.PaymentFilter) ([]reconapp.PaymentResponse, int64, error)
}

// ReconciliationHandler handles bank reconciliation and payment endpoints
type ReconciliationHandler struct {
	BaseHandler
	service ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(service ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{service: service}
}

// CreateSessionRequest opens a reconciliation session
//
//	@Description	Statement period and balances of a reconciliation session
type CreateSessionRequest struct {
	StartDate      string `json:"start_date" binding:"required,datetime=2006-01-02" example:"2024-01-01"`
	EndDate        string `json:"end_date" binding:"required,datetime=2006-01-02" example:"2024-01-31"`
	OpeningBalance string `json:"opening_balance" binding:"omitempty,decimal" example:"1000.00"`
	ClosingBalance string `json:"closing_balance" binding:"omitempty,decimal" example:"1550.00"`
}

// TransactionListQuery filters the transactions of a session
type TransactionListQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=matched unmatched ignored" example:"unmatched"`
}

// MatchTransactionRequest links a transaction to a payment
//
//	@Description	Payment to link the transaction to
type MatchTransactionRequest struct {
	PaymentID string `json:"payment_id" binding:"required,uuid" example:"0b8f7c6d-2222-4e5f-8a9b-1c2d3e4f5a6b"`
}

// RecordPaymentRequest records a received payment
//
//	@Description	Payment received against an invoice
type RecordPaymentRequest struct {
	Amount           string `json:"amount" binding:"required,decimal" example:"1000.00"`
	PaymentDate      string `json:"payment_date" binding:"required,datetime=2006-01-02" example:"2024-01-14"`
	InvoiceReference string `json:"invoice_reference" binding:"max=100" example:"INV-2024-0007"`
	RefundedAmount   string `json:"refunded_amount" binding:"omitempty,decimal" example:"0"`
	Method           string `json:"method" binding:"max=50" example:"bank_transfer"`
	Notes            string `json:"notes" binding:"max=500" example:"Wire from ACME"`
}

// PaymentListQuery filters listed payments
type PaymentListQuery struct {
	dto.ListRequest
	From          string `form:"from" binding:"omitempty,datetime=2006-01-02" example:"2024-01-01"`
	To            string `form:"to" binding:"omitempty,datetime=2006-01-02" example:"2024-01-31"`
	UnmatchedOnly bool   `form:"unmatched_only" example:"true"`
}

// decimalOrZero parses a decimal already checked by the decimal binding tag
func decimalOrZero(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	d, _ := decimal.NewFromString(value)
	return d
}

// =============================================================================
// Sessions
// =============================================================================

// CreateSession godoc
// @ID           createReconciliationSession
// @Summary      Open a reconciliation session
// @Description  Opens a session covering a statement period. Transactions dated inside the period belong to it.
// @Tags         reconciliation
// @Accept       json
// @Produce      json
// @Param        request body CreateSessionRequest true "Statement period"
// @Success      201 {object} APIResponse[reconapp.SessionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/sessions [post]
func (h *ReconciliationHandler) CreateSession(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req CreateSessionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	start, _ := time.Parse(time.DateOnly, req.StartDate)
	end, _ := time.Parse(time.DateOnly, req.EndDate)

	session, err := h.service.CreateSession(c.Request.Context(), tenantID, reconapp.CreateSessionRequest{
		StartDate:      start,
		EndDate:        end,
		OpeningBalance: decimalOrZero(req.OpeningBalance),
		ClosingBalance: decimalOrZero(req.ClosingBalance),
		CreatedBy:      middleware.GetUserID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, session)
}

// ListSessions godoc
// @ID           listReconciliationSessions
// @Summary      List reconciliation sessions
// @Tags         reconciliation
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        order_dir query string false "asc or desc" default(desc)
// @Success      200 {object} APIResponse[[]reconapp.SessionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/sessions [get]
func (h *ReconciliationHandler) ListSessions(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var q dto.ListRequest
	if !h.bindQuery(c, &q) {
		return
	}
	filter := q.ToFilter()

	sessions, total, err := h.service.ListSessions(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, sessions, total, filter.Page, filter.PageSize)
}

// GetSession godoc
// @ID           getReconciliationSession
// @Summary      Get a reconciliation session
// @Description  Returns the session with its summary: matched, ignored and unmatched counts and the statement difference
// @Tags         reconciliation
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} APIResponse[reconapp.SessionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/sessions/{id} [get]
func (h *ReconciliationHandler) GetSession(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	sessionID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	session, err := h.service.GetSession(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, session)
}

// ListSessionTransactions godoc
// @ID           listSessionTransactions
// @Summary      List the transactions of a session
// @Tags         reconciliation
// @Produce      json
// @Param        id path string true "Session ID"
// @Param        status query string false "matched, unmatched or ignored"
// @Success      200 {object} APIResponse[[]reconapp.TransactionResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/sessions/{id}/transactions [get]
func (h *ReconciliationHandler) ListSessionTransactions(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	sessionID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var q TransactionListQuery
	if !h.bindQuery(c, &q) {
		return
	}

	txs, err := h.service.ListSessionTransactions(c.Request.Context(), tenantID, sessionID,
		reconciliation.TransactionStatus(q.Status))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, txs)
}

// AutoMatch godoc
// @ID           autoMatchSession
// @Summary      Auto-match a session
// @Description  Matches every unmatched transaction of the session that has exactly one best candidate. Ties are left unmatched.
// @Tags         reconciliation
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} dto.ActionResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/sessions/{id}/auto-match [post]
func (h *ReconciliationHandler) AutoMatch(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	sessionID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.service.AutoMatch(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Action(c, result.Success, result.Message, result.MatchedCount, result.UnmatchedCount)
}

// CompleteSession godoc
// @ID           completeReconciliationSession
// @Summary      Complete a session
// @Description  Closes the session once every transaction is matched or ignored
// @Tags         reconciliation
// @Produce      json
// @Param        id path string true "Session ID"
// @Success      200 {object} APIResponse[reconapp.SessionResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse "SESSION_INCOMPLETE or INVALID_STATE"
// @Security     BearerAuth
// @Router       /reconciliation/sessions/{id}/complete [post]
func (h *ReconciliationHandler) CompleteSession(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	sessionID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	session, err := h.service.CompleteSession(c.Request.Context(), tenantID, sessionID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, session)
}

// =============================================================================
// Transactions
// =============================================================================

// ImportStatement godoc
// @ID           importBankStatement
// @Summary      Import a bank statement
// @Description  Uploads a CSV (date,amount,reference,description) or OFX statement. Lines already imported are skipped and row errors are reported without failing the import.
// @Tags         reconciliation
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Statement file"
// @Param        format formData string false "csv or ofx, detected when omitted"
// @Success      201 {object} APIResponse[reconapp.ImportResult]
// @Failure      400 {object} ErrorResponse
// @Failure      413 {object} ErrorResponse
// @Failure      415 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/transactions/import [post]
func (h *ReconciliationHandler) ImportStatement(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeFileTooLarge, "Statement file exceeds the maximum allowed size")
			return
		}
		h.ValidationError(c, []dto.ValidationDetail{{Field: "file", Message: "This field is required"}})
		return
	}
	if limit := h.service.MaxFileSize(); limit > 0 && file.Size > limit {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeFileTooLarge, "Statement file exceeds the maximum allowed size")
		return
	}
	format := c.PostForm("format")
	if format != "" && format != "csv" && format != "ofx" {
		h.ValidationError(c, []dto.ValidationDetail{{Field: "format", Message: "Must be one of: csv ofx"}})
		return
	}

	f, err := file.Open()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.ImportStatement(c.Request.Context(), tenantID, reconapp.ImportStatementRequest{
		Filename: file.Filename,
		Data:     data,
		Format:   format,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Suggestions godoc
// @ID           transactionSuggestions
// @Summary      Suggest payments for a transaction
// @Description  Lists unmatched payments with the same amount within the candidate window, closest date first
// @Tags         reconciliation
// @Produce      json
// @Param        id path string true "Transaction ID"
// @Success      200 {object} APIResponse[[]reconapp.CandidateResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/transactions/{id}/suggestions [get]
func (h *ReconciliationHandler) Suggestions(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	txID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	candidates, err := h.service.Suggestions(c.Request.Context(), tenantID, txID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, candidates)
}

// Match godoc
// @ID           matchTransaction
// @Summary      Match a transaction to a payment
// @Tags         reconciliation
// @Accept       json
// @Produce      json
// @Param        id path string true "Transaction ID"
// @Param        request body MatchTransactionRequest true "Payment to match"
// @Success      200 {object} dto.ActionResponse
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse "ALREADY_MATCHED"
// @Failure      422 {object} ErrorResponse "AMOUNT_MISMATCH"
// @Security     BearerAuth
// @Router       /reconciliation/transactions/{id}/match [post]
func (h *ReconciliationHandler) Match(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	txID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	var req MatchTransactionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	paymentID, _ := uuid.Parse(req.PaymentID)

	result, err := h.service.Match(c.Request.Context(), tenantID, txID, paymentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Action(c, result.Success, result.Message, result.MatchedCount, result.UnmatchedCount)
}

// Unmatch godoc
// @ID           unmatchTransaction
// @Summary      Unmatch a transaction
// @Description  Clears the payment link. Unmatching an unmatched transaction succeeds without changes.
// @Tags         reconciliation
// @Produce      json
// @Param        id path string true "Transaction ID"
// @Success      200 {object} dto.ActionResponse
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/transactions/{id}/unmatch [post]
func (h *ReconciliationHandler) Unmatch(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	txID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.service.Unmatch(c.Request.Context(), tenantID, txID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Action(c, result.Success, result.Message, result.MatchedCount, result.UnmatchedCount)
}

// Ignore godoc
// @ID           ignoreTransaction
// @Summary      Ignore a transaction
// @Description  Marks a transaction that needs no payment (bank fees, transfers) so it does not block completion
// @Tags         reconciliation
// @Produce      json
// @Param        id path string true "Transaction ID"
// @Success      200 {object} APIResponse[reconapp.TransactionResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/transactions/{id}/ignore [post]
func (h *ReconciliationHandler) Ignore(c *gin.Context) {
	h.setIgnored(c, true)
}

// Unignore godoc
// @ID           unignoreTransaction
// @Summary      Stop ignoring a transaction
// @Tags         reconciliation
// @Produce      json
// @Param        id path string true "Transaction ID"
// @Success      200 {object} APIResponse[reconapp.TransactionResponse]
// @Failure      404 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /reconciliation/transactions/{id}/unignore [post]
func (h *ReconciliationHandler) Unignore(c *gin.Context) {
	h.setIgnored(c, false)
}

func (h *ReconciliationHandler) setIgnored(c *gin.Context, ignored bool) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	txID, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	tx, err := h.service.SetIgnored(c.Request.Context(), tenantID, txID, ignored)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// =============================================================================
// Payments
// =============================================================================

// RecordPayment godoc
// @ID           recordPayment
// @Summary      Record a payment
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body RecordPaymentRequest true "Payment"
// @Success      201 {object} APIResponse[reconapp.PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /payments [post]
func (h *ReconciliationHandler) RecordPayment(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	paymentDate, _ := time.Parse(time.DateOnly, req.PaymentDate)

	payment, err := h.service.RecordPayment(c.Request.Context(), tenantID, reconapp.RecordPaymentRequest{
		Amount:           decimalOrZero(req.Amount),
		PaymentDate:      paymentDate,
		InvoiceReference: req.InvoiceReference,
		RefundedAmount:   decimalOrZero(req.RefundedAmount),
		Method:           req.Method,
		Notes:            req.Notes,
		CreatedBy:        middleware.GetUserID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, payment)
}

// ListPayments godoc
// @ID           listPayments
// @Summary      List payments
// @Tags         payments
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        from query string false "Earliest payment date (YYYY-MM-DD)"
// @Param        to query string false "Latest payment date (YYYY-MM-DD)"
// @Param        unmatched_only query bool false "Only payments not linked to a transaction"
// @Success      200 {object} APIResponse[[]reconapp.PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /payments [get]
func (h *ReconciliationHandler) ListPayments(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var q PaymentListQuery
	if !h.bindQuery(c, &q) {
		return
	}
	from, _ := parseDate(q.From)
	to, _ := parseDate(q.To)
	filter := reconciliation.PaymentFilter{
		Filter:        q.ToFilter(),
		From:          from,
		To:            to,
		UnmatchedOnly: q.UnmatchedOnly,
	}

	payments, total, err := h.service.ListPayments(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, payments, total, filter.Page, filter.PageSize)
}
