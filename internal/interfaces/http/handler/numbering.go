package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	numberingapp "github.com/invoicehub/backend/internal/application/numbering"
	"github.com/invoicehub/backend/internal/interfaces/http/middleware"
)

// NumberingService is the application service behind NumberingHandler
type NumberingService interface {
	GetConfig(ctx context.Context, tenantID uuid.UUID, documentType string) (*numberingapp.ConfigResponse, error)
	ListConfigs(ctx context.Context, tenantID uuid.UUID) ([]numberingapp.ConfigResponse, error)
	UpsertConfig(ctx context.Context, tenantID uuid.UUID, documentType string, req numberingapp.UpsertConfigRequest) (*numberingapp.ConfigResponse, error)
	PreviewNext(ctx context.Context, tenantID uuid.UUID, req numberingapp.NumberRequest) (*numberingapp.NumberResponse, error)
	ReserveNext(ctx context.Context, tenantID uuid.UUID, req numberingapp.ReserveRequest) (*numberingapp.NumberResponse, error)
	ResetSequence(ctx context.Context, tenantID uuid.UUID, documentType string, req numberingapp.ResetRequest) (*numberingapp.ResetResponse, error)
}

// NumberingHandler handles document numbering endpoints
type NumberingHandler struct {
	BaseHandler
	service NumberingService
}

// NewNumberingHandler creates a new NumberingHandler
func NewNumberingHandler(service NumberingService) *NumberingHandler {
	return &NumberingHandler{service: service}
}

// UpsertNumberingConfigRequest is the body of a numbering config update
//
//	@Description	Numbering settings of one document type
type UpsertNumberingConfigRequest struct {
	Template             string `json:"template" binding:"numbering_template" example:"INV-%YYYY%-"`
	Padding              int    `json:"padding" binding:"gte=0,lte=12" example:"4"`
	StartValue           int64  `json:"start_value" binding:"gte=0" example:"1"`
	ResetPolicy          string `json:"reset_policy" binding:"omitempty,reset_policy" example:"fiscal_year"`
	PerClient            bool   `json:"per_client" example:"false"`
	FiscalYearStartMonth int    `json:"fiscal_year_start_month" binding:"gte=0,lte=12" example:"4"`
	// Version enables optimistic locking when set
	Version *int `json:"version" example:"3"`
}

// NumberPreviewQuery selects the scope and date of a preview
type NumberPreviewQuery struct {
	ClientID  string `form:"client_id" binding:"omitempty,uuid" example:"6f1c2a3e-1111-4b6a-9c1d-2f3e4a5b6c7d"`
	IssueDate string `form:"issue_date" binding:"omitempty,datetime=2006-01-02" example:"2024-03-15"`
}

// ReserveNumberRequest is the body of a number reservation
//
//	@Description	Scope and date of the number to reserve
type ReserveNumberRequest struct {
	ClientID  string `json:"client_id" binding:"omitempty,uuid" example:"6f1c2a3e-1111-4b6a-9c1d-2f3e4a5b6c7d"`
	IssueDate string `json:"issue_date" binding:"omitempty,datetime=2006-01-02" example:"2024-03-15"`
}

// ResetSequenceRequest is the body of a manual sequence reset
//
//	@Description	Scope to restart and its new start value
type ResetSequenceRequest struct {
	ClientID   string `json:"client_id" binding:"omitempty,uuid" example:"6f1c2a3e-1111-4b6a-9c1d-2f3e4a5b6c7d"`
	StartValue *int64 `json:"start_value" binding:"omitempty,gte=1" example:"1"`
}

// numberRequest builds the application request from raw client and date
// values; both were validated by binding
func numberRequest(documentType, clientID, issueDate string) numberingapp.NumberRequest {
	req := numberingapp.NumberRequest{DocumentType: documentType}
	req.ClientID, _ = parseOptionalUUID(clientID)
	req.IssueDate, _ = parseDate(issueDate)
	return req
}

// ListConfigs godoc
// @ID           listNumberingConfigs
// @Summary      List numbering configs
// @Description  Returns the numbering config of every document type, defaults included
// @Tags         numbering
// @Produce      json
// @Success      200 {object} APIResponse[[]numberingapp.ConfigResponse]
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /numbering/configs [get]
func (h *NumberingHandler) ListConfigs(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	configs, err := h.service.ListConfigs(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, configs)
}

// GetConfig godoc
// @ID           getNumberingConfig
// @Summary      Get a numbering config
// @Description  Returns the stored config of a document type, or its default
// @Tags         numbering
// @Produce      json
// @Param        document_type path string true "invoice, estimate or credit_note"
// @Success      200 {object} APIResponse[numberingapp.ConfigResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /numbering/configs/{document_type} [get]
func (h *NumberingHandler) GetConfig(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	cfg, err := h.service.GetConfig(c.Request.Context(), tenantID, c.Param("document_type"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cfg)
}

// UpsertConfig godoc
// @ID           upsertNumberingConfig
// @Summary      Create or update a numbering config
// @Description  Saves the template, padding, start value and reset policy of a document type. Unknown placeholders are kept and reported in warnings.
// @Tags         numbering
// @Accept       json
// @Produce      json
// @Param        document_type path string true "invoice, estimate or credit_note"
// @Param        request body UpsertNumberingConfigRequest true "Numbering settings"
// @Success      200 {object} APIResponse[numberingapp.ConfigResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /numbering/configs/{document_type} [put]
func (h *NumberingHandler) UpsertConfig(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req UpsertNumberingConfigRequest
	if !h.bindJSON(c, &req) {
		return
	}

	cfg, err := h.service.UpsertConfig(c.Request.Context(), tenantID, c.Param("document_type"), numberingapp.UpsertConfigRequest{
		Template:             req.Template,
		Padding:              req.Padding,
		StartValue:           req.StartValue,
		ResetPolicy:          req.ResetPolicy,
		PerClient:            req.PerClient,
		FiscalYearStartMonth: req.FiscalYearStartMonth,
		Version:              req.Version,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cfg)
}

// Preview godoc
// @ID           previewNextNumber
// @Summary      Preview the next document number
// @Description  Returns the number the next reservation would receive without consuming it
// @Tags         numbering
// @Produce      json
// @Param        document_type path string true "invoice, estimate or credit_note"
// @Param        client_id query string false "Client scope, required for per-client numbering"
// @Param        issue_date query string false "Issue date (YYYY-MM-DD), defaults to today"
// @Success      200 {object} APIResponse[numberingapp.NumberResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Security     BearerAuth
// @Router       /numbering/{document_type}/preview [get]
func (h *NumberingHandler) Preview(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var q NumberPreviewQuery
	if !h.bindQuery(c, &q) {
		return
	}

	resp, err := h.service.PreviewNext(c.Request.Context(), tenantID,
		numberRequest(c.Param("document_type"), q.ClientID, q.IssueDate))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Reserve godoc
// @ID           reserveNextNumber
// @Summary      Reserve the next document number
// @Description  Atomically consumes and returns the next number of the scope. Repeating a request with the same Idempotency-Key returns the same number with 200.
// @Tags         numbering
// @Accept       json
// @Produce      json
// @Param        document_type path string true "invoice, estimate or credit_note"
// @Param        Idempotency-Key header string false "Key making retries return the same number"
// @Param        request body ReserveNumberRequest false "Scope and issue date"
// @Success      201 {object} APIResponse[numberingapp.NumberResponse]
// @Success      200 {object} APIResponse[numberingapp.NumberResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse "CONCURRENT_COUNTER_CONFLICT or DUPLICATE_REQUEST"
// @Failure      422 {object} ErrorResponse "IDEMPOTENCY_KEY_REUSED"
// @Security     BearerAuth
// @Router       /numbering/{document_type}/reserve [post]
func (h *NumberingHandler) Reserve(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req ReserveNumberRequest
	if c.Request.ContentLength != 0 {
		if !h.bindJSON(c, &req) {
			return
		}
	}

	resp, err := h.service.ReserveNext(c.Request.Context(), tenantID, numberingapp.ReserveRequest{
		NumberRequest:  numberRequest(c.Param("document_type"), req.ClientID, req.IssueDate),
		IdempotencyKey: c.GetHeader(middleware.IdempotencyKeyHeader),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if resp.Replayed {
		h.Success(c, resp)
		return
	}
	h.Created(c, resp)
}

// Reset godoc
// @ID           resetNumberSequence
// @Summary      Reset a number sequence
// @Description  Restarts a scope at the given value. Only allowed under the manual reset policy.
// @Tags         numbering
// @Accept       json
// @Produce      json
// @Param        document_type path string true "invoice, estimate or credit_note"
// @Param        request body ResetSequenceRequest false "Scope and start value"
// @Success      200 {object} APIResponse[numberingapp.ResetResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse "RESET_NOT_ALLOWED"
// @Security     BearerAuth
// @Router       /numbering/{document_type}/reset [post]
func (h *NumberingHandler) Reset(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var req ResetSequenceRequest
	if c.Request.ContentLength != 0 {
		if !h.bindJSON(c, &req) {
			return
		}
	}
	clientID, _ := parseOptionalUUID(req.ClientID)

	resp, err := h.service.ResetSequence(c.Request.Context(), tenantID, c.Param("document_type"), numberingapp.ResetRequest{
		ClientID:   clientID,
		StartValue: req.StartValue,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
