package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	numberingapp "github.com/invoicehub/backend/internal/application/numbering"
	"github.com/invoicehub/backend/internal/domain/numbering"
	"github.com/invoicehub/backend/internal/interfaces/http/dto"
	"github.com/invoicehub/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockNumberingService is a mock implementation of NumberingService
type MockNumberingService struct {
	mock.Mock
}

func (m *MockNumberingService) GetConfig(ctx context.Context, tenantID uuid.UUID, documentType string) (*numberingapp.ConfigResponse, error) {
	args := m.Called(ctx, tenantID, documentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*numberingapp.ConfigResponse), args.Error(1)
}

func (m *MockNumberingService) ListConfigs(ctx context.Context, tenantID uuid.UUID) ([]numberingapp.ConfigResponse, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]numberingapp.ConfigResponse), args.Error(1)
}

func (m *MockNumberingService) UpsertConfig(ctx context.Context, tenantID uuid.UUID, documentType string, req numberingapp.UpsertConfigRequest) (*numberingapp.ConfigResponse, error) {
	args := m.Called(ctx, tenantID, documentType, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*numberingapp.ConfigResponse), args.Error(1)
}

func (m *MockNumberingService) PreviewNext(ctx context.Context, tenantID uuid.UUID, req numberingapp.NumberRequest) (*numberingapp.NumberResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*numberingapp.NumberResponse), args.Error(1)
}

func (m *MockNumberingService) ReserveNext(ctx context.Context, tenantID uuid.UUID, req numberingapp.ReserveRequest) (*numberingapp.NumberResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*numberingapp.NumberResponse), args.Error(1)
}

func (m *MockNumberingService) ResetSequence(ctx context.Context, tenantID uuid.UUID, documentType string, req numberingapp.ResetRequest) (*numberingapp.ResetResponse, error) {
	args := m.Called(ctx, tenantID, documentType, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*numberingapp.ResetResponse), args.Error(1)
}

// =============================================================================
// Helpers
// =============================================================================

// withTenant simulates the tenant middleware
func withTenant(tenantID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tenantID != uuid.Nil {
			c.Set(middleware.TenantIDKey, tenantID)
		}
		c.Next()
	}
}

func newNumberingRouter(svc NumberingService, tenantID uuid.UUID) *gin.Engine {
	middleware.SetupValidator()
	h := NewNumberingHandler(svc)

	r := gin.New()
	r.Use(middleware.RequestID(), withTenant(tenantID))
	r.GET("/numbering/configs", h.ListConfigs)
	r.GET("/numbering/configs/:document_type", h.GetConfig)
	r.PUT("/numbering/configs/:document_type", h.UpsertConfig)
	r.GET("/numbering/:document_type/preview", h.Preview)
	r.POST("/numbering/:document_type/reserve", h.Reserve)
	r.POST("/numbering/:document_type/reset", h.Reset)
	return r
}

func doRequest(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErrorInfo(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

// =============================================================================
// Configs
// =============================================================================

func TestNumberingHandler_GetConfig(t *testing.T) {
	tenantID := uuid.New()
	svc := new(MockNumberingService)
	svc.On("GetConfig", mock.Anything, tenantID, "invoice").Return(&numberingapp.ConfigResponse{
		DocumentType: "invoice",
		Template:     "INV-",
		IsDefault:    true,
		Example:      "INV-1",
	}, nil)

	w := doRequest(newNumberingRouter(svc, tenantID), http.MethodGet, "/numbering/configs/invoice", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[numberingapp.ConfigResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.IsDefault)
	assert.Equal(t, "INV-1", resp.Data.Example)
	svc.AssertExpectations(t)
}

func TestNumberingHandler_GetConfig_InvalidDocumentType(t *testing.T) {
	tenantID := uuid.New()
	svc := new(MockNumberingService)
	svc.On("GetConfig", mock.Anything, tenantID, "receipt").Return(nil, numbering.ErrInvalidDocumentType)

	w := doRequest(newNumberingRouter(svc, tenantID), http.MethodGet, "/numbering/configs/receipt", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidDocumentType, decodeErrorInfo(t, w).Code)
}

func TestNumberingHandler_ListConfigs(t *testing.T) {
	tenantID := uuid.New()
	svc := new(MockNumberingService)
	svc.On("ListConfigs", mock.Anything, tenantID).Return([]numberingapp.ConfigResponse{
		{DocumentType: "invoice"}, {DocumentType: "estimate"}, {DocumentType: "credit_note"},
	}, nil)

	w := doRequest(newNumberingRouter(svc, tenantID), http.MethodGet, "/numbering/configs", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[[]numberingapp.ConfigResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 3)
}

func TestNumberingHandler_UpsertConfig(t *testing.T) {
	tenantID := uuid.New()
	version := 2
	svc := new(MockNumberingService)
	svc.On("UpsertConfig", mock.Anything, tenantID, "invoice", numberingapp.UpsertConfigRequest{
		Template:             "INV-%YYYY%-",
		Padding:              4,
		StartValue:           1,
		ResetPolicy:          "fiscal_year",
		FiscalYearStartMonth: 4,
		Version:              &version,
	}).Return(&numberingapp.ConfigResponse{DocumentType: "invoice", Version: 3}, nil)

	body := `{"template":"INV-%YYYY%-","padding":4,"start_value":1,"reset_policy":"fiscal_year","fiscal_year_start_month":4,"version":2}`
	w := doRequest(newNumberingRouter(svc, tenantID), http.MethodPut, "/numbering/configs/invoice", body)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestNumberingHandler_UpsertConfig_Validation(t *testing.T) {
	svc := new(MockNumberingService)
	router := newNumberingRouter(svc, uuid.New())

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"padding too large", `{"template":"INV-","padding":13}`, "padding"},
		{"unknown reset policy", `{"template":"INV-","reset_policy":"weekly"}`, "reset_policy"},
		{"fiscal month out of range", `{"template":"INV-","fiscal_year_start_month":13}`, "fiscal_year_start_month"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPut, "/numbering/configs/invoice", tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code)
			errInfo := decodeErrorInfo(t, w)
			assert.Equal(t, dto.ErrCodeValidation, errInfo.Code)
			require.NotEmpty(t, errInfo.Details)
			assert.Equal(t, tt.field, errInfo.Details[0].Field)
		})
	}
	svc.AssertNotCalled(t, "UpsertConfig", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// =============================================================================
// Preview / Reserve / Reset
// =============================================================================

func TestNumberingHandler_Preview(t *testing.T) {
	tenantID := uuid.New()
	clientID := uuid.New()
	issueDate := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	svc := new(MockNumberingService)
	svc.On("PreviewNext", mock.Anything, tenantID, numberingapp.NumberRequest{
		DocumentType: "invoice",
		ClientID:     &clientID,
		IssueDate:    &issueDate,
	}).Return(&numberingapp.NumberResponse{DocumentType: "invoice", Number: "INV-2024-0001", Value: 1}, nil)

	w := doRequest(newNumberingRouter(svc, tenantID), http.MethodGet,
		"/numbering/invoice/preview?client_id="+clientID.String()+"&issue_date=2024-03-15", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp APIResponse[numberingapp.NumberResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INV-2024-0001", resp.Data.Number)
	svc.AssertExpectations(t)
}

func TestNumberingHandler_Preview_BadQuery(t *testing.T) {
	svc := new(MockNumberingService)
	router := newNumberingRouter(svc, uuid.New())

	w := doRequest(router, http.MethodGet, "/numbering/invoice/preview?issue_date=15/03/2024", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/numbering/invoice/preview?client_id=acme", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNumberingHandler_Reserve(t *testing.T) {
	tenantID := uuid.New()

	t.Run("new reservation answers 201", func(t *testing.T) {
		svc := new(MockNumberingService)
		svc.On("ReserveNext", mock.Anything, tenantID, numberingapp.ReserveRequest{
			NumberRequest:  numberingapp.NumberRequest{DocumentType: "invoice"},
			IdempotencyKey: "key-1",
		}).Return(&numberingapp.NumberResponse{Number: "INV-0001", Value: 1}, nil)

		w := doRequest(newNumberingRouter(svc, tenantID), http.MethodPost, "/numbering/invoice/reserve", "",
			middleware.IdempotencyKeyHeader, "key-1")

		assert.Equal(t, http.StatusCreated, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("replayed reservation answers 200", func(t *testing.T) {
		svc := new(MockNumberingService)
		svc.On("ReserveNext", mock.Anything, tenantID, mock.Anything).
			Return(&numberingapp.NumberResponse{Number: "INV-0001", Value: 1, Replayed: true}, nil)

		w := doRequest(newNumberingRouter(svc, tenantID), http.MethodPost, "/numbering/invoice/reserve", `{}`,
			middleware.IdempotencyKeyHeader, "key-1")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"replayed":true`)
	})

	t.Run("counter conflict is retryable", func(t *testing.T) {
		svc := new(MockNumberingService)
		svc.On("ReserveNext", mock.Anything, tenantID, mock.Anything).Return(nil, numbering.ErrCounterConflict)

		w := doRequest(newNumberingRouter(svc, tenantID), http.MethodPost, "/numbering/invoice/reserve", "")

		assert.Equal(t, http.StatusConflict, w.Code)
		errInfo := decodeErrorInfo(t, w)
		assert.Equal(t, dto.ErrCodeCounterConflict, errInfo.Code)
		assert.True(t, errInfo.Retryable)
		assert.NotEmpty(t, errInfo.RequestID)
	})

	t.Run("client required", func(t *testing.T) {
		svc := new(MockNumberingService)
		svc.On("ReserveNext", mock.Anything, tenantID, mock.Anything).Return(nil, numbering.ErrClientRequired)

		w := doRequest(newNumberingRouter(svc, tenantID), http.MethodPost, "/numbering/invoice/reserve", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeClientRequired, decodeErrorInfo(t, w).Code)
	})
}

func TestNumberingHandler_Reset(t *testing.T) {
	tenantID := uuid.New()
	start := int64(100)

	t.Run("manual policy", func(t *testing.T) {
		svc := new(MockNumberingService)
		svc.On("ResetSequence", mock.Anything, tenantID, "estimate", numberingapp.ResetRequest{StartValue: &start}).
			Return(&numberingapp.ResetResponse{DocumentType: "estimate", NextValue: 100, NextNumber: "EST-100"}, nil)

		w := doRequest(newNumberingRouter(svc, tenantID), http.MethodPost, "/numbering/estimate/reset", `{"start_value":100}`)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "EST-100")
	})

	t.Run("other policies are refused", func(t *testing.T) {
		svc := new(MockNumberingService)
		svc.On("ResetSequence", mock.Anything, tenantID, "invoice", mock.Anything).Return(nil, numbering.ErrResetNotAllowed)

		w := doRequest(newNumberingRouter(svc, tenantID), http.MethodPost, "/numbering/invoice/reset", "")

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeResetNotAllowed, decodeErrorInfo(t, w).Code)
	})
}

func TestNumberingHandler_MissingTenant(t *testing.T) {
	svc := new(MockNumberingService)

	w := doRequest(newNumberingRouter(svc, uuid.Nil), http.MethodGet, "/numbering/configs", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeTenantMissing, decodeErrorInfo(t, w).Code)
	svc.AssertNotCalled(t, "ListConfigs", mock.Anything, mock.Anything)
}
