package handler

import "github.com/invoicehub/backend/internal/interfaces/http/dto"

// Swagger-only envelope types. Handlers write dto.Response; these give the
// generated docs a typed data field.

// APIResponse is the success envelope with data of type T
type APIResponse[T any] struct {
	Success bool      `json:"success" example:"true"`
	Data    T         `json:"data,omitempty"`
	Meta    *dto.Meta `json:"meta,omitempty"`
}

// ErrorResponse is the failure envelope. error.code carries the stable
// machine-readable code, e.g. ALREADY_MATCHED.
type ErrorResponse struct {
	Success bool           `json:"success" example:"false"`
	Error   *dto.ErrorInfo `json:"error"`
}
