package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/invoicehub/backend/internal/infrastructure/logger"
	"github.com/invoicehub/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Tenant context keys and headers
const (
	TenantIDKey    = "tenant_id"
	TenantIDHeader = "X-Tenant-ID"
)

// TenantMiddlewareConfig holds configuration for tenant middleware
type TenantMiddlewareConfig struct {
	// JWTEnabled reads the tenant from JWT claims (requires JWT middleware to run first)
	JWTEnabled bool
	// HeaderEnabled accepts the X-Tenant-ID header when no claim is present
	HeaderEnabled bool
	// DefaultTenantID is used when neither a claim nor a header is present
	DefaultTenantID string
	// SkipPaths are paths that don't require tenant context
	SkipPaths []string
	Logger    *zap.Logger
}

// DefaultTenantConfig returns default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		JWTEnabled:    true,
		HeaderEnabled: false,
		SkipPaths:     []string{"/health", "/api/v1/health"},
	}
}

// TenantMiddleware resolves the tenant of the request.
// Resolution order: JWT claims > X-Tenant-ID header > configured default.
func TenantMiddleware(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		var tenantID, method string
		if cfg.JWTEnabled {
			if tid := GetJWTTenantID(c); tid != "" {
				tenantID, method = tid, "jwt"
			}
		}
		if tenantID == "" && cfg.HeaderEnabled {
			if tid := c.GetHeader(TenantIDHeader); tid != "" {
				tenantID, method = tid, "header"
			}
		}
		if tenantID == "" && cfg.DefaultTenantID != "" {
			tenantID, method = cfg.DefaultTenantID, "default"
		}

		if tenantID == "" {
			respondTenantError(c, "Tenant identification required")
			return
		}
		tid, err := uuid.Parse(tenantID)
		if err != nil || len(tenantID) > MaxTenantIDLength {
			respondTenantError(c, "Invalid tenant ID format")
			return
		}

		c.Set(TenantIDKey, tid)
		c.Request = c.Request.WithContext(logger.WithTenantID(c.Request.Context(), tid.String()))

		if cfg.Logger != nil {
			cfg.Logger.Debug("Tenant identified",
				zap.String("tenant_id", tid.String()),
				zap.String("method", method),
			)
		}
		c.Next()
	}
}

func respondTenantError(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(dto.ErrCodeTenantMissing, message, GetRequestID(c)))
}

// GetTenantID returns the tenant resolved by TenantMiddleware
func GetTenantID(c *gin.Context) (uuid.UUID, bool) {
	if v, exists := c.Get(TenantIDKey); exists {
		if tid, ok := v.(uuid.UUID); ok && tid != uuid.Nil {
			return tid, true
		}
	}
	return uuid.Nil, false
}

// GetUserID returns the authenticated user, if any
func GetUserID(c *gin.Context) *uuid.UUID {
	id, err := uuid.Parse(GetJWTUserID(c))
	if err != nil {
		return nil
	}
	return &id
}
