package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/invoicehub/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Permission codes carried in access token claims
const (
	PermNumberingRead      = "numbering:read"
	PermNumberingConfigure = "numbering:configure"
	PermNumberingReserve   = "numbering:reserve"
	PermNumberingReset     = "numbering:reset"
	PermReconcileRead      = "reconciliation:read"
	PermReconcileImport    = "reconciliation:import"
	PermReconcileMatch     = "reconciliation:match"
	PermReconcileComplete  = "reconciliation:complete"
	PermPaymentWrite       = "payments:write"
)

// PermissionConfig holds configuration for permission middleware
type PermissionConfig struct {
	// Disabled lets every request through, used when JWT authentication is off
	Disabled bool
	Logger   *zap.Logger
}

// RequireAnyPermission creates middleware that requires any of the specified
// permissions. Requests without claims are denied.
func RequireAnyPermission(cfg PermissionConfig, permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Disabled {
			c.Next()
			return
		}
		claims := GetJWTClaims(c)
		if claims == nil {
			handlePermissionDenied(c, cfg, permissions, "No authentication claims found")
			return
		}
		for _, p := range permissions {
			if claims.HasPermission(p) {
				c.Next()
				return
			}
		}
		handlePermissionDenied(c, cfg, permissions, "User lacks required permission")
	}
}

func handlePermissionDenied(c *gin.Context, cfg PermissionConfig, required []string, reason string) {
	if cfg.Logger != nil {
		cfg.Logger.Warn("Permission denied",
			zap.String("reason", reason),
			zap.String("user_id", GetJWTUserID(c)),
			zap.Strings("required_permissions", required),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
		)
	}
	c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeForbidden,
		"Access denied: insufficient permissions",
		GetRequestID(c),
	))
}
