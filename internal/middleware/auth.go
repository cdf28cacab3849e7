package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/nodewire/nodewire/internal/auth"
	"github.com/nodewire/nodewire/internal/policies"
	"github.com/nodewire/nodewire/pkg/errors"
	"github.com/nodewire/nodewire/pkg/response"
)

const (
	CtxAccessKey = "accessContext"
	CtxUserIDKey = "userID"
)

// Auth enforces bearer-token authentication and stores the resolved access
// context for downstream handlers.
func Auth(authService *iauth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		access, err := authService.ResolveAccessContext(c.Request.Context(), token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxAccessKey, access)
		c.Set(CtxUserIDKey, access.UserID)

		c.Next()
	}
}

// AccessFrom extracts the access context stored by Auth.
func AccessFrom(c *gin.Context) (policies.AccessContext, bool) {
	v, ok := c.Get(CtxAccessKey)
	if !ok {
		return policies.AccessContext{}, false
	}
	access, ok := v.(policies.AccessContext)
	return access, ok
}
