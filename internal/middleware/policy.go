package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/nodewire/nodewire/internal/policies"
	"github.com/nodewire/nodewire/pkg/errors"
	"github.com/nodewire/nodewire/pkg/metrics"
	"github.com/nodewire/nodewire/pkg/response"
)

// RequirePolicy rejects requests whose access context lacks every one of the
// named policies. Ownership-scoped checks still happen in the service layer;
// this gate only proves the caller holds the policy at all.
func RequirePolicy(policyNames ...string) gin.HandlerFunc {
	label := "none"
	if len(policyNames) > 0 {
		label = policyNames[0]
	}

	return func(c *gin.Context) {
		access, ok := AccessFrom(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		if !policies.HasAccess(access, policies.MatchAny, policyNames...) {
			metrics.PolicyChecks.WithLabelValues(label, "deny").Inc()
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}

		metrics.PolicyChecks.WithLabelValues(label, "allow").Inc()
		c.Next()
	}
}
