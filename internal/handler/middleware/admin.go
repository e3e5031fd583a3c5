package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwtpkg "signalhub/invitehub/pkg/jwt"
	"signalhub/invitehub/pkg/response"
)

// AdminAuth checks the token subject against the configured operator list.
// Must be used after JWTAuth.
func AdminAuth(adminIDs []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		allowed[id] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := AdminClaims(c)
		if !ok {
			response.Unauthorized(c, "missing authentication")
			c.Abort()
			return
		}

		if _, err := uuid.Parse(claims.Subject); err != nil {
			response.Unauthorized(c, "invalid admin id")
			c.Abort()
			return
		}

		if _, isAdmin := allowed[claims.Subject]; !isAdmin {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}

// AdminClaims returns the claims stored by JWTAuth.
func AdminClaims(c *gin.Context) (*jwtpkg.Claims, bool) {
	v, exists := c.Get(ContextKeyAdminClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*jwtpkg.Claims)
	return claims, ok
}
