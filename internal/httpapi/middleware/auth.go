package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kseverny/interview-platform/internal/auth"
	"github.com/kseverny/interview-platform/internal/common"
	"github.com/kseverny/interview-platform/internal/models"
)

// Context keys set by AuthRequired.
const (
	UserIDKey = "auth_user_id"
	RoleKey   = "auth_role"
	ClaimsKey = "auth_claims"
)

func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			code := 40102
			msg := "invalid token"
			if err == auth.ErrTokenExpired {
				code = 40103
				msg = "token expired"
			}
			common.Fail(c, http.StatusUnauthorized, code, msg)
			c.Abort()
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireRole gates a route group to the listed roles. Must run after
// AuthRequired.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(RoleKey)
		if !ok {
			common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
			c.Abort()
			return
		}
		role, _ := v.(models.Role)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		common.Fail(c, http.StatusForbidden, 40301, "insufficient role")
		c.Abort()
	}
}
