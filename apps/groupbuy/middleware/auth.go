package middleware

import (
	"strings"

	"optifish/apps/groupbuy/model"
	"optifish/pkg/errx"
	"optifish/pkg/jwt"
	"optifish/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID   = "userId"
	ContextUsername = "username"
)

var (
	errAuthRequired = errx.New(errx.KindUnauthorized, "unauthorized", "Authorization header required")
	errAuthFormat   = errx.New(errx.KindUnauthorized, "unauthorized", "Authorization header format must be Bearer {token}")
	errInvalidToken = errx.New(errx.KindUnauthorized, "unauthorized", "Invalid token")
)

// AuthMiddleware verifies the bearer token and stores the caller in the gin context.
func AuthMiddleware(tokens *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, errAuthRequired)
			return
		}

		// Bearer <token>
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errAuthFormat)
			return
		}

		claims, err := tokens.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, errInvalidToken)
			return
		}

		c.Set(ContextUserID, model.ID(claims.UserId))
		c.Set(ContextUsername, claims.Username)
		c.Next()
	}
}

// UserID returns the authenticated caller, or 0 on public routes.
func UserID(c *gin.Context) model.ID {
	if v, ok := c.Get(ContextUserID); ok {
		if id, ok := v.(model.ID); ok {
			return id
		}
	}
	return 0
}
