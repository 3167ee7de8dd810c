package middleware

import (
	"strings"

	"costume-rental/internal/api/apiutil"
	"costume-rental/internal/apperr"
	"costume-rental/internal/domain/users"
	"costume-rental/internal/infra/security"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware accepts a Bearer access token and loads its user, who must still be active.
func AuthMiddleware(tokens *security.TokenService, userSvc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apiutil.Error(c, apperr.ErrInvalidToken.With("Authorization header missing"))
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || strings.TrimSpace(tokenString) == "" {
			apiutil.Error(c, apperr.ErrInvalidToken.With("Bearer token malformed"))
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(tokenString), security.AccessToken)
		if err != nil {
			apiutil.Error(c, err)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			apiutil.Error(c, apperr.ErrInvalidToken)
			return
		}

		user, err := userSvc.Get(c.Request.Context(), userID)
		if err != nil || !user.IsActive {
			apiutil.Error(c, apperr.ErrInactiveUser)
			return
		}

		apiutil.SetCurrentUser(c, user)
		c.Next()
	}
}

// RequireRole lets through users whose role is at least min.
func RequireRole(min users.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := apiutil.CurrentUser(c)
		if user == nil {
			apiutil.Error(c, apperr.ErrInvalidToken)
			return
		}
		if !user.Role.AtLeast(min) {
			apiutil.Error(c, apperr.ErrCannotManage)
			return
		}
		c.Next()
	}
}
