// Package apiutil holds what every handler package shares: error responses, the
// authenticated user in the gin context and pagination parsing.
package apiutil

import (
	"errors"
	"net/http"
	"strconv"

	"costume-rental/internal/apperr"
	"costume-rental/internal/domain/users"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const currentUserKey = "current_user"

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:         http.StatusBadRequest,
	apperr.KindUnauthorized:       http.StatusUnauthorized,
	apperr.KindForbidden:          http.StatusForbidden,
	apperr.KindNotFound:           http.StatusNotFound,
	apperr.KindConflict:           http.StatusConflict,
	apperr.KindInvariantViolation: http.StatusUnprocessableEntity,
}

// Error writes err as {"error", "code"} with the status for its kind. Unclassified
// errors are logged and answered with a generic 500.
func Error(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if status, ok := statusByKind[appErr.Kind]; ok {
			c.AbortWithStatusJSON(status, gin.H{"error": appErr.Message, "code": appErr.Code})
			return
		}
	}
	logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal"})
}

func SetCurrentUser(c *gin.Context, u *users.User) {
	c.Set(currentUserKey, u)
	c.Set("user_id", u.ID)
}

// CurrentUser is only valid behind the auth middleware.
func CurrentUser(c *gin.Context) *users.User {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*users.User)
	return u
}

func ParamID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("Invalid " + name)
	}
	return uint(id), nil
}

type Page struct {
	Skip  int
	Limit int
}

// ParsePage reads skip (>= 0) and limit (1..maxLimit, default def) from the query string.
func ParsePage(c *gin.Context, def, maxLimit int) (Page, error) {
	p := Page{Limit: def}
	if raw := c.Query("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, apperr.Validation("skip must be a non-negative integer")
		}
		p.Skip = n
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			return p, apperr.Validation("limit must be between 1 and " + strconv.Itoa(maxLimit))
		}
		p.Limit = n
	}
	return p, nil
}

// OptionalBool parses a query flag; absent means nil.
func OptionalBool(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation(name + " must be true or false")
	}
	return &b, nil
}
