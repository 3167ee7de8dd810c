package users

import (
	"net/http"
	"strings"

	"costume-rental/internal/api/apiutil"
	"costume-rental/internal/apperr"
	"costume-rental/internal/domain/users"

	"github.com/gin-gonic/gin"
)

const (
	listLimit   = 100
	maxList     = 1000
	searchLimit = 50
	maxSearch   = 100
)

type Handler struct {
	users *users.Service
}

func NewHandler(userSvc *users.Service) *Handler {
	return &Handler{users: userSvc}
}

// List is admin only.
func (h *Handler) List(c *gin.Context) {
	page, err := apiutil.ParsePage(c, listLimit, maxList)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	activeOnly := c.Query("active_only") == "true"

	out, err := h.users.List(c.Request.Context(), page.Skip, page.Limit, activeOnly)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Search is admin only.
func (h *Handler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		apiutil.Error(c, apperr.Validation("query is required"))
		return
	}
	page, err := apiutil.ParsePage(c, searchLimit, maxSearch)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	out, err := h.users.Search(c.Request.Context(), query, page.Skip, page.Limit)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	user, err := h.users.GetVisible(c.Request.Context(), apiutil.CurrentUser(c), id)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) Update(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	var input users.UpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		apiutil.Error(c, apperr.Validation("Invalid request body"))
		return
	}

	user, err := h.users.Update(c.Request.Context(), apiutil.CurrentUser(c), id, input)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	if err := h.users.Delete(c.Request.Context(), apiutil.CurrentUser(c), id); err != nil {
		apiutil.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
