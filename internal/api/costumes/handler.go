package costumes

import (
	"net/http"
	"strings"

	"costume-rental/internal/api/apiutil"
	"costume-rental/internal/apperr"
	"costume-rental/internal/domain/costumes"

	"github.com/gin-gonic/gin"
)

const (
	listLimit   = 100
	maxList     = 1000
	searchLimit = 50
	maxSearch   = 100
)

type Handler struct {
	costumes *costumes.Service
	maxBytes int64
}

// NewHandler serves the public catalog and the admin costume endpoints. maxBytes caps each uploaded image.
func NewHandler(costumeSvc *costumes.Service, maxBytes int64) *Handler {
	return &Handler{costumes: costumeSvc, maxBytes: maxBytes}
}

// Public catalog

func (h *Handler) List(c *gin.Context) {
	page, err := apiutil.ParsePage(c, listLimit, maxList)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	filter, err := filterFromQuery(c)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	out, err := h.costumes.List(c.Request.Context(), filter.Public(), page.Skip, page.Limit)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, costumes.FormatList(out, h.costumes))
}

func (h *Handler) Search(c *gin.Context) {
	h.search(c, true, func(out []costumes.Costume) any {
		return costumes.FormatList(out, h.costumes)
	})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	costume, err := h.costumes.GetActive(c.Request.Context(), id)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, costumes.FormatPublic(costume, h.costumes))
}

func (h *Handler) Related(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	out, err := h.costumes.Related(c.Request.Context(), id)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, costumes.FormatList(out, h.costumes))
}

// Admin

func (h *Handler) AdminList(c *gin.Context) {
	page, err := apiutil.ParsePage(c, listLimit, maxList)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	filter, err := filterFromQuery(c)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	if filter.IsActive, err = apiutil.OptionalBool(c, "is_active"); err != nil {
		apiutil.Error(c, err)
		return
	}

	out, err := h.costumes.List(c.Request.Context(), filter, page.Skip, page.Limit)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, costumes.FormatAdminList(out, h.costumes))
}

// AdminSearch also finds inactive costumes.
func (h *Handler) AdminSearch(c *gin.Context) {
	h.search(c, false, func(out []costumes.Costume) any {
		return costumes.FormatAdminList(out, h.costumes)
	})
}

func (h *Handler) AdminGet(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	costume, err := h.costumes.Get(c.Request.Context(), id)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, costumes.FormatAdmin(costume, h.costumes))
}

func (h *Handler) Create(c *gin.Context) {
	input, err := createInputFromForm(c)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	uploads, err := readUploads(c, h.maxBytes)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	costume, err := h.costumes.Create(c.Request.Context(), input, uploads)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, costumes.FormatAdmin(costume, h.costumes))
}

func (h *Handler) Update(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	input, remove, err := updateInputFromForm(c)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	uploads, err := readUploads(c, h.maxBytes)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	costume, err := h.costumes.Update(c.Request.Context(), id, input, uploads, remove)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, costumes.FormatAdmin(costume, h.costumes))
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	if err := h.costumes.Delete(c.Request.Context(), id); err != nil {
		apiutil.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdjustAmount reads a signed "delta" from the form (or the query string).
func (h *Handler) AdjustAmount(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	raw := c.PostForm("delta")
	if raw == "" {
		raw = c.Query("delta")
	}
	if strings.TrimSpace(raw) == "" {
		apiutil.Error(c, apperr.Validation("delta is required"))
		return
	}
	delta, err := parseInt("delta", raw)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	costume, err := h.costumes.AdjustAmount(c.Request.Context(), id, delta)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, costumes.FormatAdmin(costume, h.costumes))
}

func (h *Handler) search(c *gin.Context, activeOnly bool, render func([]costumes.Costume) any) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		apiutil.Error(c, apperr.Validation("q is required"))
		return
	}
	page, err := apiutil.ParsePage(c, searchLimit, maxSearch)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	out, err := h.costumes.Search(c.Request.Context(), query, activeOnly, page.Skip, page.Limit)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, render(out))
}
