package admin

import (
	"net/http"

	"costume-rental/internal/api/apiutil"
	"costume-rental/internal/apperr"
	"costume-rental/internal/domain/costumes"
	"costume-rental/internal/domain/users"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	users    *users.Service
	costumes *costumes.Service
	log      *logrus.Logger
}

func NewHandler(userSvc *users.Service, costumeSvc *costumes.Service, log *logrus.Logger) *Handler {
	return &Handler{users: userSvc, costumes: costumeSvc, log: log}
}

type AdminStats struct {
	TotalUsers   int64            `json:"total_users"`
	UsersPerRole map[string]int64 `json:"users_per_role"`
	costumes.Stats
}

func (h *Handler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	perRole, err := h.users.CountByRole(ctx)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	catalog, err := h.costumes.Stats(ctx)
	if err != nil {
		apiutil.Error(c, err)
		return
	}

	stats := AdminStats{UsersPerRole: make(map[string]int64, len(perRole)), Stats: catalog}
	for role, n := range perRole {
		stats.UsersPerRole[role.String()] = n
		stats.TotalUsers += n
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var input users.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		apiutil.Error(c, apperr.Validation("Invalid request body"))
		return
	}
	actor := apiutil.CurrentUser(c)
	user, err := h.users.CreateByAdmin(c.Request.Context(), actor, input)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	h.log.WithFields(logrus.Fields{"user_id": user.ID, "actor_id": actor.ID, "role": user.Role.String()}).Info("[Admin] user created")
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	var input users.AdminUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		apiutil.Error(c, apperr.Validation("Invalid request body"))
		return
	}
	user, err := h.users.AdminUpdate(c.Request.Context(), apiutil.CurrentUser(c), id, input)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	if err := h.users.AdminDelete(c.Request.Context(), apiutil.CurrentUser(c), id); err != nil {
		apiutil.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangeRole takes the new role from the "role" query parameter or a JSON body.
func (h *Handler) ChangeRole(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	raw := c.Query("role")
	if raw == "" {
		var body struct {
			Role string `json:"role"`
		}
		_ = c.ShouldBindJSON(&body)
		raw = body.Role
	}
	role, err := users.ParseRole(raw)
	if err != nil {
		apiutil.Error(c, apperr.Validation("role must be one of user admin super_admin"))
		return
	}

	user, err := h.users.ChangeRole(c.Request.Context(), apiutil.CurrentUser(c), id, role)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) Activate(c *gin.Context)   { h.setActive(c, true) }
func (h *Handler) Deactivate(c *gin.Context) { h.setActive(c, false) }

func (h *Handler) setActive(c *gin.Context, active bool) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	user, err := h.users.SetActive(c.Request.Context(), apiutil.CurrentUser(c), id, active)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) Verify(c *gin.Context) {
	id, err := apiutil.ParamID(c, "id")
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	user, err := h.users.Verify(c.Request.Context(), apiutil.CurrentUser(c), id)
	if err != nil {
		apiutil.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
