package routes

import (
	"net/http"

	adminapi "costume-rental/internal/api/admin"
	authapi "costume-rental/internal/api/auth"
	costumesapi "costume-rental/internal/api/costumes"
	"costume-rental/internal/api/uploads"
	usersapi "costume-rental/internal/api/users"
	"costume-rental/internal/app/http/middleware"
	"costume-rental/internal/domain/costumes"
	"costume-rental/internal/domain/users"
	"costume-rental/internal/infra/security"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps is everything the route table hands to handlers.
type Deps struct {
	APIPrefix      string
	DB             *gorm.DB
	Users          *users.Service
	Costumes       *costumes.Service
	Tokens         *security.TokenService
	Revocations    security.Revocations
	MaxUploadBytes int64
	Log            *logrus.Logger

	// Exactly one of UploadsDir and UploadsObjects is set; it backs UploadsPrefix.
	UploadsPrefix  string
	UploadsDir     string
	UploadsObjects uploads.Opener
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			d.Log.WithError(err).Error("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	switch {
	case d.UploadsObjects != nil:
		r.GET(d.UploadsPrefix+"/*key", uploads.Serve(d.UploadsObjects, d.Log))
	case d.UploadsDir != "":
		r.Static(d.UploadsPrefix, d.UploadsDir)
	}

	authH := authapi.NewHandler(d.Users, d.Tokens, d.Revocations, d.Log)
	usersH := usersapi.NewHandler(d.Users)
	adminH := adminapi.NewHandler(d.Users, d.Costumes, d.Log)
	costumesH := costumesapi.NewHandler(d.Costumes, d.MaxUploadBytes)

	requireAuth := middleware.AuthMiddleware(d.Tokens, d.Users)
	requireAdmin := middleware.RequireRole(users.RoleAdmin)

	api := r.Group(d.APIPrefix)

	// JSON bodies only; costume forms are cleaned by the costume service.
	public := api.Group("/")
	public.Use(middleware.SanitizeAndCleanInputMiddleware())

	public.POST("/auth/register", authH.Register)
	public.POST("/auth/login", authH.Login)
	public.POST("/auth/refresh", authH.Refresh)
	public.POST("/auth/logout", authH.Logout)

	api.GET("/costumes", costumesH.List)
	api.GET("/costumes/search", costumesH.Search)
	api.GET("/costumes/:id", costumesH.Get)
	api.GET("/costumes/:id/related", costumesH.Related)

	// Authenticated
	auth := api.Group("/")
	auth.Use(requireAuth, middleware.SanitizeAndCleanInputMiddleware())
	auth.GET("/auth/me", authH.Me)
	auth.GET("/users", requireAdmin, usersH.List)
	auth.GET("/users/search", requireAdmin, usersH.Search)
	auth.GET("/users/:id", usersH.Get)
	auth.PUT("/users/:id", usersH.Update)
	auth.DELETE("/users/:id", usersH.Delete)

	// Admin routes
	admin := api.Group("/admin")
	admin.Use(requireAuth, requireAdmin, middleware.SanitizeAndCleanInputMiddleware())
	admin.GET("/stats", adminH.Stats)

	admin.POST("/users", adminH.CreateUser)
	admin.PUT("/users/:id", adminH.UpdateUser)
	admin.DELETE("/users/:id", adminH.DeleteUser)
	admin.PUT("/users/:id/role", adminH.ChangeRole)
	admin.PUT("/users/:id/activate", adminH.Activate)
	admin.PUT("/users/:id/deactivate", adminH.Deactivate)
	admin.PUT("/users/:id/verify", adminH.Verify)

	admin.GET("/costumes", costumesH.AdminList)
	admin.GET("/costumes/search/all", costumesH.AdminSearch)
	admin.GET("/costumes/:id", costumesH.AdminGet)
	admin.POST("/costumes", costumesH.Create)
	admin.PUT("/costumes/:id", costumesH.Update)
	admin.DELETE("/costumes/:id", costumesH.Delete)
	admin.POST("/costumes/:id/amount", costumesH.AdjustAmount)
}
