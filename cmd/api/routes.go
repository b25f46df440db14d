package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/victor297/student-clearance/api/swagger"
	"github.com/victor297/student-clearance/internal/handler"
	"github.com/victor297/student-clearance/internal/middleware"
	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/internal/service"
	"github.com/victor297/student-clearance/pkg/config"
	"github.com/victor297/student-clearance/pkg/logger"
	corsmiddleware "github.com/victor297/student-clearance/pkg/middleware/cors"
	reqidmiddleware "github.com/victor297/student-clearance/pkg/middleware/requestid"
)

type services struct {
	auth          *service.AuthService
	users         *service.UserService
	clearance     *service.ClearanceService
	documents     *service.DocumentService
	imports       *service.ImportService
	departments   *service.DepartmentService
	notifications *service.NotificationService
	dashboard     *service.DashboardService
	exports       *service.ExportService
	metrics       *service.MetricsService
	audit         middleware.AuditWriter
}

func newRouter(cfg *config.Config, logr *zap.Logger, svc services, deps map[string]handler.Pinger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svc.metrics))
	r.Use(middleware.WithResponseMeta())
	r.MaxMultipartMemory = cfg.Uploads.MaxFileSizeBytes

	metricsHandler := handler.NewMetricsHandler(svc.metrics, deps)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(svc.auth)
	userHandler := handler.NewUserHandler(svc.users)
	clearanceHandler := handler.NewClearanceHandler(svc.clearance)
	documentHandler := handler.NewDocumentHandler(svc.documents)
	importHandler := handler.NewImportHandler(svc.imports)
	departmentHandler := handler.NewDepartmentHandler(svc.departments)
	notificationHandler := handler.NewNotificationHandler(svc.notifications)
	dashboardHandler := handler.NewDashboardHandler(svc.dashboard)
	exportHandler := handler.NewExportHandler(svc.exports)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	// Signed links carry their own authorisation.
	api.GET("/documents/:id/download", documentHandler.Download)
	api.GET("/exports/:token", exportHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(svc.auth))
	secured.GET("/auth/me", authHandler.Me)

	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleOfficer)
	student := middleware.RequireRoles(models.RoleStudent)
	officer := middleware.RequireRoles(models.RoleOfficer)

	users := secured.Group("/users")
	users.GET("", admin, userHandler.List)
	users.GET("/officers/:department", staff, userHandler.Officers)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.RoleSelf), userHandler.Get)
	users.PATCH("/:id/eligibility", staff, userHandler.SetEligibility)
	users.PATCH("/:id/role", admin, userHandler.UpdateRole)
	users.DELETE("/:id", admin, userHandler.Delete)

	clearance := secured.Group("/clearance")
	clearance.POST("", student, clearanceHandler.Create)
	clearance.GET("/my-requests", student, clearanceHandler.Mine)
	clearance.GET("/pending", officer, clearanceHandler.Pending)
	clearance.GET("/all", admin, clearanceHandler.All)
	clearance.GET("/:id", clearanceHandler.Get)
	clearance.PUT("/:id/decision", officer, clearanceHandler.Decide)
	clearance.GET("/:id/certificate",
		middleware.Audit(svc.audit, models.AuditActionCertificate, "clearance_requests"),
		clearanceHandler.Certificate)

	documents := secured.Group("/documents")
	documents.POST("", student, documentHandler.Upload)
	documents.GET("/request/:id", documentHandler.ListByRequest)
	documents.GET("/department/:department", staff, documentHandler.ListByDepartment)
	documents.GET("/:id/link", documentHandler.Link)

	imports := secured.Group("/imports", admin)
	imports.POST("/students", importHandler.Students)
	imports.POST("/eligibility", importHandler.Eligibility)

	departments := secured.Group("/departments")
	departments.GET("", departmentHandler.List)
	departments.POST("", admin, departmentHandler.Create)
	departments.POST("/:id/officers", admin, departmentHandler.AddOfficer)
	departments.DELETE("/:id/officers/:officerId", admin, departmentHandler.RemoveOfficer)

	notifications := secured.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.GET("/unread-count", notificationHandler.UnreadCount)
	notifications.PATCH("/read-all", notificationHandler.MarkAllRead)
	notifications.PATCH("/:id/read", notificationHandler.MarkRead)

	secured.GET("/dashboard", admin, dashboardHandler.Admin)
	secured.POST("/exports/requests", admin,
		middleware.Audit(svc.audit, models.AuditActionExportGenerate, "clearance_requests"),
		exportHandler.Generate)

	return r
}
