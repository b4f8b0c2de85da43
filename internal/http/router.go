package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/karibu-backend/internal/http/handlers"
	httpMW "github.com/yungbote/karibu-backend/internal/http/middleware"
	"github.com/yungbote/karibu-backend/internal/observability"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

const adminRole = "admin"

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware

	DocumentHandler *httpH.DocumentHandler
	DNAHandler      *httpH.DNAHandler
	HealthHandler   *httpH.HealthHandler

	Metrics     *observability.Metrics
	CORSOrigins []string
	// TracingService enables otelgin spans under this service name.
	TracingService string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingService != "" {
		r.Use(otelgin.Middleware(cfg.TracingService))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics, "/metrics", "/healthcheck", "/api/health/status", "/api/health/ready"))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if cfg.HealthHandler != nil {
		api.GET("/health/status", cfg.HealthHandler.HealthCheck)
		api.GET("/health/ready", cfg.HealthHandler.Ready)
	}

	if cfg.AuthMiddleware == nil {
		return r
	}
	admin := api.Group("/")
	admin.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireRole(adminRole))
	{
		// Documents
		if cfg.DocumentHandler != nil {
			admin.POST("/documents/upload", cfg.DocumentHandler.Upload)
			admin.GET("/documents", cfg.DocumentHandler.List)
			admin.GET("/documents/:id", cfg.DocumentHandler.Get)
			admin.POST("/documents/:id/reprocess", cfg.DocumentHandler.Reprocess)
			admin.DELETE("/documents/:id", cfg.DocumentHandler.Delete)
		}

		// DNA
		if cfg.DNAHandler != nil {
			admin.GET("/dna", cfg.DNAHandler.Tree)
			admin.POST("/dna/topics", cfg.DNAHandler.CreateTopic)
			admin.PATCH("/dna/topics/:id", cfg.DNAHandler.UpdateTopic)
			admin.DELETE("/dna/topics/:id", cfg.DNAHandler.DeleteTopic)
			admin.POST("/dna/topics/:id/subtopics", cfg.DNAHandler.CreateSubtopic)
			admin.PATCH("/dna/subtopics/:id", cfg.DNAHandler.UpdateSubtopic)
			admin.DELETE("/dna/subtopics/:id", cfg.DNAHandler.DeleteSubtopic)
			admin.POST("/dna/subtopics/:id/synthesize", cfg.DNAHandler.Synthesize)
			admin.PATCH("/dna/values/:id/approval", cfg.DNAHandler.SetApproval)
			admin.DELETE("/dna/values/:id", cfg.DNAHandler.DeleteValue)
		}
	}

	return r
}
