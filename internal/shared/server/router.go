package server

import (
	"github.com/gin-gonic/gin"

	"invoice-backend/internal/bootstrap"
	"invoice-backend/internal/documents"
	"invoice-backend/internal/extraction"
	"invoice-backend/internal/processing"
	"invoice-backend/internal/shared/metrics"
	"invoice-backend/internal/shared/server/middleware"
	"invoice-backend/internal/shared/server/respond"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(app.Cfg.CORSAllowOrigin),
	)

	r.GET("/health", func(c *gin.Context) {
		respond.OK(c, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	if app.Cfg.ObjectStoreType != "s3" {
		// Serves presigned-style URLs produced by the local store.
		r.Static("/local-store", app.Cfg.LocalStoreDir)
	}

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(app.Cfg.Env))

	documents.NewHandler(app.Documents).RegisterRoutes(api)
	extraction.NewHandler(app.Extractions).RegisterRoutes(api)
	processing.NewHandler(app.Processing).RegisterRoutes(api)

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
