package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"

	"github.com/shelfmark/shelfsync/internal/version"
)

func SetupRoutes(deps *Deps) http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20 // 8 MiB

	httpLogger := slog.Default().WithGroup("http")
	r.Use(slogGin.NewWithConfig(httpLogger, slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	}))
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.BestSpeed))
	r.Use(cors.Default())

	syncH := NewSyncHandler(deps.Coord, deps.Store)
	booksH := NewBooksHandler(deps.Store)
	settingsH := NewSettingsHandler(deps.Store, deps.EnvFile)
	coversH := NewCoversHandler(deps.Store)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Version})
	})
	r.GET("/covers/:id", coversH.Get)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/books", booksH.List)
		v1.POST("/sync", syncH.Trigger)
		v1.GET("/sync/status", syncH.Status)
		v1.GET("/settings", settingsH.Get)
		v1.PUT("/settings", settingsH.Update)
	}

	return r
}
