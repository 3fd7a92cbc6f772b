package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/hydra-workflows/internal/api/handlers"
	"github.com/andresuchdata/hydra-workflows/internal/api/middleware"
	"github.com/andresuchdata/hydra-workflows/internal/metrics"
	"github.com/andresuchdata/hydra-workflows/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	RunService   *service.RunService
	AssetService *service.AssetService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	corsConfig := cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		origins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(string) bool { return true }
		} else if len(origins) > 0 {
			corsConfig.AllowOrigins = origins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.RunService != nil {
			runHandler := handlers.NewRunHandler(services.RunService)
			runGroup := apiGroup.Group("/runs")
			{
				runGroup.GET("", runHandler.ListRuns)
				runGroup.POST("/imagery", runHandler.StartImagery)
				runGroup.POST("/ingest", runHandler.StartIngest)
				runGroup.GET("/:id", runHandler.GetRun)
			}

			jobGroup := apiGroup.Group("/jobs")
			{
				jobGroup.GET("/:id", runHandler.GetJob)
				jobGroup.POST("/:id/cancel", runHandler.CancelJob)
			}
			apiGroup.GET("/node", runHandler.NodeInfo)
		}

		if services.AssetService != nil {
			assetHandler := handlers.NewAssetHandler(services.AssetService)
			assetGroup := apiGroup.Group("/assets")
			{
				assetGroup.GET("", assetHandler.ListAssets)
				assetGroup.GET("/:id", assetHandler.GetAsset)
			}
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			switch trimmed {
			case "":
			case "*":
				allowAll = true
			default:
				parsed = append(parsed, trimmed)
			}
		}
	}
	return parsed, allowAll
}
