package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tuckbot-api/internal/config"
	"tuckbot-api/internal/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// NewRouter wires middleware and the video routes. The auth gate runs on
// every route, including unknown ones.
func NewRouter(videos *VideoHandler, cfg config.APIConfig, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(requestID(logger))
	router.Use(logging.RequestLogger(logger))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.FromContext(c.Request.Context(), logger).Error("panic while handling request", "panic", recovered)
		abortWith(c, Response{
			Status:  http.StatusInternalServerError,
			Message: "Internal server error",
		})
	}))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{"Origin", "Content-Type", TokenHeader, requestIDHeader},
			ExposeHeaders: []string{requestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}
	router.Use(TokenAuth(cfg, logger))

	router.NoRoute(func(c *gin.Context) {
		respond(c, Response{
			Status:  http.StatusNotFound,
			Message: "Route not found",
		})
	})

	router.POST("/prune/:redditPostId", videos.PruneVideo)
	router.GET("/stalevideos", videos.GetStaleVideos)
	router.POST("/", videos.CreateVideo)
	router.GET("/all", videos.GetAllVideos)
	router.GET("/", videos.GetVideo)
	router.GET("/:redditPostId", videos.GetVideo)
	router.DELETE("/", videos.DeleteVideo)
	router.DELETE("/:redditPostId", videos.DeleteVideo)

	return router
}

// requestID propagates or generates X-Request-Id and stores a logger
// annotated with it on the request context.
func requestID(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		ctx := logging.ContextWithRequestID(c.Request.Context(), id)
		ctx = logging.ContextWithLogger(ctx, logger.With("request_id", id))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
