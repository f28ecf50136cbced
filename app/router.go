package app

import (
	"time"

	"github.com/draiimon/PanicSense-Final-sub000/app/ratelimit"
	"github.com/draiimon/PanicSense-Final-sub000/auth"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(s *Server) (*gin.Engine, error) {
	var verifier *auth.Verifier
	if !auth.LocalBypass(s.cfg.Auth) {
		v, err := auth.NewVerifier(s.cfg.Auth)
		if err != nil {
			return nil, err
		}
		verifier = v
	}
	return newRouter(s, verifier), nil
}

func newRouter(s *Server, verifier *auth.Verifier) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s))
	router.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.Server.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Session-ID"},
		ExposeHeaders: []string{
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After",
		},
		MaxAge: 12 * time.Hour,
	}))

	limit := func(class ratelimit.Class) gin.HandlerFunc {
		return ratelimit.Middleware(s.limiter, class)
	}

	router.GET("/health", s.Health)

	api := router.Group("/api")
	api.POST("/upload-csv", limit(ratelimit.ClassUpload), s.UploadCSV)
	api.POST("/cancel-upload/:sessionId", limit(ratelimit.ClassUpload), s.CancelUpload)
	api.GET("/upload-progress/:sessionId", limit(ratelimit.ClassStandard), s.StreamProgress)
	api.GET("/upload-sessions/:sessionId", limit(ratelimit.ClassStandard), s.GetSession)
	api.GET("/upload-sessions/:sessionId/results", limit(ratelimit.ClassStandard), s.GetSessionResults)
	api.GET("/active-upload", limit(ratelimit.ClassStandard), s.GetActiveUpload)
	api.GET("/usage-stats", limit(ratelimit.ClassStandard), s.GetUsageStats)
	api.DELETE("/files/:fileId/sessions", limit(ratelimit.ClassStandard), s.DeleteFileSessions)
	api.POST("/analyze-text", limit(ratelimit.ClassAnalysis), s.AnalyzeText)
	api.POST("/sentiment-feedback", limit(ratelimit.ClassAnalysis), s.SubmitFeedback)

	admin := api.Group("/admin")
	admin.Use(limit(ratelimit.ClassAdmin), auth.RequireOperator(auth.Guard{
		Verifier: verifier,
		Scope:    s.cfg.Auth.Scope,
		Bypass:   auth.LocalBypass(s.cfg.Auth),
		Logger:   s.logger,
	}))
	admin.POST("/cancel-all", s.CancelAll)
	admin.POST("/cleanup-sessions", s.CleanupSessions)
	admin.GET("/console-logs", s.ConsoleLogs)
	admin.GET("/active-processes", s.ActiveProcesses)

	return router
}

func requestLogger(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"took", time.Since(start))
	}
}
