package http

import (
	"net/http"
	"time"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	JWTSecret   string
	CORSOrigins []string
}

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

func NewRouter(services *app.Services, feed NotificationFeed, registry ConnectionRegistry, cfg RouterConfig, log *logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.Nop()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	h := NewHandler(services, log)
	auth := NewAuthMiddleware(cfg.JWTSecret, log)

	api := r.Group("/api", auth.RequireAuth())
	{
		api.POST("/tests/:testId/attempts", h.StartAttempt)
		api.GET("/attempts/:attemptId", h.GetAttempt)
		api.PUT("/attempts/:attemptId/progress", h.SaveProgress)
		api.POST("/attempts/:attemptId/submit", h.SubmitAttempt)

		api.GET("/dpp/assignments", h.ListPractice)
		api.POST("/dpp/:assignmentId/submit", h.SubmitPractice)
		api.GET("/dpp/stats", h.PracticeStats)

		api.GET("/me", h.Me)
		api.GET("/me/xp", h.XPHistory)
		api.GET("/me/badges", h.MyBadges)
		api.POST("/me/badges/evaluate", h.EvaluateBadges)


		api.GET("/leaderboard", h.Leaderboard)
		api.GET("/leaderboard/rank", h.LeaderboardRank)
	}

	// these credit XP to an arbitrary user
	admin := r.Group("/api", auth.RequireAuth(), auth.RequireRole(RoleAdmin))
	{
		admin.POST("/dpp/assignments", h.AssignPractice)
		admin.POST("/badges/:badgeId/award", h.AwardBadge)
		admin.POST("/challenges/:challengeId/progress", h.ChallengeProgress)
	}

	ws := NewWSHandler(feed, registry, log)
	r.GET("/ws/notifications", auth.RequireAuth(), ws.ServeWS)
	return r
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
