package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/logger"
	"github.com/gin-gonic/gin"
)

const defaultLeaderboardLimit = 10

type Handler struct {
	services *app.Services
	log      *logger.Logger
}

func NewHandler(services *app.Services, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{services: services, log: log.With("component", "http")}
}

type progressRequest struct {
	Answers json.RawMessage `json:"answers"`
}

type submitRequest struct {
	Answers      json.RawMessage `json:"answers"`
	IsAutoSubmit bool            `json:"isAutoSubmit"`
}

type practiceSubmitRequest struct {
	Answer    domain.Answer `json:"answer"`
	TimeSpent int           `json:"timeSpent"`
}

type assignRequest struct {
	UserID      string   `json:"userId" binding:"required"`
	DPPID       string   `json:"dppId"`
	QuestionIDs []string `json:"questionIds" binding:"required,min=1"`
}

type awardRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Progress *int   `json:"progress"`
}

type challengeRequest struct {
	UserID string `json:"userId" binding:"required"`
	Delta  int    `json:"delta"`
}

type xpResponse struct {
	History        []domain.XPEvent   `json:"history"`
	Reconciliation app.Reconciliation `json:"reconciliation"`
}

func badRequest(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, "validation", err.Error())
}

func (h *Handler) StartAttempt(c *gin.Context) {
	attempt, err := h.services.Attempts.Start(c.Request.Context(), callerID(c), c.Param("testId"))
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	c.JSON(http.StatusCreated, attempt)
}

func (h *Handler) GetAttempt(c *gin.Context) {
	view, err := h.services.Attempts.Get(c.Request.Context(), callerID(c), c.Param("attemptId"))
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	respondOK(c, view)
}

func (h *Handler) SaveProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	answers, err := domain.ParseAnswers(req.Answers)
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	res, err := h.services.Attempts.SaveProgress(c.Request.Context(), callerID(c), c.Param("attemptId"), answers)
	if err != nil {
		writeError(c, h.log, err, "failed to save progress")
		return
	}
	respondOK(c, res)
}

func (h *Handler) SubmitAttempt(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	answers, err := domain.ParseAnswers(req.Answers)
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	res, err := h.services.Attempts.Submit(c.Request.Context(), callerID(c), c.Param("attemptId"), answers, req.IsAutoSubmit)
	if err != nil {
		writeError(c, h.log, err, "failed to submit")
		return
	}
	respondOK(c, res)
}

func (h *Handler) AssignPractice(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	assigned, err := h.services.Practice.Assign(c.Request.Context(), req.UserID, req.DPPID, req.QuestionIDs)
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	c.JSON(http.StatusCreated, assigned)
}

func (h *Handler) ListPractice(c *gin.Context) {
	assigned, err := h.services.Practice.Assignments(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	respondOK(c, assigned)
}

func (h *Handler) SubmitPractice(c *gin.Context) {
	var req practiceSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.services.Practice.Submit(c.Request.Context(), callerID(c), c.Param("assignmentId"), req.Answer, req.TimeSpent)
	if err != nil {
		writeError(c, h.log, err, "failed to submit")
		return
	}
	respondOK(c, res)
}

func (h *Handler) PracticeStats(c *gin.Context) {
	stats, err := h.services.Practice.Stats(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	respondOK(c, stats)
}

// Me returns the caller's ledger row, creating it on first sight.
func (h *Handler) Me(c *gin.Context) {
	user, err := h.services.Ledger.EnsureUser(c.Request.Context(), callerID(c), c.GetString(ctxUserName))
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	respondOK(c, user)
}

func (h *Handler) XPHistory(c *gin.Context) {
	ctx := c.Request.Context()
	history, err := h.services.Ledger.History(ctx, callerID(c))
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	rec, err := h.services.Ledger.Reconcile(ctx, callerID(c))
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	respondOK(c, xpResponse{History: history, Reconciliation: rec})
}

func (h *Handler) MyBadges(c *gin.Context) {
	badges, err := h.services.Awards.Badges(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	respondOK(c, badges)
}

func (h *Handler) EvaluateBadges(c *gin.Context) {
	unlocked, err := h.services.Awards.Evaluate(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	if unlocked == nil {
		unlocked = []domain.UserBadge{}
	}
	respondOK(c, gin.H{"unlocked": unlocked})
}

func (h *Handler) AwardBadge(c *gin.Context) {
	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ub, err := h.services.Awards.GrantBadge(c.Request.Context(), req.UserID, c.Param("badgeId"), req.Progress)
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	respondOK(c, ub)
}

func (h *Handler) ChallengeProgress(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.services.Awards.UpdateChallengeProgress(c.Request.Context(), req.UserID, c.Param("challengeId"), req.Delta)
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	respondOK(c, res)
}

func (h *Handler) Leaderboard(c *gin.Context) {
	limit := defaultLeaderboardLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "validation", "limit must be a positive integer")
			return
		}
		limit = n
	}
	top, err := h.services.Leaderboard.Top(c.Request.Context(), c.Query("subjectId"), limit)
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	respondOK(c, top)
}

func (h *Handler) LeaderboardRank(c *gin.Context) {
	standing, err := h.services.Leaderboard.Rank(c.Request.Context(), callerID(c), c.Query("subjectId"))
	if err != nil {
		writeError(c, h.log, err, "")
		return
	}
	respondOK(c, standing)
}
