// Package httpapi exposes the timer service over HTTP for browser and
// widget front ends, plus a websocket feed of the countdown displays.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"studytimer/internal/display"
	"studytimer/internal/event"
	"studytimer/internal/pomodoro"
	"studytimer/internal/schedule"
	"studytimer/internal/service"
)

type Handler struct {
	svc *service.Service
}

// New builds the router. hub may be nil, which disables /ws.
func New(svc *service.Service, hub *display.Hub, corsOrigins []string) *gin.Engine {
	h := &Handler{svc: svc}

	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), cors(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if hub != nil {
		engine.GET("/ws", gin.WrapF(hub.HandleWebSocket))
	}

	api := engine.Group("/api")
	api.GET("/state", h.GetState)
	api.POST("/activate", h.Activate)

	timer := api.Group("/timer")
	timer.PUT("/input", h.SetInput)
	timer.POST("/start", h.StartTimer)
	timer.POST("/stop", h.simple(h.svc.StopTimer))
	timer.POST("/reset", h.simple(h.svc.ResetTimer))

	pomo := api.Group("/pomodoro")
	pomo.POST("/enable", h.EnablePomodoro)
	pomo.POST("/disable", h.simple(h.svc.DisablePomodoro))

	sessions := api.Group("/sessions")
	sessions.GET("", h.ListSessions)
	sessions.POST("", h.AddSession)
	sessions.PUT("/:id", h.UpdateSession)
	sessions.DELETE("/:id", h.DeleteSession)
	sessions.POST("/:id/reset", h.ResetSession)

	study := api.Group("/study")
	study.POST("/start", h.StartStudy)
	study.POST("/pause", h.simple(h.svc.PauseStudy))
	study.POST("/resume", h.simple(h.svc.ResumeStudy))
	study.POST("/stop", h.simple(h.svc.StopStudy))
	study.POST("/reset", h.simple(h.svc.ResetStudy))

	prompt := api.Group("/prompt")
	prompt.POST("/confirm", h.simple(h.svc.ConfirmPrompt))
	prompt.POST("/dismiss", h.simple(h.svc.DismissPrompt))

	api.GET("/history", h.GetHistory)

	return engine
}

func (h *Handler) GetState(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": st})
}

// simple adapts an argument-free action that answers with the new state.
func (h *Handler) simple(action func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := action(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		h.GetState(c)
	}
}

func (h *Handler) Activate(c *gin.Context) {
	h.simple(h.svc.Activate)(c)
}

type inputRequest struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (h *Handler) SetInput(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	if err := h.svc.SetInput(c.Request.Context(), req.Hours, req.Minutes); err != nil {
		writeError(c, err)
		return
	}
	h.GetState(c)
}

type startRequest struct {
	Seconds int `json:"seconds"`
}

func (h *Handler) StartTimer(c *gin.Context) {
	var req startRequest
	if !bindOptional(c, &req) {
		return
	}
	if err := h.svc.StartTimer(c.Request.Context(), req.Seconds); err != nil {
		writeError(c, err)
		return
	}
	h.GetState(c)
}

type enableRequest struct {
	Settings *pomodoro.Settings `json:"settings"`
}

func (h *Handler) EnablePomodoro(c *gin.Context) {
	var req enableRequest
	if !bindOptional(c, &req) {
		return
	}
	if _, err := h.svc.EnablePomodoro(c.Request.Context(), req.Settings); err != nil {
		writeError(c, err)
		return
	}
	h.GetState(c)
}

func (h *Handler) ListSessions(c *gin.Context) {
	day := -1
	if raw := c.Query("day"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "invalid_day", "message": "day must be a number"},
			})
			return
		}
		day = d
	}
	sessions, err := h.svc.Sessions(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type addSessionRequest struct {
	Day           int    `json:"day"`
	Subject       string `json:"subject"`
	StudyDuration int    `json:"studyDuration"`
	BreakDuration int    `json:"breakDuration"`
}

func (h *Handler) AddSession(c *gin.Context) {
	var req addSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	sess, err := h.svc.AddSession(c.Request.Context(), req.Day, req.Subject, req.StudyDuration, req.BreakDuration)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess})
}

func (h *Handler) UpdateSession(c *gin.Context) {
	var req schedule.SessionUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidJSON(c)
		return
	}
	sess, err := h.svc.UpdateSession(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ResetSession(c *gin.Context) {
	sess, err := h.svc.ResetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

type studyStartRequest struct {
	ID    string         `json:"id"`
	Phase schedule.Phase `json:"phase"`
}

func (h *Handler) StartStudy(c *gin.Context) {
	var req studyStartRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		invalidJSON(c)
		return
	}
	if err := h.svc.StartStudy(c.Request.Context(), req.ID, req.Phase); err != nil {
		writeError(c, err)
		return
	}
	h.GetState(c)
}

func (h *Handler) GetHistory(c *gin.Context) {
	days := 7
	if raw := c.Query("days"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "invalid_days", "message": "days must be a positive number"},
			})
			return
		}
		days = d
	}
	var types []event.EventType
	for _, t := range c.QueryArray("type") {
		types = append(types, event.EventType(t))
	}

	end := time.Now()
	events, err := h.svc.History(c.Request.Context(), end.AddDate(0, 0, -days), end, types...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// bindOptional decodes a JSON body when one was sent. It writes the error
// response and returns false on malformed input.
func bindOptional(c *gin.Context, out interface{}) bool {
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		invalidJSON(c)
		return false
	}
	return true
}
