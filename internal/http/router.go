package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/carebot-ai/voice-edge/internal/agent"
	"github.com/carebot-ai/voice-edge/internal/journal"
)

// Runner executes one agent turn for a text input.
type Runner interface {
	RunTurn(ctx context.Context, input string) (agent.Result, error)
}

// Speaker voices a line of text on the local speaker.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// NewRouter builds the local control and inspection surface.
func NewRouter(store *journal.Journal, runner Runner, speaker Speaker, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/journal", func(c *gin.Context) {
		c.JSON(http.StatusOK, store.LoadAll())
	})

	router.POST("/agent", func(c *gin.Context) {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}
		if runner == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "agent is not configured"})
			return
		}
		result, err := runner.RunTurn(c.Request.Context(), req.Text)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		entry := journal.NewEntry(req.Text, result.MovementRequired, result.VerbalOutput, result.MotionPlan)
		if err := store.Append(entry); err != nil && logger != nil {
			logger.Error("journal append failed", zap.Error(err))
		}
		c.JSON(http.StatusOK, entry)
	})

	router.POST("/say", func(c *gin.Context) {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}
		if speaker == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "speech output unavailable"})
			return
		}
		if err := speaker.Say(c.Request.Context(), req.Text); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "spoken"})
	})

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		if logger == nil {
			return
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
		)
	}
}
