// Package api exposes a small HTTP surface over the running engine:
// read-only status endpoints plus the manual resume action.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gridbot/logger"
	"gridbot/store"
	"gridbot/trader"
)

// Server HTTP API server
type Server struct {
	router     *gin.Engine
	engine     *trader.Engine
	store      *store.Store
	httpServer *http.Server
	port       int
}

// NewServer creates the API server around a running engine.
func NewServer(engine *trader.Engine, st *store.Store, port int) *Server {
	// Release mode keeps the request log quiet.
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router: router,
		engine: engine,
		store:  st,
		port:   port,
	}
	s.setupRoutes()
	return s
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.Any("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)
		api.GET("/grid", s.handleGrid)
		api.GET("/risk", s.handleRisk)
		api.GET("/regime", s.handleRegime)
		api.GET("/trades", s.handleTrades)
		api.GET("/events", s.handleEvents)
		api.POST("/resume", s.handleResume)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
}

func (s *Server) handleStatus(c *gin.Context) {
	ledger := s.engine.Ledger()
	halted, haltReason := ledger.Halted()
	paused, pauseReason := s.engine.Risk().Paused()

	c.JSON(http.StatusOK, gin.H{
		"grid_config":   ledger.Config(),
		"filled_levels": ledger.FilledCount(),
		"held_size":     ledger.HeldSize(),
		"total_profit":  ledger.TotalProfit(),
		"trade_count":   ledger.TradeCount(),
		"halted":        halted,
		"halt_reason":   haltReason,
		"risk_paused":   paused,
		"pause_reason":  pauseReason,
	})
}

func (s *Server) handleGrid(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Ledger().State())
}

func (s *Server) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":      s.engine.Risk().State(),
		"assessment": s.engine.LatestRisk(),
	})
}

func (s *Server) handleRegime(c *gin.Context) {
	assessment := s.engine.LatestAssessment()
	if assessment == nil {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"available":            true,
		"timestamp":            assessment.Timestamp,
		"environment":          assessment.Environment.String(),
		"score":                assessment.Score,
		"recommended_position": assessment.RecommendedPosition,
		"should_trade":         assessment.ShouldTrade,
		"grid_params":          assessment.GridParams,
		"warnings":             assessment.Warnings,
	})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, []store.TradeRecord{})
		return
	}
	symbol := c.DefaultQuery("symbol", s.engine.Ledger().Config().Symbol)
	trades, err := s.store.Trades().Recent(symbol, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, []store.EventRecord{})
		return
	}
	events, err := s.store.Events().Recent(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

// handleResume clears a halt or risk pause after operator review.
func (s *Server) handleResume(c *gin.Context) {
	s.engine.Resume()
	c.JSON(http.StatusOK, gin.H{"resumed": true})
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}
	go func() {
		logger.Infof("🌐 API server listening on :%d", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("❌ API server failed: %v", err)
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
