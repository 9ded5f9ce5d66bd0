package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mirae/config"
	"mirae/ledger"
	"mirae/logger"
)

// Server read-only HTTP reporting API over the trade database. It never
// places orders; the trading cycle runs separately under cron.
type Server struct {
	router   *gin.Engine
	configs  []config.TradingConfig
	ledger   *ledger.Ledger
	tradeLog *logger.TradeLogger
	mode     string
	port     int
}

// NewServer creates the reporting server
func NewServer(configs []config.TradingConfig, lg *ledger.Ledger, tradeLog *logger.TradeLogger, mode string, port int) *Server {
	// Release mode keeps gin's own logging quiet
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router:   router,
		configs:  configs,
		ledger:   lg,
		tradeLog: tradeLog,
		mode:     mode,
		port:     port,
	}
	s.setupRoutes()
	return s
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// setupRoutes sets up routes
func (s *Server) setupRoutes() {
	s.router.Any("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/configs", s.handleConfigs)
		api.GET("/ledger", s.handleLedger)
		api.GET("/trades", s.handleTrades)
		api.GET("/summary", s.handleSummary)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("route not found: %s %s", c.Request.Method, c.Request.URL.Path),
		})
	})
}

// handleHealth health check
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"mode":   s.mode,
		"time":   time.Now().Format("2006-01-02 15:04:05"),
	})
}

// handleConfigs the active trading configs
func (s *Server) handleConfigs(c *gin.Context) {
	c.JSON(http.StatusOK, s.configs)
}

// handleLedger open positions with their entry tranches
func (s *Server) handleLedger(c *gin.Context) {
	records, err := s.ledger.AllRecords()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to read ledger: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, records)
}

// handleTrades recent trades, newest first (?limit=N, default 50)
func (s *Server) handleTrades(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("invalid limit parameter: %q", v),
			})
			return
		}
		limit = n
	}

	trades, err := s.tradeLog.RecentTrades(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to read trades: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, trades)
}

// handleSummary per-instrument aggregates
func (s *Server) handleSummary(c *gin.Context) {
	summaries, err := s.tradeLog.Summaries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to read summaries: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("🌐 API server started at http://localhost%s", addr)
	log.Printf("📊 Endpoints:")
	log.Printf("  • GET /api/configs  - Active trading configs")
	log.Printf("  • GET /api/ledger   - Open positions and entry tranches")
	log.Printf("  • GET /api/trades   - Recent trades (?limit=N)")
	log.Printf("  • GET /api/summary  - Per-instrument aggregates")
	log.Printf("  • GET /health       - Health check")
	log.Println()

	return s.router.Run(addr)
}
