package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"BreakoutSentinel/internal/telemetry"
)

// Response is the JSON envelope for API replies.
type Response struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server exposes health, metrics, status and the telemetry stream.
type Server struct {
	srv *http.Server
}

// NewRouter builds the ops HTTP routes.
func NewRouter(board *telemetry.Board, hub *telemetry.Hub) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "ok\n")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/api/status", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, Response{
			Success: true,
			Code:    http.StatusOK,
			Message: http.StatusText(http.StatusOK),
			Data:    board.Snapshot(),
		})
	})
	router.GET("/api/ledger", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, Response{
			Success: true,
			Code:    http.StatusOK,
			Message: http.StatusText(http.StatusOK),
			Data:    board.Snapshot().Ledger,
		})
	})

	if hub != nil {
		router.GET("/ws", func(ctx *gin.Context) {
			hub.ServeWS(ctx.Writer, ctx.Request)
		})
	}
	return router
}

// New creates a server listening on addr.
func New(addr string, board *telemetry.Board, hub *telemetry.Hub) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           NewRouter(board, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		log.Printf("[INFO] ops server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] ops server: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
