package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/usecase"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ReadyFunc reports whether startup (restore and re-arm) has finished.
type ReadyFunc func() bool

type Server struct {
	router *gin.Engine
	server *http.Server
	logger *zap.Logger
}

func NewServer(addr string, subscriptions *usecase.SubscriptionUsecase, ready ReadyFunc, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	h := &handlers{subscriptions: subscriptions, ready: ready, logger: logger}
	h.register(router)

	return &Server{
		router: router,
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(
			"http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
