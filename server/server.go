package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/versecraft/lyricmem/ai"
	"github.com/versecraft/lyricmem/ai/metrics"
	"github.com/versecraft/lyricmem/engine"
	"github.com/versecraft/lyricmem/ingest"
	"github.com/versecraft/lyricmem/internal/profile"
	apiv1 "github.com/versecraft/lyricmem/server/router/api/v1"
	"github.com/versecraft/lyricmem/store"
)

// Server hosts the HTTP API in front of the retrieval engine.
type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	store      *store.Store
}

func NewServer(ctx context.Context, instanceProfile *profile.Profile, storeInstance *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger())

	s := &Server{
		echoServer: e,
		profile:    instanceProfile,
		store:      storeInstance,
	}

	exporter := metrics.NewExporter(metrics.DefaultConfig())
	storeInstance.SetCacheMetrics(exporter)
	aiConfig := ai.NewConfigFromProfile(instanceProfile)

	embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding)
	if err != nil {
		return nil, err
	}

	var labeler ai.Labeler = ai.NewHeuristicLabeler()
	if aiConfig.Labeler.Enabled {
		modelLabeler, err := ai.NewModelLabeler(&aiConfig.Labeler)
		if err != nil {
			slog.Warn("model labeler unavailable, using heuristics", "error", err)
		} else {
			labeler = ai.NewFallbackLabeler(modelLabeler, ai.NewHeuristicLabeler())
		}
	}

	writer := engine.NewWriter(storeInstance, embedder, exporter)
	retrieverConfig := engine.DefaultRetrieverConfig()
	retrieverConfig.CandidateLimit = instanceProfile.RetrievalCandidateLimit
	retrieverConfig.Timeout = time.Duration(instanceProfile.RetrievalTimeout) * time.Second
	retriever := engine.NewRetriever(storeInstance, embedder, exporter, retrieverConfig)

	pipeline := ingest.NewPipeline(
		ingest.NewIngestor(),
		ingest.NewChunker(ingest.DefaultChunkerConfig()),
		labeler,
		writer,
		exporter,
	)

	apiService := apiv1.NewAPIV1Service(instanceProfile, storeInstance, writer, retriever, pipeline)
	apiService.RegisterRoutes(s.echoServer)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server shutdown")
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	})
}
