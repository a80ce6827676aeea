// Package api serves the current-state table, change log, run history and
// digest views as JSON, and accepts manual ingestion triggers.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/richroberts-prog/air-demand/internal/digest"
	"github.com/richroberts-prog/air-demand/internal/model"
)

// Trigger starts one ingestion cycle.
type Trigger interface {
	Poll(ctx context.Context) (model.RunResult, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	store   model.RoleStore
	digests *digest.Builder
	trigger Trigger
	logger  *slog.Logger
	app     *fiber.App
}

// NewServer builds the fiber app. trigger may be nil, in which case manual
// runs are answered with 404.
func NewServer(store model.RoleStore, digests *digest.Builder, trigger Trigger, logger *slog.Logger) *Server {
	s := &Server{
		store:   store,
		digests: digests,
		trigger: trigger,
		logger:  logger,
	}

	app := fiber.New(fiber.Config{AppName: "airdemand"})
	app.Use(s.accessLog)
	app.Get("/health", s.health)

	v1 := app.Group("/api/v1")
	v1.Get("/roles", s.listRoles)
	v1.Get("/roles/:id", s.getRole)
	v1.Get("/changes", s.listChanges)
	v1.Get("/runs", s.listRuns)
	v1.Get("/runs/:id", s.getRun)
	v1.Get("/digest", s.getDigest)
	if trigger != nil {
		v1.Post("/runs", s.triggerRun)
	}

	s.app = app
	return s
}

// App exposes the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	s.logger.Info("api listening", "addr", addr)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down api")
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) accessLog(c fiber.Ctx) error {
	start := time.Now()

	rid := c.Get("X-Request-ID")
	if rid == "" {
		rid = uuid.NewString()
		c.Set("X-Request-ID", rid)
	}

	err := c.Next()

	s.logger.Debug("http access",
		"rid", rid,
		"method", c.Method(),
		"path", c.OriginalURL(),
		"status", c.Response().StatusCode(),
		"latency", time.Since(start),
	)
	return err
}
