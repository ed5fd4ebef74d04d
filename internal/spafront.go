// Package internal wires the application together: configuration, the IdP
// client, the HTTP endpoints, and lifecycle management.
package internal

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spafront/spa-front/internal/config"
	"github.com/spafront/spa-front/internal/idp"
	"github.com/spafront/spa-front/internal/log"
	"github.com/spafront/spa-front/internal/server"
	"golang.org/x/sync/errgroup"
)

// SPAFront represents the complete token handler application
type SPAFront struct {
	config     *config.Config
	httpServer *server.HTTPServer
}

// NewSPAFront creates the application with all dependencies built
func NewSPAFront(cfg *config.Config) (*SPAFront, error) {
	log.LogInfoWithFields("spafront", "Building token handler application", map[string]any{
		"issuer":          cfg.Issuer,
		"endpointsPrefix": cfg.EndpointsPrefix,
		"trustedOrigins":  len(cfg.TrustedWebOrigins),
	})

	idpClient, err := idp.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up Authorization Server client: %w", err)
	}

	handlers := server.NewHandlers(cfg, idpClient)
	httpServer := server.NewHTTPServer(handlers.Routes(), cfg.ListenAddr)

	return &SPAFront{
		config:     cfg,
		httpServer: httpServer,
	}, nil
}

// Run starts the HTTP server and blocks until a shutdown signal arrives or
// the server fails, then shuts down gracefully.
func (s *SPAFront) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		log.LogInfoWithFields("spafront", "Starting graceful shutdown", map[string]any{
			"timeout": "30s",
		})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return s.httpServer.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.LogInfoWithFields("spafront", "Application shutdown complete", nil)
	return nil
}
