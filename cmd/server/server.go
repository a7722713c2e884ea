package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KirkDiggler/session-api/internal/broadcast"
	"github.com/KirkDiggler/session-api/internal/commands"
	"github.com/KirkDiggler/session-api/internal/config"
	"github.com/KirkDiggler/session-api/internal/connections"
	"github.com/KirkDiggler/session-api/internal/handlers/httpapi"
	"github.com/KirkDiggler/session-api/internal/handlers/ws"
	"github.com/KirkDiggler/session-api/internal/orchestrators/combat"
	"github.com/KirkDiggler/session-api/internal/pkg/idgen"
	redisclient "github.com/KirkDiggler/session-api/internal/redis"
	encounterrepo "github.com/KirkDiggler/session-api/internal/repositories/encounter"
	narrativerepo "github.com/KirkDiggler/session-api/internal/repositories/narrative"
)

var httpPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the session server",
	Long:  `Start the HTTP and websocket server with all configured services.`,
	RunE:  runServer,
}

func init() {
	serverCmd.Flags().IntVar(&httpPort, "port", 8080, "HTTP server port")
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal, gracefully stopping")
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := redisclient.NewClient(cfg.RedisAddr, &redisclient.Options{
		PoolSize:     cfg.RedisPoolSize,
		MinIdleConns: cfg.RedisMinIdleConns,
		MaxRetries:   cfg.RedisMaxRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}()

	encounterRepo, err := encounterrepo.NewRedis(&encounterrepo.RedisConfig{
		Client: client,
	})
	if err != nil {
		return fmt.Errorf("failed to create encounter repository: %w", err)
	}

	narrativeRepo, err := narrativerepo.NewRedis(&narrativerepo.RedisConfig{
		Client: client,
	})
	if err != nil {
		return fmt.Errorf("failed to create narrative repository: %w", err)
	}

	registry := connections.NewRegistry()

	broadcaster, err := broadcast.NewBroadcaster(&broadcast.Config{
		Registry: registry,
	})
	if err != nil {
		return fmt.Errorf("failed to create broadcaster: %w", err)
	}

	engine, err := combat.NewOrchestrator(&combat.Config{
		EncounterRepo: encounterRepo,
		Publisher:     broadcaster,
		IDGenerator:   idgen.NewPrefixed("enc"),
	})
	if err != nil {
		return fmt.Errorf("failed to create combat orchestrator: %w", err)
	}

	router, err := commands.NewRouter(&commands.Config{
		Engine:    engine,
		Narrative: narrativeRepo,
		Publisher: broadcaster,
	})
	if err != nil {
		return fmt.Errorf("failed to create command router: %w", err)
	}

	apiHandler, err := httpapi.NewHandler(&httpapi.Config{
		Router:    router,
		Engine:    engine,
		Narrative: narrativeRepo,
	})
	if err != nil {
		return fmt.Errorf("failed to create API handler: %w", err)
	}

	wsHandler, err := ws.NewHandler(&ws.Config{
		Registry: registry,
		Engine:   engine,
		IDGen:    idgen.NewPrefixed("conn"),
	})
	if err != nil {
		return fmt.Errorf("failed to create websocket handler: %w", err)
	}

	mux := http.NewServeMux()
	apiHandler.Register(mux)
	mux.Handle("GET /ws", wsHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", httpPort),
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", httpPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("failed to serve: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("graceful shutdown timeout exceeded, forcing close")
			return srv.Close()
		}
		slog.Info("server stopped gracefully")
		return nil
	case err := <-errChan:
		return err
	}
}
