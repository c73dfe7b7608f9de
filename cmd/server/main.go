package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"

	"github.com/jsamuel1/agi-diy/api/handlers"
	"github.com/jsamuel1/agi-diy/internal/agent"
	"github.com/jsamuel1/agi-diy/internal/config"
	"github.com/jsamuel1/agi-diy/internal/db"
	"github.com/jsamuel1/agi-diy/internal/registry"
	"github.com/jsamuel1/agi-diy/internal/relay"
	"github.com/jsamuel1/agi-diy/internal/repository"
	"github.com/jsamuel1/agi-diy/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", getEnv("CONFIG_PATH", config.DefaultPath()), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	if cfg.Logging.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run history is optional; an empty path disables it.
	var database *sql.DB
	var runs *repository.AgentRunRepository
	if cfg.Database.Path != "" {
		database, err = db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		runs = repository.NewAgentRunRepository(database)
		abandoned, err := runs.AbandonRunning(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("reconciling run history: %w", err)
		}
		if abandoned > 0 {
			logger.Warn("marked runs from a previous process as failed", "count", abandoned)
		}
	}

	reg := registry.New()
	broadcaster := relay.NewBroadcaster(reg, logger)

	supOpts := []agent.Option{}
	if runs != nil {
		supOpts = append(supOpts, agent.WithRunStore(runs))
	}
	sup := agent.NewSupervisor(agent.Options{
		Command:       cfg.AgentRuntime.Command,
		GracePeriod:   cfg.AgentRuntime.GracePeriod,
		OutputBuffer:  cfg.AgentRuntime.OutputBuffer,
		TranscriptDir: cfg.AgentRuntime.TranscriptDir,
	}, broadcaster, logger, supOpts...)

	router := relay.NewRouter(reg, broadcaster, sup, logger, relay.WithValidation(cfg.Relay.ValidateEvents))
	reaper := relay.NewReaper(reg, broadcaster, logger, cfg.Relay.ReapInterval, cfg.Relay.StaleTimeout)
	go reaper.Run(ctx)

	wsHandler := ws.NewHandler(router, logger, ws.Options{
		MaxMessageSize: cfg.Relay.MaxMessageSize,
		SendBuffer:     cfg.Relay.SendBuffer,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Peers connect on the root path; /ws is kept for older clients.
	r.GET("/", gin.WrapH(wsHandler))
	r.GET("/ws", gin.WrapH(wsHandler))

	api := r.Group("/api")
	{
		handlers.NewRelayHandler(reg, router).RegisterRoutes(api)

		var history handlers.RunLister
		if runs != nil {
			history = runs
		}
		handlers.NewAgentHandler(sup, history).RegisterRoutes(api)
	}

	port, err := config.FindAvailablePort(cfg.Server.Host, cfg.Server.Port, config.MaxPort)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	printBanner(cfg, addr)
	logger.Info("starting ag-mesh relay",
		"config", cfg.Path,
		"addr", addr,
		"validate_events", cfg.Relay.ValidateEvents,
		"history", runs != nil,
	)
	if port != cfg.Server.Port {
		logger.Warn("configured port busy, using next free port", "configured", cfg.Server.Port, "port", port)
	}

	if n := sup.AutoStart(ctx, cfg.Agents); n > 0 {
		logger.Info("auto-started agents", "count", n)
	}

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server error", "error", serveErr)
	}

	// The signal context is already done; shutdown gets its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	sup.ShutdownAll(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", "error", err)
	}
	return serveErr
}

func printBanner(cfg *config.Config, addr string) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)
	gray := color.New(color.FgHiBlack)

	fmt.Println()
	cyan.Println("  ag-mesh relay")
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s", cfg.Path)
	if cfg.Created {
		gray.Print(" (created)")
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("WebSocket: ws://%s/\n", addr)
	green.Print("    ▶ ")
	fmt.Printf("HTTP API:  http://%s/api\n", addr)
	green.Print("    ▶ ")
	fmt.Printf("Agents:    %d configured\n", len(cfg.Agents))
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("History:   %s\n", cfg.Database.Path)
	}
	fmt.Println()
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// corsMiddleware returns a CORS middleware for browser peers.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
