package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rpggio/cubelink/internal/config"
	"github.com/rpggio/cubelink/internal/cube"
	"github.com/rpggio/cubelink/internal/mcp"
	"github.com/rpggio/cubelink/internal/remote"
	"github.com/rpggio/cubelink/internal/sqlite"
	"github.com/rpggio/cubelink/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// stdout carries JSON-RPC in stdio mode.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if logPath := os.Getenv("CUBELINK_LOG_PATH"); logPath != "" {
		fileWriter, err := newLogFileWriter(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer fileWriter.Close()
			logWriter = fileWriter
		}
	}
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var handler slog.Handler = slog.NewTextHandler(logWriter, opts)
	if cfg.Transport.Mode == "stdio" {
		handler = slog.NewJSONHandler(logWriter, opts)
	}
	logger := slog.New(handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, closeWarehouse, err := connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer closeWarehouse()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mcpServer := mcp.NewServer(mcp.Config{
		Cube:    client,
		Version: cube.Version,
		Metrics: mcp.NewMetrics(reg),
		Logger:  logger,
	})

	if cfg.Transport.Mode == "stdio" {
		err = runStdioMode(ctx, logger, mcpServer)
	} else {
		err = runHTTPMode(ctx, logger, mcpServer, cfg.Transport, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// connect builds the cube client and attaches the SQLite warehouse when one
// is configured. The returned func closes the warehouse.
func connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*cube.Client, func(), error) {
	client, err := cube.New(ctx, cube.Config{
		Remote: remote.Config{
			BaseURL:          cfg.Remote.URL,
			DesignCenterPort: cfg.Remote.DesignCenterPort,
			EnginePort:       cfg.Remote.EnginePort,
			Organization:     cfg.Remote.Organization,
			ProjectID:        cfg.Remote.ProjectID,
			Token:            cfg.Auth.Token,
			Username:         cfg.Auth.Username,
			Password:         cfg.Auth.Password,
			Timeout:          cfg.Remote.RequestTimeout,
			Logger:           logger,
		},
		ModelID:             cfg.Remote.ModelID,
		QueryTimeoutMinutes: cfg.Query.TimeoutMinutes,
		Logger:              logger,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected", "project", client.ProjectName(), "model", client.ModelName())

	if cfg.Warehouse.Path == "" {
		return client, func() {}, nil
	}
	db, err := sqlite.New(cfg.Warehouse.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open warehouse: %w", err)
	}
	conn := sqlite.NewConnector(db, sqlite.ConnectorConfig{
		ConnectionID: cfg.Warehouse.ConnectionID,
		Schema:       cfg.Warehouse.Schema,
		Database:     cfg.Warehouse.Database,
	}, logger)
	if err := client.SetWarehouse(ctx, conn); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("warehouse attached", "connection", cfg.Warehouse.ConnectionID, "path", cfg.Warehouse.Path)
	return client, func() { db.Close() }, nil
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport")

	// Run blocks until stdin closes or ctx is canceled.
	err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutting down")
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server, cfg config.TransportConfig, metrics http.Handler) error {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			SessionTimeout: 30 * time.Minute,
		},
	)

	router := transport.NewRouter(transport.Config{
		MCP:     mcpHandler,
		Metrics: metrics,
		Token:   cfg.Token,
		Logger:  logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "auth", cfg.Token != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}
