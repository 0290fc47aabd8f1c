package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ainventory/ainventory-server/internal/api"
	"github.com/ainventory/ainventory-server/internal/chread"
	"github.com/ainventory/ainventory-server/internal/grpcapi"
	"github.com/ainventory/ainventory-server/internal/mcpserver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP (SSE or stdio), HTTP and optionally gRPC",
		RunE:  runServe,
	}
	cmd.Flags().String("transport", "", "MCP transport: sse | stdio (default $"+envMCPTransport+" or sse)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	if transport == "" {
		transport = envOrDefault(envMCPTransport, "sse")
	}
	if transport != "sse" && transport != "stdio" {
		return fmt.Errorf("unknown MCP transport %q", transport)
	}

	// stdout carries the protocol in stdio mode.
	output := "stdout"
	if transport == "stdio" {
		output = "stderr"
	}
	logger := mustBuildLogger(envOrDefault(envLogLevel, "info"), output)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer := openEventWriter(ctx, logger)
	defer writer.Close()

	reg, err := buildRegistry(writer, logger)
	if err != nil {
		return err
	}

	mcpServer, err := mcpserver.New(reg, version, logger)
	if err != nil {
		return err
	}

	if transport == "stdio" {
		logger.Info("serving MCP on stdio", zap.Int("tools", len(reg.List())))
		return mcpserver.ServeStdio(mcpServer)
	}

	authenticator, closeAuth, err := openAuthenticator(ctx, logger)
	if err != nil {
		return err
	}
	defer closeAuth()

	port := envOrDefault(envHTTPPort, "3000")
	sse := mcpserver.NewSSEHandler(mcpServer, envOrDefault(envBaseURL, "http://localhost:"+port))

	deps := &api.Dependencies{
		Tools:  reg,
		Auth:   authenticator,
		MCP:    sse,
		Logger: logger,
	}
	if dsn := envOrDefault(envClickHouse, ""); dsn != "" {
		reader, err := chread.NewReader(ctx, dsn, logger)
		if err != nil {
			logger.Warn("clickhouse reader unavailable, tool-call endpoints disabled", zap.Error(err))
		} else {
			defer reader.Close() //nolint:errcheck
			deps.Reader = reader
		}
	}

	// No WriteTimeout: SSE streams stay open for the life of the session.
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 2)

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if grpcPort := envOrDefault(envGRPCPort, ""); grpcPort != "" {
		grpcServer, healthServer = grpcapi.NewServer(reg, authenticator, logger)
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			return fmt.Errorf("listen grpc :%s: %w", grpcPort, err)
		}
		go func() {
			logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		logger.Info("http server listening",
			zap.String("addr", httpServer.Addr),
			zap.Bool("auth", authenticator != nil),
			zap.Bool("tool_calls_api", deps.Reader != nil),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	if grpcServer != nil {
		healthServer.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		grpcServer.GracefulStop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		logger.Warn("mcp sse shutdown", zap.Error(err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	return runErr
}
