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

	"github.com/voxrelay/voxrelay/internal/dotenv"
	"github.com/voxrelay/voxrelay/pkg/core/providers/openai"
	"github.com/voxrelay/voxrelay/pkg/core/voice/tts"
	"github.com/voxrelay/voxrelay/pkg/gateway/config"
	gatewayserver "github.com/voxrelay/voxrelay/pkg/gateway/server"
	"github.com/voxrelay/voxrelay/pkg/tools"
	"github.com/voxrelay/voxrelay/pkg/tools/hosted"
	"github.com/voxrelay/voxrelay/pkg/tools/mcptool"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	connectMCP   func(ctx context.Context, cfg config.Config) (*mcptool.Provider, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		connectMCP: func(ctx context.Context, cfg config.Config) (*mcptool.Provider, error) {
			return mcptool.Connect(ctx, cfg.MCPCommand, cfg.MCPArgs,
				mcptool.WithTimeout(cfg.MCPCallTimeout),
				mcptool.WithFireAndForget(cfg.MCPFireAndForget...),
			)
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil || deps.connectMCP == nil {
		return errors.New("missing config dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	provider := openai.New(cfg.OpenAIAPIKey).WithBaseURL(cfg.OpenAIBaseURL)

	var toolProviders []tools.Provider
	if cfg.ToolsetBaseURL != "" {
		toolProviders = append(toolProviders, hosted.New(cfg.ToolsetBaseURL, cfg.ToolsetAPIKey))
	}
	if cfg.MCPCommand != "" {
		mcpProvider, err := deps.connectMCP(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect mcp server: %w", err)
		}
		defer func() {
			if err := mcpProvider.Close(); err != nil {
				logger.Warn("closing mcp session", "error", err)
			}
		}()
		toolProviders = append(toolProviders, mcpProvider)
	}

	var synth tts.Provider
	if cfg.TTSAPIKey != "" {
		synth = tts.NewElevenLabs(cfg.TTSAPIKey)
	}

	gw := gatewayserver.New(cfg, logger, gatewayserver.Deps{
		Provider:      provider,
		ToolProviders: toolProviders,
		TTS:           synth,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"tool_providers", len(toolProviders),
		"audio", synth != nil,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	// Closing the sockets first stops any bound runs, so in-flight chat
	// requests reach a terminal state within the grace period.
	gw.Hub().CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(".env"); err != nil {
		fmt.Fprintf(stderr, "voxrelay: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "voxrelay: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
