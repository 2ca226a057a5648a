package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/marmos91/protoipc/internal/config"
	"github.com/marmos91/protoipc/internal/ipc"
	"github.com/marmos91/protoipc/internal/logger"
	"github.com/marmos91/protoipc/internal/metrics"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the router daemon",
	Long: `Start protoipcd in the foreground: bind the configured listening
socket, accept incoming connections as Ports, and forward messages
between them until interrupted.

Examples:
  # Start with default config location
  protoipcd start

  # Start with a custom config file
  protoipcd start --config /etc/protoipc/config.yaml

  # Override a setting via environment variable
  PROTOIPC_LOGGING_LEVEL=DEBUG protoipcd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))
	logger.Info("router configuration",
		"listen_path", cfg.Router.ListenPath,
		"socket_type", cfg.Router.SocketType,
		"max_handles_per_message", cfg.Router.MaxHandlesPerMessage,
		"msg_max_size", cfg.Router.MsgMaxSize.String())

	metrics.SetEnabled(cfg.Metrics.Enabled)
	m := metrics.New(prometheus.DefaultRegisterer)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.Metrics.ListenAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	} else {
		logger.Info("metrics collection disabled")
	}

	router, err := ipc.NewRouter(m)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	listener, err := ipc.Listen(cfg.Router.ListenPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Router.ListenPath, err)
	}
	logger.Info("router listening", "path", cfg.Router.ListenPath)

	acceptDone := make(chan struct{})
	go acceptLoop(ctx, listener, router, int(cfg.Router.MsgMaxSize.Uint64()), acceptDone)

	routerDone := make(chan error, 1)
	go func() { routerDone <- router.Loop() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("router is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-routerDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("router loop stopped", "error", err)
		}
	}

	cancel()
	_ = listener.Close()
	_ = router.Close()
	<-acceptDone

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}

	logger.Info("router stopped")
	return nil
}

// acceptLoop accepts incoming connections until ctx is canceled or the
// listener is closed, registering each one with router. Closed is
// signaled via acceptDone once the loop has returned.
func acceptLoop(ctx context.Context, listener *ipc.Listener, router *ipc.Router, msgMaxSize int, done chan<- struct{}) {
	defer close(done)

	var opts []ipc.Option
	if msgMaxSize > 0 {
		opts = append(opts, ipc.WithMsgMaxSize(msgMaxSize))
	}

	for {
		port, err := listener.Accept(opts...)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("accept failed", "error", err)
				return
			}
		}

		id, err := router.AddPort(port)
		if err != nil {
			logger.Warn("failed to register accepted port", "error", err)
			_ = port.Close()
			continue
		}
		logger.Debug("accepted connection", "port_id", id)
	}
}

func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
