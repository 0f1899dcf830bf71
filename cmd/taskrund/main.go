package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/cuemby/taskrun/pkg/config"
	"github.com/cuemby/taskrun/pkg/controlapi"
	"github.com/cuemby/taskrun/pkg/dispatch"
	"github.com/cuemby/taskrun/pkg/engine"
	"github.com/cuemby/taskrun/pkg/events"
	"github.com/cuemby/taskrun/pkg/imageresolver"
	"github.com/cuemby/taskrun/pkg/lease"
	"github.com/cuemby/taskrun/pkg/lifecycle"
	"github.com/cuemby/taskrun/pkg/log"
	"github.com/cuemby/taskrun/pkg/metrics"
	"github.com/cuemby/taskrun/pkg/registry"
	"github.com/cuemby/taskrun/pkg/security"
	"github.com/cuemby/taskrun/pkg/storage"
	"github.com/cuemby/taskrun/pkg/workerrpc"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskrund",
	Short: "taskrund runs the task-runtime orchestrator control plane",
	Long: `taskrund is the control-plane daemon for the task-runtime
orchestrator: it owns runtime registration, image resolution, runtime
lifecycle, and run dispatch in a single process.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"taskrund version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the taskrund control-plane daemon",
	RunE:  runStart,
}

func init() {
	config.BindFlags(startCmd.Flags())
	startCmd.Flags().String("node-id", "taskrund-0", "identifier for this daemon's lease coordinator node")
	startCmd.Flags().String("lease-bind-addr", "127.0.0.1:9070", "bind address for the lease coordinator's raft transport")
	startCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "bind address for the metrics/health HTTP server")
	startCmd.Flags().String("control-addr", "127.0.0.1:9091", "bind address for the operator control API (cmd/taskrun-cli)")
	startCmd.Flags().Bool("enable-pprof", false, "expose net/http/pprof endpoints on the metrics server")
}

func runStart(cmd *cobra.Command, args []string) error {
	settings, err := config.FromFlags(cmd.Flags())
	if err != nil {
		return fmt.Errorf("parse runtime settings: %w", err)
	}

	nodeID, _ := cmd.Flags().GetString("node-id")
	leaseBindAddr, _ := cmd.Flags().GetString("lease-bind-addr")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	controlAddr, _ := cmd.Flags().GetString("control-addr")
	pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")

	logger := log.WithComponent("taskrund")

	if err := os.MkdirAll(settings.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := storage.NewBoltStore(settings.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	eng, err := engine.NewContainerdEngine(settings.ContainerdSocket)
	if err != nil {
		return fmt.Errorf("connect to containerd: %w", err)
	}

	leaseCoordinator, err := lease.NewCoordinator(lease.Config{
		NodeID:   nodeID,
		BindAddr: leaseBindAddr,
		DataDir:  settings.DataDir,
	})
	if err != nil {
		return fmt.Errorf("start lease coordinator: %w", err)
	}

	certDir, err := security.GetCertDir("daemon", nodeID)
	if err != nil {
		return fmt.Errorf("resolve worker cert dir: %w", err)
	}
	clients := workerrpc.NewClientCache(certDir)

	reg := registry.New(store)
	resolver := imageresolver.New(eng, leaseCoordinator, settings)
	manager := lifecycle.New(reg, eng, resolver, leaseCoordinator, store, clients, settings)
	reconciler := lifecycle.NewReconciler(manager)

	broker := events.NewBroker()
	routes := dispatch.NewRouteTable()
	dispatcher := dispatch.New(store, manager, clients, routes, broker, settings)
	listener := dispatch.NewEventListener(manager, clients, store, broker, routes, dispatcher)

	collector := metrics.NewCollector(reg, store, routes)

	metrics.SetVersion(Version)
	metrics.RegisterComponent("containerd", true, "connected")
	metrics.RegisterComponent("store", true, "open")
	metrics.RegisterComponent("dispatch", false, "starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker.Start()
	reconciler.Start()
	collector.Start()
	listener.Start(ctx)

	metrics.UpdateComponent("dispatch", true, "listening")
	logger.Info().Str("node_id", nodeID).Msg("taskrund started")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	if pprofEnabled {
		mux.Handle("/debug/pprof/", http.DefaultServeMux)
	}

	errCh := make(chan error, 1)
	httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics and health endpoints listening")

	controlListener, err := net.Listen("tcp", controlAddr)
	if err != nil {
		return fmt.Errorf("listen on control addr: %w", err)
	}
	grpcServer := grpc.NewServer()
	controlapi.RegisterControlServiceServer(grpcServer, controlapi.NewServer(reg, manager, broker))
	go func() {
		if err := grpcServer.Serve(controlListener); err != nil {
			errCh <- fmt.Errorf("control api server error: %w", err)
		}
	}()
	logger.Info().Str("addr", controlAddr).Msg("control api listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
	}

	cancel()
	grpcServer.GracefulStop()
	listener.Stop()
	reconciler.Stop()
	collector.Stop()
	broker.Stop()
	clients.CloseAll()
	if err := leaseCoordinator.Shutdown(); err != nil {
		logger.Warn().Err(err).Msg("lease coordinator shutdown failed")
	}
	_ = httpServer.Close()

	logger.Info().Msg("taskrund stopped")
	return nil
}
