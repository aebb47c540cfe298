package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/trackfetch-go/api"
	"github.com/yourusername/trackfetch-go/api/handlers"
	"github.com/yourusername/trackfetch-go/internal/app"
	"github.com/yourusername/trackfetch-go/internal/domain"
	"github.com/yourusername/trackfetch-go/internal/infrastructure"
	"github.com/yourusername/trackfetch-go/internal/metrics"
	"github.com/yourusername/trackfetch-go/internal/resolver"
	"github.com/yourusername/trackfetch-go/pkg/logger"
)

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	foreground = flag.Bool("foreground", false, "Run in the foreground instead of detaching")
	configPath = flag.String("config", "", "Path to config file")
)

func main() {
	flag.Parse()

	if !*serverMode && !*foreground {
		startAsDaemon()
		return
	}

	if err := runServer(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// startAsDaemon re-executes the binary detached from the terminal
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}

	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()
	detach(cmd)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open /dev/null: %v\n", err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer(configPath string) error {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := createDirectories(config); err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize category logs: %w", err)
	}
	defer multiLog.Close()

	logAdapter := logger.NewLoggerAdapter(log, multiLog)
	defer logAdapter.Sync()

	log.Info("Starting trackfetch server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("slskd", config.Slskd.URL),
		zap.Int("max_concurrent", config.Download.MaxConcurrent))

	store, err := infrastructure.NewSQLiteRepository(config.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	slskd := infrastructure.NewSlskdClient(&config.Slskd, config.Discovery, log, multiLog)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := slskd.Ping(pingCtx); err != nil {
		log.Warn("slskd is not reachable yet", zap.String("url", config.Slskd.URL), zap.Error(err))
	}
	pingCancel()

	discovery := app.NewDiscovery(slskd, resolver.NewGate(store), log)
	orchestrator := app.NewOrchestrator(slskd, config.Download.MaxConcurrent, logAdapter.Queue(), multiLog)
	monitor := app.NewHealthMonitor(orchestrator, config.Health, logAdapter.Health(), multiLog)
	queueMgr := app.NewQueueManager(discovery, orchestrator, monitor, store, config, log, multiLog)

	events := handlers.NewJobEventHub(orchestrator.Jobs, log)
	orchestrator.AddObserver(metrics.NewJobObserver())
	orchestrator.AddObserver(infrastructure.NewJobArchiver(store, log))
	orchestrator.AddObserver(infrastructure.NewNotificationService(&config.Notification, log))
	orchestrator.AddObserver(events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if config.Download.AutoStartWorkers {
		if err := queueMgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start queue manager: %w", err)
		}
	}

	metricsPath := ""
	if config.Metrics.Enabled {
		metricsPath = config.Metrics.Path
	}

	router := api.SetupRouter(api.RouterConfig{
		QueueManager: queueMgr,
		Blocklist:    store,
		Events:       events,
		Upstream:     slskd,
		LogAdapter:   logAdapter,
		LogsDir:      config.Download.LogsDir,
		MetricsPath:  metricsPath,
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received shutdown signal")
	case err := <-serverErr:
		log.Error("HTTP server failed", zap.Error(err))
	}

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// In-flight transfers end Cancelled and are archived before the store closes
	if queueMgr.IsRunning() {
		if err := queueMgr.Stop(); err != nil {
			log.Error("Error stopping queue manager", zap.Error(err))
		}
	}

	log.Info("Server exited")
	return nil
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.BaseDir,
		config.Download.CompletedDir,
		config.Download.LogsDir,
		filepath.Dir(config.Storage.DatabasePath),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
