package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/minikern/minikern/internal/logger"
	"github.com/minikern/minikern/pkg/config"
	"github.com/minikern/minikern/pkg/fs"
	"github.com/minikern/minikern/pkg/kernel"
)

// consoleDevice is the driver behind /dev/console: reads come from the host
// stdin, writes go to the host stdout.
type consoleDevice struct{}

func (consoleDevice) Read(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return os.Stdin.Read(p)
}

func (consoleDevice) Write(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return os.Stdout.Write(p)
}

// consoleMajor is the device major number of the console driver.
const consoleMajor = 1

func main() {
	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/minikern/config.yaml)")
	logLevel := flag.String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logger.SetLevel(cfg.Logging.Level)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to set log output: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("minikern - transactional filesystem playground")
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Content store: %s, metadata store: %s", cfg.Content.Type, cfg.Metadata.Type)

	contentStore, err := config.CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		log.Fatalf("Failed to create content store: %v", err)
	}

	metadataStore, err := config.CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		contentStore.Close()
		log.Fatalf("Failed to create metadata store: %v", err)
	}

	fsys, err := fs.New(ctx, metadataStore, contentStore)
	if err != nil {
		metadataStore.Close()
		contentStore.Close()
		log.Fatalf("Failed to initialize filesystem: %v", err)
	}
	fsys.RegisterDevice(consoleMajor, consoleDevice{})

	k := kernel.New(fsys, kernel.Config{MaxFDs: cfg.Kernel.MaxFDs})
	proc := k.NewProc()

	if fd := proc.Open(ctx, "/dev/console", kernel.ORdwr); fd < 0 {
		proc.Mkdir(ctx, "/dev")
		proc.Mknod(ctx, "/dev/console", consoleMajor, 0)
	} else {
		proc.Close(ctx, fd)
	}

	// Shut down cleanly on SIGINT/SIGTERM so badger can close its value log
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received %v, shutting down", sig)
		cancel()
	}()

	runShell(ctx, proc)

	proc.Exit(context.Background())
	if err := fsys.Close(); err != nil {
		logger.Error("Error closing filesystem: %v", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
