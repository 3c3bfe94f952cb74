package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/blockmesh/blockmesh/internal/config"
	"github.com/blockmesh/blockmesh/internal/meshnode"
	"github.com/blockmesh/blockmesh/internal/workerpool"
	"github.com/blockmesh/blockmesh/pkg/logging"
)

const (
	logKeyHost  = "host"
	logKeyPort  = "port"
	logKeyError = "error"
)

func main() { // A
	configPath := flag.String("config", "config.yaml", "path to node config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := logging.New(level)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", logKeyError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("node error", logKeyError, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pool := workerpool.New(workerpool.Config{})
	defer pool.Close()

	node, err := meshnode.New(cfg.Host, cfg.Port, pool, logger)
	if err != nil {
		return fmt.Errorf("start service node: %w", err)
	}
	defer node.Close()

	for _, s := range cfg.Stores {
		if err := node.AddBlockStore(s.BSID, s.Path, s.BlockSize); err != nil {
			return fmt.Errorf("open store %d at %s: %w", s.BSID, s.Path, err)
		}
	}

	logger.Info("node listening", logKeyHost, node.Peer().Host(), logKeyPort, node.Peer().Port())

	for _, addr := range cfg.BootstrapPeers {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			logger.Error("bad bootstrap peer address", "addr", addr, logKeyError, err)
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			logger.Error("bad bootstrap peer port", "addr", addr, logKeyError, err)
			continue
		}
		if !node.Peer().AddPeer(host, port) {
			logger.Error("failed to reach bootstrap peer", "addr", addr)
		}
	}

	node.StartHousekeeping()

	<-ctx.Done()
	return nil
}
