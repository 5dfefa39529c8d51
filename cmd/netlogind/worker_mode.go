package main

import (
	"net"
	"os"

	"github.com/infodancer/netlogind/internal/authadapter"
	"github.com/infodancer/netlogind/internal/config"
	"github.com/infodancer/netlogind/internal/logging"
	"github.com/infodancer/netlogind/internal/metrics"
	"github.com/infodancer/netlogind/internal/worker"
)

// runWorker is the hidden -worker mode: the broker re-execs into this with
// its end of the conversation socketpair passed as fd 3 (spec.md §4.4).
func runWorker(flags *config.Flags) int {
	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return fatalf("error loading config: %v", err)
	}

	channelFile := os.NewFile(3, "netlogind-channel")
	if channelFile == nil {
		return fatalf("worker mode requires the conversation channel on fd 3")
	}
	channel, err := net.FileConn(channelFile)
	channelFile.Close()
	if err != nil {
		return fatalf("wrap conversation channel: %v", err)
	}
	defer channel.Close()

	var adapter authadapter.Adapter
	if cfg.NoAuth {
		adapter = authadapter.NoAuth{}
	} else {
		bcryptAdapter, err := authadapter.NewBcryptFile(cfg.CredentialFile)
		if err != nil {
			return fatalf("loading credential file: %v", err)
		}
		adapter = bcryptAdapter
	}

	cleanupGrace, err := cfg.CleanupGrace()
	if err != nil {
		return fatalf("invalid timeouts.cleanup_grace: %v", err)
	}
	childReapTimeout, err := cfg.ChildReapTimeout()
	if err != nil {
		return fatalf("invalid timeouts.child_reap: %v", err)
	}

	logger := logging.ForRole(logging.NewLogger(cfg.LogLevel), "worker")

	ctx, cancel := signalContext()
	defer cancel()

	w := worker.New(worker.Config{
		Channel:          channel,
		Adapter:          adapter,
		NoAuth:           cfg.NoAuth,
		Logger:           logger,
		Metrics:          &metrics.NoopCollector{},
		CleanupGrace:     cleanupGrace,
		ChildReapTimeout: childReapTimeout,
	})

	if err := w.Run(ctx); err != nil {
		logger.Error("session ended with error", "error", err)
		return 1
	}
	return 0
}
