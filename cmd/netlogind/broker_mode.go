package main

import (
	"fmt"
	"net"
	"os"

	"github.com/google/uuid"

	"github.com/infodancer/netlogind/internal/broker"
	"github.com/infodancer/netlogind/internal/config"
	"github.com/infodancer/netlogind/internal/logging"
	"github.com/infodancer/netlogind/internal/metrics"
	"github.com/infodancer/netlogind/internal/platform"
)

// runBroker is the hidden -broker mode: the listener re-execs into this
// with the accepted client connection passed as fd 3 (spec.md §4.5).
func runBroker(flags *config.Flags) int {
	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return fatalf("error loading config: %v", err)
	}

	// The listener already placed this process in its own session
	// (spec.md §4.6); PostFork gives non-Linux platforms a hook to run
	// before the broker starts relaying.
	if err := platform.Current().PostFork(); err != nil {
		fmt.Fprintf(os.Stderr, "platform post-fork hook: %v\n", err)
	}

	clientFile := os.NewFile(3, "netlogind-client")
	if clientFile == nil {
		return fatalf("broker mode requires the client connection on fd 3")
	}
	client, err := net.FileConn(clientFile)
	clientFile.Close()
	if err != nil {
		return fatalf("wrap client connection: %v", err)
	}
	defer client.Close()

	logger := logging.ForRole(logging.NewLogger(cfg.LogLevel), "broker").With("session_id", uuid.NewString())

	execPath, err := os.Executable()
	if err != nil {
		return fatalf("resolving executable path: %v", err)
	}

	authTimeout, err := cfg.AuthTimeout()
	if err != nil {
		return fatalf("invalid timeouts.auth: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	err = broker.Run(ctx, client, broker.Config{
		ExecPath:    execPath,
		WorkerArgs:  childArgs("-worker", flags),
		AuthTimeout: authTimeout,
		Logger:      logger,
		Metrics:     &metrics.NoopCollector{},
	})
	if err != nil {
		logger.Error("broker session ended with error", "error", err)
		return 1
	}
	return 0
}
