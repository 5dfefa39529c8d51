package main

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/infodancer/netlogind/internal/config"
	"github.com/infodancer/netlogind/internal/listener"
	"github.com/infodancer/netlogind/internal/logging"
	"github.com/infodancer/netlogind/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// runListener is the default mode: bind the socket and accept connections,
// forking a broker per connection (spec.md §4.6).
func runListener(flags *config.Flags, alreadyDaemonized bool) int {
	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return fatalf("error loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return fatalf("invalid configuration: %v", err)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fatalf("resolving executable path: %v", err)
	}

	if !flags.Debug && !alreadyDaemonized {
		if err := daemonize(execPath, append(os.Args[1:], "-daemonized")); err != nil {
			return fatalf("daemonizing: %v", err)
		}
		return 0
	}

	if alreadyDaemonized {
		unix.Umask(0o077)
		_ = os.Chdir("/")
	}

	logger := logging.ForRole(logging.NewLogger(cfg.LogLevel), "listener")

	var collector metrics.Collector = &metrics.NoopCollector{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector = metrics.NewPrometheusCollector(reg)
		metricsSrv := metrics.NewPrometheusServer(cfg.Metrics.Address, cfg.Metrics.Path, reg)

		ctx, cancel := signalContext()
		defer cancel()
		go func() {
			if err := metricsSrv.Start(ctx); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	acceptRateLimit, err := cfg.AcceptRateLimit()
	if err != nil {
		return fatalf("invalid accept_rate_limit: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	err = listener.Run(ctx, listener.Config{
		SocketPath:      cfg.SocketPath,
		ExecPath:        execPath,
		BrokerArgs:      childArgs("-broker", flags),
		AcceptRateLimit: acceptRateLimit,
		Logger:          logger,
		Metrics:         collector,
	})
	if err != nil {
		return fatalf("listener: %v", err)
	}
	return 0
}

// daemonize re-execs the current process so that it runs detached from its
// controlling terminal, then returns immediately so the original invocation
// can exit — the conventional shell-facing contract of starting a daemon.
// Go has no raw fork(); SysProcAttr.Setsid asks the kernel to make the
// re-exec'd child a session leader as part of the same clone+execve that
// starts it, which is the part of the classic fork-setsid-fork dance that
// actually detaches it from the invoking terminal. The second fork in that
// recipe exists only to stop the session leader itself from ever
// accidentally acquiring a new controlling terminal; netlogind's listener
// never opens a tty, so that extra step buys nothing here and is omitted.
func daemonize(execPath string, args []string) error {
	cmd := exec.Command(execPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err == nil {
		cmd.Stdin = devnull
		cmd.Stdout = devnull
		cmd.Stderr = devnull
		defer devnull.Close()
	}

	return cmd.Start()
}
