// Package listener implements the listener role (spec.md §4.6): binds the
// well-known local socket, accepts connections, and forks a per-connection
// broker for each one, rate-limiting how fast unauthenticated brokers can
// be created.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/infodancer/netlogind/internal/metrics"
	"github.com/infodancer/netlogind/internal/neterr"
)

// Config configures the listener role.
type Config struct {
	SocketPath string
	// ExecPath is the netlogind binary re-exec'd as the broker (normally
	// os.Executable()).
	ExecPath string
	// BrokerArgs are passed to the re-exec'd broker, e.g. {"-broker"},
	// extended with -noauth/-debug by the caller.
	BrokerArgs []string
	// AcceptRateLimit is slept between accepts, bounding the rate at which
	// unauthenticated broker processes are created (spec.md §4.6, ~1s).
	AcceptRateLimit time.Duration
	Logger          *slog.Logger
	Metrics         metrics.Collector
}

// Run binds the socket and accepts connections until ctx is cancelled, a
// ConfigurationError occurs, or Accept fails (an IoError). Each connection is handed to a freshly
// re-exec'd broker process; Run blocks until that broker exits before
// accepting the next connection, which is itself the rate limit (spec.md
// §4.6's "~1s sleep" is layered on top via AcceptRateLimit).
func Run(ctx context.Context, cfg Config) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &metrics.NoopCollector{}
	}

	if err := requireRoot(); err != nil {
		return neterr.Configurationf("startup", err)
	}

	if isConnectable(cfg.SocketPath) {
		return neterr.Configurationf("startup", fmt.Errorf("a daemon is already listening on %s", cfg.SocketPath))
	}
	_ = os.Remove(cfg.SocketPath)

	ln, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return neterr.Configurationf("bind", err)
	}
	defer ln.Close()
	defer os.Remove(cfg.SocketPath)

	if err := os.Chmod(cfg.SocketPath, 0o666); err != nil {
		return neterr.Configurationf("chmod", err)
	}

	cfg.Logger.Info("listening", slog.String("socket", cfg.SocketPath))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return neterr.Iof("accept", err)
			}
		}

		cfg.Metrics.ConnectionAccepted()
		if err := spawnBroker(conn, cfg); err != nil {
			cfg.Logger.Error("broker session failed", slog.String("error", err.Error()))
		}
		cfg.Metrics.ConnectionClosed()

		if cfg.AcceptRateLimit > 0 {
			time.Sleep(cfg.AcceptRateLimit)
		}
	}
}

// spawnBroker re-execs the netlogind binary as the broker, passing the
// accepted connection's fd via ExtraFiles (fd 3 in the child), and blocks
// until that broker exits — the "blocking reap of exactly that child"
// spec.md §4.6 requires between accepts.
func spawnBroker(conn net.Conn, cfg Config) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return fmt.Errorf("unexpected connection type %T", conn)
	}

	connFile, err := unixConn.File()
	if err != nil {
		conn.Close()
		return fmt.Errorf("dup client fd: %w", err)
	}
	conn.Close()
	defer connFile.Close()

	cmd := exec.Command(cfg.ExecPath, cfg.BrokerArgs...)
	cmd.ExtraFiles = []*os.File{connFile}
	cmd.Stderr = os.Stderr
	// Setsid places the broker in its own session, detaching it from the
	// listener's controlling terminal (spec.md §4.6's "placed in a new
	// process-group session"); the broker process itself, once re-exec'd,
	// handles the remaining daemon-post-fork plumbing (cmd/netlogind).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start broker: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		cfg.Logger.Debug("broker exited", slog.String("error", err.Error()))
	}
	return nil
}

// requireRoot enforces spec.md §4.6: "the listener must run only as root
// (real and effective uid 0)".
func requireRoot() error {
	ruid, euid, _ := unix.Getresuid()
	if ruid != 0 || euid != 0 {
		return errors.New("listener must run as root")
	}
	return nil
}

// isConnectable probes whether an existing socket at path is live (spec.md
// §4.6: "probes whether an existing socket is connectable; if so, refuses
// to start").
func isConnectable(path string) bool {
	conn, err := net.DialTimeout("unix", path, 200*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
