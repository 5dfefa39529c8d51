// Package broker implements the net broker role (spec.md §4.5): it owns
// the client endpoint, spawns the session worker with a socketpair
// connecting them, and relays the wire protocol between the two,
// enforcing the authentication-phase invariants.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	"github.com/infodancer/netlogind/internal/metrics"
	"github.com/infodancer/netlogind/internal/neterr"
	"github.com/infodancer/netlogind/internal/procname"
	"github.com/infodancer/netlogind/internal/wire"
)

// Config configures one broker session.
type Config struct {
	// ExecPath is the netlogind binary re-exec'd as the worker (normally
	// os.Executable()).
	ExecPath string
	// WorkerArgs are passed to the re-exec'd worker, e.g. {"-worker",
	// "-noauth"}.
	WorkerArgs []string
	// AuthTimeout bounds how long the pre-auth relay phase may run before
	// the broker gives up (spec.md §5). Zero disables the timeout.
	AuthTimeout time.Duration
	Logger      *slog.Logger
	Metrics     metrics.Collector
}

// Run owns client end to end: spawns the worker, relays messages per
// spec.md §4.5 until the session ends, and reaps the worker process.
func Run(ctx context.Context, client net.Conn, cfg Config) error {
	if cfg.Metrics == nil {
		cfg.Metrics = &metrics.NoopCollector{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	cfg.Metrics.ConnectionAccepted()
	defer cfg.Metrics.ConnectionClosed()

	workerConn, cmd, err := spawnWorker(cfg.ExecPath, cfg.WorkerArgs)
	if err != nil {
		return neterr.Iof("spawn worker", err)
	}
	defer workerConn.Close()

	relayErr := relay(client, workerConn, cfg)
	_ = workerConn.Close()

	if _, waitErr := cmd.Process.Wait(); waitErr != nil {
		cfg.Logger.Debug("worker wait failed", slog.String("error", waitErr.Error()))
	}

	return relayErr
}

// spawnWorker creates a socketpair and re-execs the netlogind binary as the
// worker, passing one end via ExtraFiles (fd 3 in the child). This replaces
// the fork-without-exec the conversation channel otherwise implies: Go has
// no raw fork, so the worker role runs as a freshly exec'd process from the
// start rather than as a copy of the broker's address space.
func spawnWorker(execPath string, args []string) (net.Conn, *exec.Cmd, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}

	workerFile := os.NewFile(uintptr(fds[0]), "netlogind-worker-channel")
	brokerFile := os.NewFile(uintptr(fds[1]), "netlogind-broker-channel")

	cmd := exec.Command(execPath, args...)
	cmd.ExtraFiles = []*os.File{workerFile}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		workerFile.Close()
		brokerFile.Close()
		return nil, nil, fmt.Errorf("start worker: %w", err)
	}
	workerFile.Close()

	conn, err := net.FileConn(brokerFile)
	brokerFile.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("wrap broker channel: %w", err)
	}

	return conn, cmd, nil
}

// relay implements the broker's relay loop (spec.md §4.5). postAuth tracks
// whether the worker's first FINISH decision has already been consumed;
// before that decision only the conversation's TEXT and PROMPT messages are
// forwarded to the client, and no second FINISH is accepted before it. The
// auth timeout is a read deadline on both the worker and the client
// connection, cleared once the post-auth phase is entered.
func relay(client net.Conn, worker net.Conn, cfg Config) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &metrics.NoopCollector{}
	}

	if cfg.AuthTimeout > 0 {
		deadline := time.Now().Add(cfg.AuthTimeout)
		if err := worker.SetReadDeadline(deadline); err != nil {
			cfg.Logger.Debug("arm auth timeout failed", slog.String("error", err.Error()))
		}
		if err := client.SetReadDeadline(deadline); err != nil {
			cfg.Logger.Debug("arm client auth timeout failed", slog.String("error", err.Error()))
		}
	}

	postAuth := false

	for {
		msg, err := wire.ReadMessage(worker)
		if err != nil {
			if !postAuth && isTimeout(err) {
				cfg.Metrics.AuthTimeout()
				return neterr.Authf("relay", fmt.Errorf("authentication timed out: %w", err))
			}
			return neterr.Iof("read worker channel", err)
		}

		switch msg.Tag {
		case wire.TagText:
			if err := wire.WriteMessage(client, msg); err != nil {
				return neterr.Iof("write client channel", err)
			}

		case wire.TagPrompt:
			if err := wire.WriteMessage(client, msg); err != nil {
				return neterr.Iof("write client channel", err)
			}
			reply, err := wire.ReadMessage(client)
			if err != nil {
				if !postAuth && isTimeout(err) {
					cfg.Metrics.AuthTimeout()
					return neterr.Authf("relay", fmt.Errorf("authentication timed out: %w", err))
				}
				return neterr.Iof("read client channel", err)
			}
			if reply.Tag != wire.TagReply {
				return neterr.Protocolf("relay", fmt.Errorf("expected REPLY from client, got %v", reply.Tag))
			}
			werr := wire.WriteMessage(worker, reply)
			reply.Scrub()
			if werr != nil {
				return neterr.Iof("write worker channel", werr)
			}

		case wire.TagFinish:
			if !postAuth {
				done, err := enterPostAuth(client, worker, msg, cfg)
				if err != nil || done {
					return err
				}
				if err := client.SetReadDeadline(time.Time{}); err != nil {
					cfg.Logger.Debug("disarm client auth timeout failed", slog.String("error", err.Error()))
				}
				postAuth = true
				continue
			}

			if err := wire.WriteMessage(client, msg); err != nil {
				return neterr.Iof("write client channel", err)
			}
			return nil

		default:
			return neterr.Protocolf("relay", fmt.Errorf("unexpected tag %v from worker", msg.Tag))
		}
	}
}

// enterPostAuth handles the worker's first FINISH. On denial it relays the
// failure to the client and reports done=true so relay returns. On success
// it consumes the username REPLY, disarms the timeout, and reports
// done=false so relay continues in the post-auth phase without having
// forwarded this FINISH to the client yet.
func enterPostAuth(client, worker net.Conn, finish wire.Message, cfg Config) (done bool, err error) {
	if finish.Status != 0 {
		_ = wire.WriteMessage(client, wire.Text("Authentication failed\n"))
		_ = wire.WriteMessage(client, finish)
		return true, neterr.Authf("relay", fmt.Errorf("authentication failed with status %d", finish.Status))
	}

	userMsg, err := wire.ReadMessage(worker)
	if err != nil {
		return true, neterr.Iof("read worker channel", err)
	}
	if userMsg.Tag != wire.TagReply {
		return true, neterr.Protocolf("relay", fmt.Errorf("expected REPLY carrying username, got %v", userMsg.Tag))
	}
	username := string(userMsg.Payload)
	userMsg.Scrub()

	if err := worker.SetReadDeadline(time.Time{}); err != nil {
		cfg.Logger.Debug("disarm auth timeout failed", slog.String("error", err.Error()))
	}
	procname.Set(username + " [session]")
	cfg.Logger.Info("session authenticated", slog.String("user", username))

	return false, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
