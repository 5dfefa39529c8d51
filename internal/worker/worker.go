// Package worker implements the session worker state machine (spec.md
// §4.4): AwaitingUsername → Authenticating → Authenticated →
// InCommandLoop → Terminating, driven entirely by blocking reads/writes
// over the broker conversation channel. A worker process owns exactly one
// client session and never execs itself; only its command children do.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/infodancer/netlogind/internal/authadapter"
	"github.com/infodancer/netlogind/internal/credential"
	"github.com/infodancer/netlogind/internal/metrics"
	"github.com/infodancer/netlogind/internal/neterr"
	"github.com/infodancer/netlogind/internal/platform"
	"github.com/infodancer/netlogind/internal/procname"
	"github.com/infodancer/netlogind/internal/wire"
)

// Config wires a Worker to its conversation channel and collaborators.
type Config struct {
	// Channel is the broker-worker conversation stream (spec.md §4.1).
	Channel io.ReadWriter

	Adapter  authadapter.Adapter
	NoAuth   bool
	Logger   *slog.Logger
	Metrics  metrics.Collector
	Platform platform.Capability

	// CleanupGrace is how long Terminating sleeps before reaping command
	// children, to let session-opened daemons detach (spec.md §5).
	CleanupGrace time.Duration
	// ChildReapTimeout bounds the Terminating wait-for-all (spec.md §5);
	// children still running after it are abandoned.
	ChildReapTimeout time.Duration
}

// Worker runs one session's state machine to completion.
type Worker struct {
	cfg      Config
	children map[int]struct{}
}

// New builds a Worker, defaulting Platform/Metrics when unset.
func New(cfg Config) *Worker {
	if cfg.Platform == nil {
		cfg.Platform = platform.Current()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &metrics.NoopCollector{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{cfg: cfg, children: make(map[int]struct{})}
}

// Run drives the session to completion: username prompt, authentication,
// credential transition, command loop, termination. Returns nil after a
// session that authenticated and ended with an empty command line; a
// non-nil error reports every other ending: an empty username, a denied
// authentication, a failed credential transition or command fork, or an
// I/O or protocol failure on the conversation channel.
func (w *Worker) Run(ctx context.Context) error {
	username, err := w.awaitUsername()
	if err != nil {
		return err
	}

	conv := &channelConversation{ch: w.cfg.Channel}

	username, expired, err := w.authenticate(username, conv)
	if err != nil {
		return err
	}

	rec, err := w.transitionCredentials(username, expired, conv)
	if err != nil {
		return err
	}

	procname.Set(rec.Name + " [session]")
	w.cfg.Metrics.SessionStarted()

	if err := w.commandLoop(ctx, rec); err != nil {
		return err
	}

	return w.terminate(rec)
}

func (w *Worker) writeMessage(m wire.Message) error {
	if err := wire.WriteMessage(w.cfg.Channel, m); err != nil {
		return neterr.Iof("write conversation channel", err)
	}
	return nil
}

func (w *Worker) readMessage() (wire.Message, error) {
	msg, err := wire.ReadMessage(w.cfg.Channel)
	if err != nil {
		return wire.Message{}, neterr.Iof("read conversation channel", err)
	}
	return msg, nil
}

// awaitUsername implements the AwaitingUsername state.
func (w *Worker) awaitUsername() (string, error) {
	if err := w.writeMessage(wire.Text("Username: ")); err != nil {
		return "", err
	}
	if err := w.writeMessage(wire.Prompt(true)); err != nil {
		return "", err
	}

	msg, err := w.readMessage()
	if err != nil {
		return "", err
	}
	if msg.Tag != wire.TagReply {
		return "", neterr.Protocolf("await username", fmt.Errorf("expected REPLY, got %v", msg.Tag))
	}
	username := string(msg.Payload)
	msg.Scrub()

	if username == "" {
		_ = w.writeMessage(wire.Finish(1))
		return "", neterr.Authf("await username", errors.New("empty username"))
	}
	return username, nil
}

// authenticate implements the Authenticating state. The returned bool
// reports whether the adapter requires a password change before the
// credential transition may proceed (spec.md §4 SUPPLEMENTED FEATURES).
func (w *Worker) authenticate(username string, conv authadapter.Conversation) (string, bool, error) {
	if w.cfg.NoAuth {
		if err := w.writeMessage(wire.Text("Skipping authentication\n")); err != nil {
			return "", false, err
		}
		return username, false, nil
	}

	err := w.cfg.Adapter.StartAndAuthenticate(&username, conv)
	switch {
	case err == nil:
		w.cfg.Metrics.AuthAttempt(true)
		return username, false, nil
	case errors.Is(err, authadapter.ErrPasswordExpired):
		w.cfg.Metrics.AuthAttempt(true)
		return username, true, nil
	default:
		w.cfg.Metrics.AuthAttempt(false)
		_ = w.writeMessage(wire.Finish(1))
		return "", false, neterr.Authf("start_and_authenticate", err)
	}
}

// transitionCredentials implements the Authenticated state: spec.md §4.3
// steps 1-8, including the supplemented expired-password change, which
// runs with the real uid already dropped to the target user per the
// CHAUTHTOK_CHECKS_RUID constraint (see authadapter.Adapter.ChangeExpiredPassword).
func (w *Worker) transitionCredentials(username string, expired bool, conv authadapter.Conversation) (*credential.UserRecord, error) {
	rec, err := credential.Lookup(username)
	if err != nil {
		_ = w.writeMessage(wire.Finish(1))
		return nil, neterr.Authf("resolve user record", err)
	}

	if expired {
		if err := credential.DropRealUID(rec); err != nil {
			_ = w.writeMessage(wire.Finish(1))
			return nil, neterr.Credentialf("drop real uid for password change", err)
		}
		changeErr := w.cfg.Adapter.ChangeExpiredPassword(rec.Name, conv)
		if err := credential.RestoreRoot(); err != nil {
			_ = w.writeMessage(wire.Finish(1))
			return nil, neterr.Credentialf("restore root after password change", err)
		}
		if changeErr != nil {
			_ = w.writeMessage(wire.Finish(1))
			return nil, neterr.Authf("change expired password", changeErr)
		}
	}

	if err := credential.SetGID(rec); err != nil {
		_ = w.writeMessage(wire.Finish(1))
		return nil, neterr.Credentialf("setgid", err)
	}
	if err := credential.InitGroups(rec); err != nil {
		_ = w.writeMessage(wire.Finish(1))
		return nil, neterr.Credentialf("initgroups", err)
	}
	if err := w.cfg.Platform.PostAuth(rec.UID); err != nil {
		_ = w.writeMessage(wire.Finish(1))
		return nil, neterr.Credentialf("platform post-auth hook", err)
	}

	sessionConv := authadapter.RejectPrompts{Inner: conv}
	if err := w.cfg.Adapter.BeginSession(rec.Name, sessionConv); err != nil {
		_ = w.writeMessage(wire.Finish(1))
		return nil, neterr.Credentialf("begin_session", err)
	}
	if err := w.cfg.Platform.PostSession(rec.UID); err != nil {
		_ = w.writeMessage(wire.Finish(1))
		return nil, neterr.Credentialf("platform post-session hook", err)
	}

	if err := w.writeMessage(wire.Finish(0)); err != nil {
		return nil, err
	}
	if err := w.writeMessage(wire.Reply([]byte(rec.Name))); err != nil {
		return nil, err
	}

	if err := credential.DropRealUID(rec); err != nil {
		return nil, neterr.Credentialf("drop real uid", err)
	}

	return rec, nil
}

// commandLoop implements InCommandLoop: reap, prompt, fork, repeat until an
// empty command line is received.
func (w *Worker) commandLoop(ctx context.Context, rec *credential.UserRecord) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		w.reapChildren()

		if err := w.writeMessage(wire.Text("Command: ")); err != nil {
			return err
		}
		if err := w.writeMessage(wire.Prompt(true)); err != nil {
			return err
		}

		msg, err := w.readMessage()
		if err != nil {
			return err
		}
		if msg.Tag != wire.TagReply {
			return neterr.Protocolf("command loop", fmt.Errorf("expected REPLY, got %v", msg.Tag))
		}
		command := strings.TrimSpace(string(msg.Payload))
		msg.Scrub()

		if command == "" {
			return nil
		}

		w.cfg.Logger.Info("running command", slog.String("command", command), slog.String("user", rec.Name))

		pid, err := w.forkCommand(rec, command)
		if err != nil {
			w.cfg.Logger.Error("fork command failed", slog.String("command", command), slog.String("error", err.Error()))
			_ = w.writeMessage(wire.Finish(1))
			return neterr.Iof("fork command", err)
		}
		w.children[pid] = struct{}{}
		w.cfg.Metrics.CommandExecuted()
	}
}

// forkCommand starts command as an argv-0-only program resolved via PATH,
// running as rec's uid/gid. Go has no raw fork(); exec.Cmd's
// SysProcAttr.Credential asks the kernel to set credentials as part of the
// clone+execve sequence, so the command never runs any of our code at the
// wrong privilege level (mirroring the teacher's subprocess.go use of
// syscall.Credential for mail-session).
func (w *Worker) forkCommand(rec *credential.UserRecord, command string) (int, error) {
	path, err := exec.LookPath(command)
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(path)
	cmd.Args = []string{command}
	cmd.Dir = rec.HomeDir
	cmd.Env = credential.Environ(rec, w.cfg.Adapter.ExportEnviron())
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{Uid: uint32(rec.UID), Gid: uint32(rec.GID)},
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// By the time Start returns, the forked child has already run execve (or
	// Start would have reported the exec error), so /proc/<pid>/status
	// already reflects SysProcAttr.Credential having taken effect. Verify it
	// rather than trust the kernel call silently (invariant I2).
	pid := cmd.Process.Pid
	if err := credential.VerifyChild(pid, rec.UID, rec.GID); err != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return 0, neterr.Credentialf("verify command child", err)
	}
	return pid, nil
}

// reapChildren performs a non-blocking drain of terminated command
// children (spec.md §4.4), logging any non-zero exit (ChildError,
// spec.md §7 — never fatal to the worker).
func (w *Worker) reapChildren() {
	for pid := range w.children {
		var status syscall.WaitStatus
		wpid, err := syscall.Wait4(pid, &status, syscall.WNOHANG, nil)
		if err != nil {
			if errors.Is(err, syscall.ECHILD) {
				delete(w.children, pid)
			}
			continue
		}
		if wpid == 0 {
			continue
		}
		delete(w.children, pid)
		w.logChildExit(wpid, status)
	}
}

func (w *Worker) logChildExit(pid int, status syscall.WaitStatus) {
	switch {
	case status.Signaled():
		w.cfg.Logger.Error("command killed by signal", slog.Int("pid", pid), slog.String("signal", status.Signal().String()))
	case status.ExitStatus() != 0:
		w.cfg.Logger.Error("command exited non-zero", slog.Int("pid", pid), slog.Int("status", status.ExitStatus()))
	}
}

// terminate implements Terminating: restore the real uid to root, signal FINISH(0),
// grace-sleep, bounded wait-for-all, then adapter cleanup.
func (w *Worker) terminate(rec *credential.UserRecord) error {
	if err := credential.RestoreRoot(); err != nil {
		return neterr.Credentialf("restore root", err)
	}
	if err := w.writeMessage(wire.Finish(0)); err != nil {
		return err
	}

	if w.cfg.CleanupGrace > 0 {
		time.Sleep(w.cfg.CleanupGrace)
	}

	w.waitForAllChildren()

	if err := w.cfg.Adapter.Cleanup(rec.UID); err != nil {
		w.cfg.Logger.Error("session cleanup failed", slog.String("error", err.Error()))
	}
	w.cfg.Metrics.SessionEnded()
	return nil
}

// waitForAllChildren blocks (ignoring ECHILD) until every remaining command
// child has been reaped or ChildReapTimeout elapses, whichever comes
// first; any children still running past the timeout are abandoned to
// init (spec.md §5).
func (w *Worker) waitForAllChildren() {
	deadline := time.Now().Add(w.cfg.ChildReapTimeout)
	for len(w.children) > 0 {
		if w.cfg.ChildReapTimeout > 0 && time.Now().After(deadline) {
			return
		}
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err != nil {
			if errors.Is(err, syscall.ECHILD) {
				return
			}
			continue
		}
		if pid == 0 {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if _, ok := w.children[pid]; ok {
			delete(w.children, pid)
			w.logChildExit(pid, status)
		}
	}
}

// channelConversation implements authadapter.Conversation over the
// broker-worker wire channel (spec.md §4.2's conversation callback).
type channelConversation struct {
	ch io.ReadWriter
}

func (c *channelConversation) Converse(prompts []authadapter.Prompt) ([][]byte, error) {
	replies := make([][]byte, 0, len(prompts))

	// abort scrubs every reply captured so far before returning err, per
	// §4.2's "scrub every captured reply... and return an error" contract
	// (invariant I3): a failure partway through a multi-prompt exchange
	// must not leave an earlier echo-off reply sitting in memory.
	abort := func(err error) ([][]byte, error) {
		for _, r := range replies {
			credential.Scrub(r)
		}
		return nil, err
	}

	for _, p := range prompts {
		switch p.Style {
		case authadapter.StyleEchoOn, authadapter.StyleEchoOff:
			if err := wire.WriteMessage(c.ch, wire.Text(p.Text)); err != nil {
				return abort(neterr.Iof("conversation write", err))
			}
			if err := wire.WriteMessage(c.ch, wire.Prompt(p.Style == authadapter.StyleEchoOn)); err != nil {
				return abort(neterr.Iof("conversation write", err))
			}
			msg, err := wire.ReadMessage(c.ch)
			if err != nil {
				return abort(neterr.Iof("conversation read", err))
			}
			if msg.Tag != wire.TagReply {
				return abort(neterr.Protocolf("conversation", fmt.Errorf("expected REPLY, got %v", msg.Tag)))
			}
			reply := msg.Payload
			msg.Payload = nil
			replies = append(replies, reply)

		case authadapter.StyleInfo, authadapter.StyleError:
			text := p.Text
			if !strings.HasSuffix(text, "\n") {
				text += "\n"
			}
			if err := wire.WriteMessage(c.ch, wire.Text(text)); err != nil {
				return abort(neterr.Iof("conversation write", err))
			}
			replies = append(replies, nil)

		default:
			return abort(neterr.Protocolf("conversation", fmt.Errorf("unknown prompt style %v", p.Style)))
		}
	}
	return replies, nil
}
