// Command netlogind is a privilege-separated remote login daemon
// (spec.md): a listener process accepts connections and forks a net
// broker per connection, which in turn forks a session worker connected to
// it over a private channel. The three roles are all the same binary,
// re-exec'd with a hidden mode flag and the relevant file descriptor
// passed via ExtraFiles, since Go has no raw fork().
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/infodancer/netlogind/internal/config"
)

var (
	clientMode = flag.Bool("client", false, "Connect to the daemon's socket as a local terminal test client")
	daemonized = flag.Bool("daemonized", false, "internal: this process is already detached from its controlling terminal")
	brokerMode = flag.Bool("broker", false, "internal: run as the net broker for the client connection on fd 3")
	workerMode = flag.Bool("worker", false, "internal: run as the session worker for the conversation channel on fd 3")
)

func main() {
	flags := config.ParseFlags()

	// Broken-pipe writes (a client vanishing mid-response) are surfaced as
	// ordinary I/O errors on the write call, not as a process-killing
	// signal. signal.Notify installs a caught handler rather than SIG_IGN;
	// unlike signal.Ignore, a caught disposition is reset to default by
	// execve(2), so command children forked by the worker see the normal
	// SIGPIPE behavior (spec.md §5) without any extra step at fork time.
	ignoreSigpipe()

	var code int
	switch {
	case *workerMode:
		code = runWorker(flags)
	case *brokerMode:
		code = runBroker(flags)
	case *clientMode:
		code = runClient(flags)
	default:
		code = runListener(flags, *daemonized)
	}
	os.Exit(code)
}

// ignoreSigpipe drains SIGPIPE on a background goroutine so that a broken
// write never kills the process, without leaving the signal's disposition
// set to SIG_IGN at the OS level.
func ignoreSigpipe() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGPIPE)
	go func() {
		for range ch {
		}
	}()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func fatalf(format string, args ...any) int {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return 1
}

// childArgs builds the argv for a re-exec'd child running in mode,
// propagating exactly the flags that affect its behavior. Each child
// reloads flags.ConfigPath itself rather than inheriting a pre-resolved
// config.Config, since it runs as a distinct OS process.
func childArgs(mode string, flags *config.Flags) []string {
	args := []string{mode, "-config", flags.ConfigPath}
	if flags.SocketPath != "" {
		args = append(args, "-socket", flags.SocketPath)
	}
	if flags.LogLevel != "" {
		args = append(args, "-log-level", flags.LogLevel)
	}
	if flags.CredentialFile != "" {
		args = append(args, "-credential-file", flags.CredentialFile)
	}
	if flags.NoAuth {
		args = append(args, "-noauth")
	}
	if flags.Debug {
		args = append(args, "-debug")
	}
	return args
}
