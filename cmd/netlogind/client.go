package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/infodancer/netlogind/internal/config"
	"github.com/infodancer/netlogind/internal/wire"
)

// runClient is the -client mode: a local terminal test client speaking the
// client-broker wire protocol directly (spec.md §4.1), translating
// TEXT/PROMPT/FINISH exchanges into terminal I/O. It exists to exercise the
// daemon without a separate client program.
func runClient(flags *config.Flags) int {
	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		return fatalf("error loading config: %v", err)
	}

	conn, err := net.Dial("unix", cfg.SocketPath)
	if err != nil {
		return fatalf("connecting to %s: %v", cfg.SocketPath, err)
	}
	defer conn.Close()

	stdin := bufio.NewReader(os.Stdin)

	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			return fatalf("connection closed: %v", err)
		}

		switch msg.Tag {
		case wire.TagText:
			fmt.Print(string(msg.Payload))

		case wire.TagPrompt:
			reply, err := readReply(stdin, msg.Echo)
			if err != nil {
				return fatalf("reading reply: %v", err)
			}
			werr := wire.WriteMessage(conn, wire.Reply(reply))
			for i := range reply {
				reply[i] = 0
			}
			if werr != nil {
				return fatalf("sending reply: %v", werr)
			}

		case wire.TagFinish:
			return int(msg.Status)

		default:
			return fatalf("unexpected message tag %v from server", msg.Tag)
		}
	}
}

// readReply reads one line of input, using the terminal's echo-off mode for
// password-style prompts (echo == false) so typed characters never appear.
// Falls back to ordinary line buffering when stdin isn't a terminal (e.g.
// piped test input), where echo suppression has no meaning anyway.
func readReply(stdin *bufio.Reader, echo bool) ([]byte, error) {
	if !echo && term.IsTerminal(int(os.Stdin.Fd())) {
		line, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		return line, err
	}

	line, err := stdin.ReadString('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
