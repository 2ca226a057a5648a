// Command protoipcd runs the router daemon: a process that listens on a
// Unix socket, accepts incoming connections as Ports, and forwards
// messages between them for as long as the process is alive.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/protoipc/cmd/protoipcd/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
