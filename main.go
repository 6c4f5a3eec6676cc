// ocelgraph indexes object-centric event logs (OCEL 2.0) and serves
// relationship queries over them.
//
// It resolves objects and events to dense indices, builds per-type
// catalogs, the object-to-event association index and the symmetric
// relation graph, and exposes them over HTTP, MCP and the command line.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/ocelgraph-go/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
