// fedgraph builds type and instance graphs from entity-store federations.
//
// A federation archive bundles entity stores: schema definitions and the
// instances governed by them. fedgraph imports archives, builds the type
// graph and the instance graph, and serves them over HTTP and MCP.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/fedgraph/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
