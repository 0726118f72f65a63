// chaseai: local control plane for autonomous agents.
// Serves per-port instruction contexts and routes sensitive actions
// through a human approval prompt.
package main

import "github.com/chaseai/chaseai/internal/cli"

func main() {
	cli.Execute()
}
