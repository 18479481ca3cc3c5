// This program provides operator tooling for the node: key file
// management and read-only chain queries.
package main

import (
	"github.com/minichain/minichain/app/tooling/admin/commands"
)

func main() {
	commands.Execute()
}
