// replwatch runs an interactive interpreter and re-sends marked lines of
// watched source files to it whenever they change.
package main

import (
	"os"

	"github.com/hupe1980/replwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
