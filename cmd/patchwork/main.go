// Command patchwork validates rule packs, replays bundles through them and
// reads back the session journal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/patchwork/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		// Commands print their own structured output; this is the one-line cause.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
