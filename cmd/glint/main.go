// Command glint is the reference CLI consumer of the glint.Core API (spec
// §6.2), exercising it the way rclone's cmd/ tree is a thin cobra shell
// around the fs package rather than where engineering effort concentrates.
package main

import (
	"fmt"
	"os"

	_ "github.com/padiauj/glint/backend/ntfs"
	_ "github.com/padiauj/glint/backend/traversal"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "glint:", err)
		os.Exit(exitCodeFor(err))
	}
}
