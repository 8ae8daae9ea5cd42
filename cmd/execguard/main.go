// Command execguard checks shell commands before an agent runs them,
// installs missing tools, and checkpoints files around edits.
package main

import "os"

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		reportError(cmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}
