// Command mvbtctl is the operator-facing driver for the MVBT engine
// (SPEC_FULL.md §2.3): a thin cobra/viper wrapper that constructs a
// tree from flags/config and calls into the library. It is not part
// of the library's contract — the core packages take no CLI flags or
// environment variables, per spec.md §6 ("No CLI, no env vars: the
// core is a library").
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
