// Command logctl is the operator CLI for inspecting and maintaining
// partition logs directly on disk, outside of a running node — roll,
// truncate, and compact a single partition without wiring up a full
// logmanager.Manager.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
