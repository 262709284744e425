// chronolens analyzes browsing history with a configurable AI provider,
// building an evolving profile of who the user is, what they are working
// on, and which repetitive workflows could be automated.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
