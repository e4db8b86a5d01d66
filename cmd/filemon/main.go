// Package main provides the filemon CLI, which keeps a path:checksum
// manifest of a watched folder.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
