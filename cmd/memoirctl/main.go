// memoirctl is an offline operator tool for Memoira. It runs the quality
// analyser, the transcript pipeline and the speech-to-text providers against
// local files without a server or database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
