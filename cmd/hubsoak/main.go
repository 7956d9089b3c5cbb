// Command hubsoak drives an eventhub with synthetic traffic and reports
// throughput and the handlers left registered at teardown.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
