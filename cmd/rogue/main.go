// Command rogue serves an emulated memory, a demo tree and its bridges, and talks to them.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
