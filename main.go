// e32on64 loads a 32-bit i386 ELF shared object into a 64-bit host process
// and lets the host call into it, via compatibility-mode far calls.
package main

import (
	"fmt"
	"os"
)

const versionString = "e32on64 0.1.0"

func main() {
	if err := RunCLI(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "e32on64: %v\n", err)
		os.Exit(1)
	}
}
